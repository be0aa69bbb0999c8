// Package handler provides HTTP handlers for the API.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/emberchat/emberchat/internal/gateway"
	"github.com/emberchat/emberchat/internal/store"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var cfgErr *gateway.ConfigurationError
	if errors.As(err, &cfgErr) {
		return http.StatusServiceUnavailable
	}
	var netErr *gateway.NetworkError
	if errors.As(err, &netErr) {
		return http.StatusBadGateway
	}
	var apiErr *gateway.APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode >= 400 && apiErr.StatusCode < 600 {
			return apiErr.StatusCode
		}
		return http.StatusBadGateway
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrTurnInFlight), errors.Is(err, store.ErrStreamingConflict):
		return http.StatusConflict
	case errors.Is(err, gateway.ErrEmptyResponse):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
