package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"

	openai "github.com/sashabaranov/go-openai"
)

// ConfigurationError indicates a missing or unusable credential. It is
// fatal to all network features, reported once at startup, and never
// retried.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "gateway configuration error: " + e.Reason
}

// NetworkError indicates a transport failure during a stream or
// one-shot call. Surfaced per turn; never retried internally.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return "network error: " + e.Err.Error()
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// APIError indicates the backend rejected or blocked the request
// (non-2xx status, safety filtering).
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("api error (status %d): %s", e.StatusCode, e.Message)
	}
	return "api error: " + e.Message
}

// ErrEmptyResponse is returned when a stream completes without
// producing any content. Non-fatal; the caller decides how to surface
// it.
var ErrEmptyResponse = errors.New("model returned an empty response")

// classify maps a provider error into the gateway taxonomy. Transport
// and deadline failures become NetworkError; anything else the backend
// said no to becomes APIError.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var cfgErr *ConfigurationError
	if errors.As(err, &cfgErr) {
		return err
	}
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return err
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &NetworkError{Err: err}
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return &NetworkError{Err: err}
	}

	var oaiAPIErr *openai.APIError
	if errors.As(err, &oaiAPIErr) {
		return &APIError{StatusCode: oaiAPIErr.HTTPStatusCode, Message: oaiAPIErr.Message}
	}
	var oaiReqErr *openai.RequestError
	if errors.As(err, &oaiReqErr) {
		return &APIError{StatusCode: oaiReqErr.HTTPStatusCode, Message: oaiReqErr.Error()}
	}

	return &APIError{Message: err.Error()}
}
