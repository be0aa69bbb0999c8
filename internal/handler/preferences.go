package handler

import (
	"encoding/json"
	"net/http"

	"github.com/emberchat/emberchat/internal/middleware"
	"github.com/emberchat/emberchat/internal/model"
	"github.com/emberchat/emberchat/internal/service"
	"github.com/emberchat/emberchat/pkg/logger"
)

// PreferencesHandler handles the preferences endpoints.
type PreferencesHandler struct {
	chat   *service.ChatService
	logger *logger.Logger
}

// NewPreferencesHandler creates a new preferences handler.
func NewPreferencesHandler(chat *service.ChatService, log *logger.Logger) *PreferencesHandler {
	return &PreferencesHandler{
		chat:   chat,
		logger: log,
	}
}

// Get handles GET /api/v1/preferences
func (h *PreferencesHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.chat.Store().Preferences())
}

// Put handles PUT /api/v1/preferences
func (h *PreferencesHandler) Put(w http.ResponseWriter, r *http.Request) {
	var prefs model.Preferences
	if err := json.NewDecoder(r.Body).Decode(&prefs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateThinkingBudget(prefs.ThinkingBudget); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.chat.Store().SetPreferences(prefs)
	writeJSON(w, http.StatusOK, prefs)
}
