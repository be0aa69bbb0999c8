package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/emberchat/emberchat/internal/middleware"
	"github.com/emberchat/emberchat/internal/model"
	"github.com/emberchat/emberchat/internal/service"
	"github.com/emberchat/emberchat/pkg/logger"
)

// ConversationHandler handles conversation endpoints.
type ConversationHandler struct {
	chat   *service.ChatService
	logger *logger.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(chat *service.ChatService, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		chat:   chat,
		logger: log,
	}
}

// listResponse is the response for listing conversations.
type listResponse struct {
	Conversations []*model.Conversation `json:"conversations"`
	ActiveID      string                `json:"active_id"`
}

// Create handles POST /api/v1/conversations
func (h *ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	conv := h.chat.NewChat()
	h.logger.Infow("conversation created", "conversation_id", conv.ID)
	writeJSON(w, http.StatusCreated, conv)
}

// List handles GET /api/v1/conversations
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, &listResponse{
		Conversations: h.chat.Store().List(),
		ActiveID:      h.chat.Store().ActiveID(),
	})
}

// Get handles GET /api/v1/conversations/:id
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conv, err := h.chat.Store().Get(conversationID)
	if err != nil {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// Activate handles POST /api/v1/conversations/:id/activate
func (h *ConversationHandler) Activate(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.chat.SwitchConversation(conversationID); err != nil {
		writeError(w, statusFor(err), "conversation not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Delete handles DELETE /api/v1/conversations/:id
func (h *ConversationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.chat.DeleteConversation(conversationID); err != nil {
		writeError(w, statusFor(err), "conversation not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
