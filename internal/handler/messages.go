package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/emberchat/emberchat/internal/middleware"
	"github.com/emberchat/emberchat/internal/model"
	"github.com/emberchat/emberchat/internal/service"
	"github.com/emberchat/emberchat/pkg/logger"
	"github.com/emberchat/emberchat/pkg/metrics"
)

// heartbeatInterval is how often an idle SSE connection gets a
// keep-alive event while a turn is generating.
const heartbeatInterval = 30 * time.Second

// MessageHandler handles message endpoints, including the SSE turn
// stream.
type MessageHandler struct {
	chat      *service.ChatService
	logger    *logger.Logger
	heartbeat time.Duration
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(chat *service.ChatService, log *logger.Logger) *MessageHandler {
	return &MessageHandler{
		chat:      chat,
		logger:    log,
		heartbeat: heartbeatInterval,
	}
}

// sendRequest is the request to send a new message.
type sendRequest struct {
	Text string `json:"text"`
}

// List handles GET /api/v1/conversations/:id/messages
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
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

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"messages": conv.Messages,
		"summary":  conv.Summary,
	})
}

// Send handles POST /api/v1/conversations/:id/messages
// The assistant response is streamed back as SSE events: token,
// replacement_started, replacement, message_complete, error, done.
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := h.chat.Store().Get(conversationID); err != nil {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateMessageContent(req.Text); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	metrics.IncrementStreamConnections()
	defer metrics.DecrementStreamConnections()

	// The heartbeat goroutine and the turn callbacks share the
	// response writer; events are serialized through one mutex.
	var writeMu sync.Mutex
	send := func(event string, data interface{}) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return sendSSEEvent(w, flusher, event, data)
	}

	// Heartbeat ticker keeps the connection alive between deltas. The
	// goroutine is joined before the handler returns so no write can
	// outlive the response.
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	defer wg.Wait()
	defer close(done)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(h.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				send("heartbeat", &model.HeartbeatEvent{Timestamp: now})
			}
		}
	}()

	msg, err := h.chat.SendMessage(ctx, conversationID, req.Text, service.TurnEvents{
		OnToken: func(delta string, index int) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			return send("token", &model.TokenEvent{
				Token: delta,
				Index: index,
			})
		},
		OnReplacementStarted: func() error {
			return send("replacement_started", &model.ReplacementEvent{Started: true})
		},
		OnReplacement: func(text string) error {
			return send("replacement", &model.ReplacementEvent{Text: text})
		},
	})

	if err != nil {
		code := "stream_error"
		if service.IsTurnConflict(err) {
			code = "turn_in_flight"
		}
		send("error", &model.ErrorEvent{
			Code:    code,
			Message: err.Error(),
		})
		return
	}

	send("message_complete", &model.MessageCompleteEvent{Message: *msg})
	send("done", map[string]bool{"success": true})
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
	flusher.Flush()

	return nil
}
