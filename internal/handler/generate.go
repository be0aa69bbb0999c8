package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/emberchat/emberchat/internal/gateway"
	"github.com/emberchat/emberchat/internal/model"
	"github.com/emberchat/emberchat/internal/service"
	"github.com/emberchat/emberchat/pkg/logger"
	"github.com/emberchat/emberchat/pkg/metrics"
)

// GenerateHandler serves the browser client's proxy endpoint. The
// request carries a type discriminator; chat answers with a raw
// streamed byte sequence of UTF-8 text, title and summarize answer
// with a small JSON object.
type GenerateHandler struct {
	chat    *service.ChatService
	gateway service.Streamer // nil when no credential is configured
	logger  *logger.Logger
}

// NewGenerateHandler creates a new generate handler.
func NewGenerateHandler(chat *service.ChatService, gw service.Streamer, log *logger.Logger) *GenerateHandler {
	return &GenerateHandler{
		chat:    chat,
		gateway: gw,
		logger:  log,
	}
}

type generateRequest struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type chatPayload struct {
	History []model.HistoryItem `json:"history"`
	Message struct {
		Parts []model.Part `json:"parts"`
	} `json:"message"`
	Model  string `json:"model"`
	Config struct {
		Temperature       float32 `json:"temperature,omitempty"`
		ThinkingBudget    int     `json:"thinking_budget,omitempty"`
		SystemInstruction string  `json:"system_instruction,omitempty"`
	} `json:"config"`
}

type textPayload struct {
	Text string `json:"text"`
}

// Generate handles POST /api/generate
func (h *GenerateHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	switch req.Type {
	case "chat":
		h.generateChat(w, r, req.Payload)
	case "generate-title":
		h.generateOneShot(w, r, req.Payload, h.chat.GenerateTitle)
	case "summarize":
		h.generateOneShot(w, r, req.Payload, h.chat.Summarize)
	default:
		writeError(w, http.StatusBadRequest, "unknown request type")
	}
}

// generateChat streams the model's reply as raw concatenated UTF-8
// text, not chunk-delimited JSON.
func (h *GenerateHandler) generateChat(w http.ResponseWriter, r *http.Request, payload json.RawMessage) {
	if h.gateway == nil {
		writeError(w, http.StatusServiceUnavailable, "no API credential configured")
		return
	}

	var p chatPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid chat payload")
		return
	}
	if p.Model == "" {
		p.Model = h.chat.Store().Preferences().SelectedModel
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")

	metrics.IncrementStreamConnections()
	defer metrics.DecrementStreamConnections()

	wrote := false
	err := h.gateway.StreamTurn(r.Context(), p.History, p.Message.Parts, p.Model, gateway.SamplingConfig{
		Temperature:       p.Config.Temperature,
		ThinkingBudget:    gateway.ClampThinkingBudget(p.Config.ThinkingBudget),
		SystemInstruction: p.Config.SystemInstruction,
	}, func(delta string) error {
		if _, err := w.Write([]byte(delta)); err != nil {
			return err
		}
		flusher.Flush()
		wrote = true
		return nil
	})

	if err != nil {
		// Headers are gone once the stream started; the broken body is
		// all the client gets.
		if !wrote {
			writeError(w, statusFor(err), err.Error())
			return
		}
		h.logger.Warnw("chat stream aborted", "model", p.Model, "error", err)
	}
}

func (h *GenerateHandler) generateOneShot(w http.ResponseWriter, r *http.Request, payload json.RawMessage, op func(ctx context.Context, text string) (string, error)) {
	var p textPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.Text == "" {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	out, err := op(r.Context(), p.Text)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"text": out})
}
