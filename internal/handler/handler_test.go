package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/emberchat/emberchat/internal/gateway"
	"github.com/emberchat/emberchat/internal/model"
	"github.com/emberchat/emberchat/internal/service"
	"github.com/emberchat/emberchat/internal/session"
	"github.com/emberchat/emberchat/internal/store"
	"github.com/emberchat/emberchat/pkg/logger"
)

type fakeStreamer struct {
	deltas    []string
	err       error
	completes string
	pause     time.Duration
}

func (f *fakeStreamer) StreamTurn(ctx context.Context, prior []model.HistoryItem, parts []model.Part, modelName string, cfg gateway.SamplingConfig, onDelta gateway.DeltaFunc) error {
	for _, d := range f.deltas {
		if f.pause > 0 {
			time.Sleep(f.pause)
		}
		if err := onDelta(d); err != nil {
			return err
		}
	}
	return f.err
}

func (f *fakeStreamer) Complete(ctx context.Context, prompt, modelName string, cfg gateway.SamplingConfig) (string, error) {
	return f.completes, f.err
}

// newTestRouter wires the handlers onto the same routes the server
// mounts.
func newTestRouter(t *testing.T, gw service.Streamer) (chi.Router, *service.ChatService) {
	t.Helper()

	st, err := store.New(context.Background(), store.Options{
		WelcomeText:  "Welcome!",
		DefaultModel: "claude-3-5-sonnet-20241022",
	})
	require.NoError(t, err)
	chat := service.NewChatService(st, session.NewManager(), gw, nil, nil)

	conversations := NewConversationHandler(chat, logger.NewNop())
	messages := NewMessageHandler(chat, logger.NewNop())
	preferences := NewPreferencesHandler(chat, logger.NewNop())
	generate := NewGenerateHandler(chat, gw, logger.NewNop())

	r := chi.NewRouter()
	r.Post("/api/generate", generate.Generate)
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/preferences", func(r chi.Router) {
			r.Get("/", preferences.Get)
			r.Put("/", preferences.Put)
		})
		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", conversations.Create)
			r.Get("/", conversations.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", conversations.Get)
				r.Delete("/", conversations.Delete)
				r.Post("/activate", conversations.Activate)
				r.Get("/messages", messages.List)
				r.Post("/messages", messages.Send)
			})
		})
	})
	return r, chat
}

func doJSON(t *testing.T, r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestConversationLifecycle(t *testing.T) {
	r, _ := newTestRouter(t, &fakeStreamer{})

	rec := doJSON(t, r, http.MethodPost, "/api/v1/conversations", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	var created model.Conversation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Equal(t, model.PlaceholderTitle, created.Title)

	rec = doJSON(t, r, http.MethodPost, "/api/v1/conversations", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	var second model.Conversation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))

	rec = doJSON(t, r, http.MethodGet, "/api/v1/conversations", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Conversations []*model.Conversation `json:"conversations"`
		ActiveID      string                `json:"active_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Conversations, 2)
	require.Equal(t, second.ID, list.ActiveID)

	rec = doJSON(t, r, http.MethodPost, "/api/v1/conversations/"+created.ID+"/activate", "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, r, http.MethodDelete, "/api/v1/conversations/"+second.ID, "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, r, http.MethodGet, "/api/v1/conversations/"+second.ID, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConversationGet_InvalidID(t *testing.T) {
	r, _ := newTestRouter(t, &fakeStreamer{})

	rec := doJSON(t, r, http.MethodGet, "/api/v1/conversations/not-a-uuid", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendMessage_SSEStream(t *testing.T) {
	gw := &fakeStreamer{deltas: []string{"Hel", "lo"}}
	r, chat := newTestRouter(t, gw)
	conv := chat.NewChat()

	rec := doJSON(t, r, http.MethodPost, "/api/v1/conversations/"+conv.ID+"/messages", `{"text":"hi"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	require.Contains(t, body, "event: token\n")
	require.Contains(t, body, `"token":"Hel"`)
	require.Contains(t, body, `"token":"lo"`)
	require.Contains(t, body, "event: message_complete\n")
	require.Contains(t, body, `"text":"Hello"`)
	require.Contains(t, body, "event: done\n")
}

func TestSendMessage_HeartbeatDuringSlowTurn(t *testing.T) {
	gw := &fakeStreamer{deltas: []string{"slow", " reply"}, pause: 30 * time.Millisecond}

	st, err := store.New(context.Background(), store.Options{
		WelcomeText:  "Welcome!",
		DefaultModel: "claude-3-5-sonnet-20241022",
	})
	require.NoError(t, err)
	chat := service.NewChatService(st, session.NewManager(), gw, nil, nil)
	conv := chat.NewChat()

	messages := NewMessageHandler(chat, logger.NewNop())
	messages.heartbeat = 5 * time.Millisecond

	r := chi.NewRouter()
	r.Post("/api/v1/conversations/{id}/messages", messages.Send)

	rec := doJSON(t, r, http.MethodPost, "/api/v1/conversations/"+conv.ID+"/messages", `{"text":"hi"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	require.Contains(t, body, "event: heartbeat\n")
	require.Contains(t, body, `"timestamp"`)
	require.Contains(t, body, "event: message_complete\n")
	require.Contains(t, body, "event: done\n")
}

func TestSendMessage_EmptyText(t *testing.T) {
	r, chat := newTestRouter(t, &fakeStreamer{})
	conv := chat.NewChat()

	rec := doJSON(t, r, http.MethodPost, "/api/v1/conversations/"+conv.ID+"/messages", `{"text":""}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendMessage_StreamErrorEvent(t *testing.T) {
	gw := &fakeStreamer{deltas: []string{"part"}, err: &gateway.NetworkError{Err: context.DeadlineExceeded}}
	r, chat := newTestRouter(t, gw)
	conv := chat.NewChat()

	rec := doJSON(t, r, http.MethodPost, "/api/v1/conversations/"+conv.ID+"/messages", `{"text":"hi"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	require.Contains(t, body, "event: error\n")
	require.Contains(t, body, `"code":"stream_error"`)
	require.NotContains(t, body, "event: done\n")
}

func TestGenerate_ChatStreamsRawText(t *testing.T) {
	gw := &fakeStreamer{deltas: []string{"Hello ", "world"}}
	r, _ := newTestRouter(t, gw)

	rec := doJSON(t, r, http.MethodPost, "/api/generate",
		`{"type":"chat","payload":{"message":{"parts":[{"text":"hi"}]},"model":"claude-3-5-sonnet-20241022"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	require.Equal(t, "Hello world", rec.Body.String())
}

func TestGenerate_TitleReturnsJSON(t *testing.T) {
	gw := &fakeStreamer{completes: "Trip Planning"}
	r, _ := newTestRouter(t, gw)

	rec := doJSON(t, r, http.MethodPost, "/api/generate",
		`{"type":"generate-title","payload":{"text":"plan my trip to Rome"}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "Trip Planning", resp["text"])
}

func TestGenerate_UnknownType(t *testing.T) {
	r, _ := newTestRouter(t, &fakeStreamer{})

	rec := doJSON(t, r, http.MethodPost, "/api/generate", `{"type":"translate","payload":{}}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerate_ChatWithoutCredential(t *testing.T) {
	r, _ := newTestRouter(t, nil)

	rec := doJSON(t, r, http.MethodPost, "/api/generate",
		`{"type":"chat","payload":{"message":{"parts":[{"text":"hi"}]}}}`)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPreferences_PutValidates(t *testing.T) {
	r, _ := newTestRouter(t, &fakeStreamer{})

	rec := doJSON(t, r, http.MethodPut, "/api/v1/preferences",
		`{"thinking_budget":9}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, r, http.MethodPut, "/api/v1/preferences",
		`{"thinking_budget":3,"selected_model":"gpt-4o"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, r, http.MethodGet, "/api/v1/preferences", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var prefs model.Preferences
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &prefs))
	require.Equal(t, 3, prefs.ThinkingBudget)
	require.Equal(t, "gpt-4o", prefs.SelectedModel)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&gateway.ConfigurationError{Reason: "x"}, http.StatusServiceUnavailable},
		{&gateway.NetworkError{Err: context.DeadlineExceeded}, http.StatusBadGateway},
		{&gateway.APIError{StatusCode: 429}, http.StatusTooManyRequests},
		{&gateway.APIError{StatusCode: 0}, http.StatusBadGateway},
		{store.ErrNotFound, http.StatusNotFound},
		{store.ErrTurnInFlight, http.StatusConflict},
		{store.ErrStreamingConflict, http.StatusConflict},
		{gateway.ErrEmptyResponse, http.StatusBadGateway},
		{context.DeadlineExceeded, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, statusFor(tt.err))
	}
}
