// Package service orchestrates chat turns: gate on the loading flag,
// append the user message, ensure a session context, stream from the
// gateway, reconcile deltas into the assistant message, finalize, and
// nudge the title scheduler.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/emberchat/emberchat/internal/gateway"
	"github.com/emberchat/emberchat/internal/model"
	"github.com/emberchat/emberchat/internal/reconcile"
	"github.com/emberchat/emberchat/internal/session"
	"github.com/emberchat/emberchat/internal/store"
	"github.com/emberchat/emberchat/internal/title"
	"github.com/emberchat/emberchat/pkg/logger"
	"github.com/emberchat/emberchat/pkg/metrics"
)

// streamErrorText is the user-facing text for a failed turn.
const streamErrorText = "Something went wrong while generating a response. Please try again."

// emptyResponseText is the user-visible, non-fatal note for a stream
// that completed with zero content.
const emptyResponseText = "The model returned an empty response."

// Streamer is the slice of the gateway the service needs.
type Streamer interface {
	StreamTurn(ctx context.Context, prior []model.HistoryItem, parts []model.Part, modelName string, cfg gateway.SamplingConfig, onDelta gateway.DeltaFunc) error
	Complete(ctx context.Context, prompt, modelName string, cfg gateway.SamplingConfig) (string, error)
}

// TurnEvents receives live updates during a turn. Any callback may be
// nil.
type TurnEvents struct {
	// OnToken receives each normal-output text delta in arrival order.
	OnToken func(delta string, index int) error

	// OnReplacementStarted fires once when the stream switches to
	// summary replacement.
	OnReplacementStarted func() error

	// OnReplacement receives the full replacement text after each
	// delta in replacing mode.
	OnReplacement func(text string) error
}

// ChatService runs the turn lifecycle.
type ChatService struct {
	store    *store.Store
	sessions *session.Manager
	gateway  Streamer // nil when no credential is configured
	titles   *title.Scheduler
	logger   *logger.Logger
}

// NewChatService creates the service.
func NewChatService(st *store.Store, sessions *session.Manager, gw Streamer, titles *title.Scheduler, log *logger.Logger) *ChatService {
	if log == nil {
		log = logger.NewNop()
	}
	return &ChatService{
		store:    st,
		sessions: sessions,
		gateway:  gw,
		titles:   titles,
		logger:   log,
	}
}

// Store exposes the conversation store for read paths.
func (s *ChatService) Store() *store.Store {
	return s.store
}

// NewChat creates a conversation and makes it active. Any live session
// contexts are dropped; the next turn rebuilds from scratch.
func (s *ChatService) NewChat() *model.Conversation {
	conv := s.store.CreateConversation()
	s.sessions.ResetAll()
	return conv
}

// SwitchConversation makes another conversation active and invalidates
// live session state.
func (s *ChatService) SwitchConversation(id string) error {
	if err := s.store.SwitchActive(id); err != nil {
		return err
	}
	s.sessions.ResetAll()
	return nil
}

// DeleteConversation removes a conversation and its session context.
func (s *ChatService) DeleteConversation(id string) error {
	if err := s.store.DeleteConversation(id); err != nil {
		return err
	}
	s.sessions.Reset(id)
	return nil
}

// turnSink commits reconciled updates to the store and forwards them
// to the caller. Store commits are guarded by the active-conversation
// check inside the store; a dropped commit stops nothing and reports
// nothing, which is exactly the stale-turn contract.
type turnSink struct {
	store   *store.Store
	convID  string
	msgID   string
	events  TurnEvents
	lastLen int
	index   int
}

func (t *turnSink) UpdateText(accumulated string) error {
	t.store.UpdateAssistantText(t.convID, t.msgID, accumulated)

	if t.events.OnToken != nil {
		delta := accumulated[t.lastLen:]
		t.lastLen = len(accumulated)
		if delta != "" {
			if err := t.events.OnToken(delta, t.index); err != nil {
				return err
			}
			t.index++
		}
	} else {
		t.lastLen = len(accumulated)
	}
	return nil
}

func (t *turnSink) ReplacementStarted() error {
	if t.events.OnReplacementStarted != nil {
		return t.events.OnReplacementStarted()
	}
	return nil
}

func (t *turnSink) UpdateReplacement(accumulated string) error {
	t.store.UpdateSummary(t.convID, accumulated)
	if t.events.OnReplacement != nil {
		return t.events.OnReplacement(accumulated)
	}
	return nil
}

// SendMessage runs one full turn for the active conversation. A send
// while another turn is in flight is a no-op returning
// store.ErrTurnInFlight; no duplicate user message is appended.
func (s *ChatService) SendMessage(ctx context.Context, conversationID, text string, events TurnEvents) (*model.Message, error) {
	if s.gateway == nil {
		return nil, &gateway.ConfigurationError{Reason: "no API credential configured"}
	}

	if err := s.store.BeginTurn(conversationID); err != nil {
		return nil, err
	}
	defer s.store.EndTurn()

	conv, err := s.store.Get(conversationID)
	if err != nil {
		return nil, err
	}
	wasNew := conv.EffectivelyNew()

	prefs := s.store.Preferences()
	modelName := prefs.SelectedModel
	budget := gateway.ClampThinkingBudget(prefs.ThinkingBudget)
	sysInstr := gateway.BuildSystemInstruction(prefs.CustomStyleText, prefs.TargetLanguage)

	// The session context must not contain the message we are about to
	// send, so it is ensured before the append.
	sess := s.sessions.EnsureSession(conv, modelName, budget, sysInstr)

	if _, err := s.store.AppendUserMessage(conversationID, text); err != nil {
		return nil, err
	}
	if wasNew && s.titles != nil {
		s.titles.Schedule(conversationID, true)
	}

	placeholder, err := s.store.AppendAssistantPlaceholder(conversationID)
	if err != nil {
		return nil, err
	}

	sink := &turnSink{store: s.store, convID: conversationID, msgID: placeholder.ID, events: events}
	rec := reconcile.New(sink)

	start := time.Now()
	streamErr := s.gateway.StreamTurn(ctx, sess.History, []model.Part{{Text: text}}, modelName, gateway.SamplingConfig{
		ThinkingBudget:    budget,
		SystemInstruction: sysInstr,
	}, func(delta string) error {
		metrics.StreamDeltasTotal.WithLabelValues(modelName).Inc()
		return rec.Feed(delta)
	})

	var thinking *model.ThinkingMeta
	if budget > 0 && gateway.SupportsThinking(modelName) {
		thinking = &model.ThinkingMeta{Enabled: true, Budget: budget, ModelUsed: modelName}
	}

	if streamErr != nil {
		// Partial content stays; the error note is appended, never a
		// rollback.
		text := streamErrorText
		if partial := rec.Accumulated(); partial != "" {
			text = partial + "\n\n" + streamErrorText
		}
		s.store.FinalizeAssistantMessage(conversationID, placeholder.ID, text, true, thinking)
		metrics.RecordTurn(modelName, "error", time.Since(start).Seconds())
		s.logger.Warnw("turn failed", "conversation_id", conversationID, "error", streamErr)
		return s.finalMessage(conversationID, placeholder), streamErr
	}

	final, empty, err := rec.Finish()
	if err != nil {
		s.store.FinalizeAssistantMessage(conversationID, placeholder.ID, streamErrorText, true, thinking)
		metrics.RecordTurn(modelName, "error", time.Since(start).Seconds())
		return s.finalMessage(conversationID, placeholder), err
	}

	if empty {
		s.store.FinalizeAssistantMessage(conversationID, placeholder.ID, emptyResponseText, true, thinking)
		metrics.RecordTurn(modelName, "empty", time.Since(start).Seconds())
		return s.finalMessage(conversationID, placeholder), gateway.ErrEmptyResponse
	}

	committed := s.store.FinalizeAssistantMessage(conversationID, placeholder.ID, final, false, thinking)
	metrics.RecordTurn(modelName, "success", time.Since(start).Seconds())
	out := s.finalMessage(conversationID, placeholder)
	if !committed {
		// The user switched away mid-stream; the turn is abandoned and
		// leaves no further trace.
		return out, nil
	}
	s.sessions.Append(conversationID, text, final)

	// Periodic title refresh once the placeholder has been replaced.
	if s.titles != nil {
		if conv, err := s.store.Get(conversationID); err == nil {
			if conv.TitleDirtyCounter >= title.RefreshThreshold && conv.Title != model.PlaceholderTitle {
				s.titles.Schedule(conversationID, false)
			}
		}
	}

	return out, nil
}

// finalMessage reads the assistant message's committed state back out
// of the store. The placeholder copy handed out at append time does
// not track later commits; the live object never leaves the lock.
func (s *ChatService) finalMessage(conversationID string, placeholder *model.Message) *model.Message {
	conv, err := s.store.Get(conversationID)
	if err != nil {
		return placeholder
	}
	if m := conv.Message(placeholder.ID); m != nil {
		return m
	}
	return placeholder
}

// Summarize runs a one-shot summarization of arbitrary text.
func (s *ChatService) Summarize(ctx context.Context, text string) (string, error) {
	if s.gateway == nil {
		return "", &gateway.ConfigurationError{Reason: "no API credential configured"}
	}

	prefs := s.store.Preferences()
	prompt := "Summarize the following text concisely, keeping the key points:\n\n" + text
	out, err := s.gateway.Complete(ctx, prompt, prefs.SelectedModel, gateway.SamplingConfig{
		SystemInstruction: gateway.BuildSystemInstruction(prefs.CustomStyleText, prefs.TargetLanguage),
	})
	if err != nil {
		return "", err
	}
	if out == "" {
		return "", gateway.ErrEmptyResponse
	}
	return out, nil
}

// GenerateTitle runs a one-shot title generation over arbitrary text.
// Unlike the background scheduler this surfaces errors to the caller;
// the wire contract for the generate endpoint reports them.
func (s *ChatService) GenerateTitle(ctx context.Context, text string) (string, error) {
	if s.gateway == nil {
		return "", &gateway.ConfigurationError{Reason: "no API credential configured"}
	}

	prefs := s.store.Preferences()
	prompt := "Summarize this text in a very short title of at most seven words. " +
		"Respond with the title only, no quotes.\n\n" + text
	out, err := s.gateway.Complete(ctx, prompt, prefs.SelectedModel, gateway.SamplingConfig{})
	if err != nil {
		return "", err
	}
	cleaned := title.CleanTitle(out)
	if cleaned == "" {
		return "", gateway.ErrEmptyResponse
	}
	return cleaned, nil
}

// IsTurnConflict reports whether the error is the duplicate-send
// no-op.
func IsTurnConflict(err error) bool {
	return errors.Is(err, store.ErrTurnInFlight)
}
