// Package store owns the in-memory conversation state and its
// persistence. All mutation goes through here; every conversation
// handed out crosses the lock boundary as a deep copy, so a streaming
// turn never races a reader or a JSON marshaler.
package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/emberchat/emberchat/internal/model"
	"github.com/emberchat/emberchat/internal/persist"
	"github.com/emberchat/emberchat/pkg/logger"
	"github.com/emberchat/emberchat/pkg/metrics"
)

var (
	// ErrNotFound is returned when a conversation does not exist.
	ErrNotFound = errors.New("conversation not found")

	// ErrTurnInFlight is returned when a turn is already running.
	ErrTurnInFlight = errors.New("a turn is already in flight")

	// ErrStreamingConflict is returned when a second assistant message
	// would be streaming at the same time.
	ErrStreamingConflict = errors.New("another assistant message is still streaming")
)

const flushTimeout = 5 * time.Second

// Store holds all conversations, the active conversation id, the
// loading flag that gates turns, and the user preferences. The
// in-memory state is authoritative; persistence failures are logged
// and swallowed, and the next flush rewrites everything.
type Store struct {
	mu            sync.RWMutex
	conversations map[string]*model.Conversation
	order         []string // insertion order
	activeID      string
	loading       bool
	loadingConv   string
	prefs         model.Preferences

	persist *persist.Store // nil in tests
	logger  *logger.Logger

	welcomeText string
}

// Options configures store construction.
type Options struct {
	Persist     *persist.Store
	Logger      *logger.Logger
	WelcomeText string
	// DefaultModel seeds the selected-model preference when none is
	// persisted.
	DefaultModel string
}

// New creates a store and loads persisted state.
func New(ctx context.Context, opts Options) (*Store, error) {
	s := &Store{
		conversations: make(map[string]*model.Conversation),
		persist:       opts.Persist,
		logger:        opts.Logger,
		welcomeText:   opts.WelcomeText,
		prefs:         model.DefaultPreferences(opts.DefaultModel),
	}
	if s.logger == nil {
		s.logger = logger.NewNop()
	}
	if s.welcomeText == "" {
		s.welcomeText = "Hello! How can I help you today?"
	}

	if s.persist != nil {
		convs, err := s.persist.LoadConversations(ctx)
		if err != nil {
			return nil, err
		}
		for _, c := range convs {
			s.conversations[c.ID] = c
			s.order = append(s.order, c.ID)
		}

		if s.activeID, err = s.persist.LoadActiveID(ctx); err != nil {
			return nil, err
		}
		if _, ok := s.conversations[s.activeID]; !ok {
			s.activeID = ""
		}

		if s.prefs, err = s.persist.LoadPreferences(ctx, opts.DefaultModel); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// flushLocked persists conversations and the active id. Errors are
// logged and swallowed; in-memory state stays authoritative and the
// next mutation rewrites the whole list anyway.
func (s *Store) flushLocked() {
	if s.persist == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	convs := make([]*model.Conversation, 0, len(s.order))
	for _, id := range s.order {
		convs = append(convs, s.conversations[id])
	}

	if err := s.persist.SaveConversations(ctx, convs); err != nil {
		metrics.PersistErrorsTotal.Inc()
		s.logger.Warnw("failed to persist conversations", "error", err)
		return
	}
	if err := s.persist.SaveActiveID(ctx, s.activeID); err != nil {
		metrics.PersistErrorsTotal.Inc()
		s.logger.Warnw("failed to persist active conversation id", "error", err)
	}
}

// CreateConversation creates a conversation seeded with the welcome
// message and makes it active.
func (s *Store) CreateConversation() *model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := model.NewConversation(s.welcomeText)
	s.conversations[conv.ID] = conv
	s.order = append(s.order, conv.ID)
	s.activeID = conv.ID

	metrics.ConversationsTotal.Inc()
	s.flushLocked()
	return conv.Clone()
}

// Get returns a deep copy of the conversation with the given id.
func (s *Store) Get(id string) (*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return conv.Clone(), nil
}

// List returns deep copies of all conversations in insertion order.
func (s *Store) List() []*model.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.Conversation, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.conversations[id].Clone())
	}
	return out
}

// ActiveID returns the active conversation id, or "".
func (s *Store) ActiveID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

// SwitchActive makes the given conversation active.
func (s *Store) SwitchActive(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[id]; !ok {
		return ErrNotFound
	}
	s.activeID = id
	s.flushLocked()
	return nil
}

// DeleteConversation removes a conversation. If it was active, the
// most recently created remaining conversation becomes active.
func (s *Store) DeleteConversation(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[id]; !ok {
		return ErrNotFound
	}
	delete(s.conversations, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	if s.activeID == id {
		s.activeID = ""
		if n := len(s.order); n > 0 {
			s.activeID = s.order[n-1]
		}
	}
	s.flushLocked()
	return nil
}

// BeginTurn acquires the single in-flight turn slot. It fails when a
// turn is already running or when the conversation is not active; a
// send while loading is a no-op for the caller.
func (s *Store) BeginTurn(conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loading {
		return ErrTurnInFlight
	}
	if _, ok := s.conversations[conversationID]; !ok {
		return ErrNotFound
	}
	if s.activeID != conversationID {
		return ErrTurnInFlight
	}
	s.loading = true
	s.loadingConv = conversationID
	return nil
}

// EndTurn releases the in-flight turn slot.
func (s *Store) EndTurn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	s.loadingConv = ""
}

// Loading reports whether a turn is in flight.
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// AppendUserMessage appends a user message and returns a copy of it.
func (s *Store) AppendUserMessage(conversationID, text string) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil, ErrNotFound
	}

	msg := model.NewUserMessage(text)
	conv.Messages = append(conv.Messages, msg)
	conv.UpdatedAt = time.Now()

	metrics.MessagesTotal.WithLabelValues(string(model.RoleUser)).Inc()
	s.flushLocked()
	out := *msg
	return &out, nil
}

// AppendAssistantPlaceholder appends an empty streaming assistant
// message and returns a copy of it. At most one assistant message may
// be streaming per conversation.
func (s *Store) AppendAssistantPlaceholder(conversationID string) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil, ErrNotFound
	}
	for _, m := range conv.Messages {
		if m.Streaming {
			return nil, ErrStreamingConflict
		}
	}

	msg := model.NewAssistantPlaceholder()
	conv.Messages = append(conv.Messages, msg)
	conv.UpdatedAt = time.Now()
	out := *msg
	return &out, nil
}

// UpdateAssistantText commits an incremental text update to a
// streaming assistant message. The commit is dropped silently when the
// conversation is no longer active or the message is gone, so late
// chunks from an abandoned turn never land.
func (s *Store) UpdateAssistantText(conversationID, messageID, text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.activeID != conversationID {
		return false
	}
	conv, ok := s.conversations[conversationID]
	if !ok {
		return false
	}
	msg := conv.Message(messageID)
	if msg == nil {
		return false
	}

	msg.Text = text
	msg.Streaming = true
	return true
}

// FinalizeAssistantMessage marks the assistant message terminal. With
// failed=true the text becomes the user-facing error string and the
// message is flagged errored; partial content is the caller's to keep.
func (s *Store) FinalizeAssistantMessage(conversationID, messageID, text string, failed bool, thinking *model.ThinkingMeta) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return false
	}
	msg := conv.Message(messageID)
	if msg == nil {
		return false
	}

	// An abandoned turn must not change the message after the user
	// switched away; only the streaming flag is cleared.
	if s.activeID != conversationID {
		msg.Streaming = false
		s.flushLocked()
		return false
	}

	msg.Text = text
	msg.Streaming = false
	msg.Error = failed
	msg.Thinking = thinking
	conv.UpdatedAt = time.Now()

	if !failed {
		conv.TitleDirtyCounter++
		metrics.MessagesTotal.WithLabelValues(string(model.RoleAssistant)).Inc()
	}

	s.flushLocked()
	return true
}

// UpdateTitle commits a generated title and resets the dirty counter.
func (s *Store) UpdateTitle(conversationID, title string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return false
	}
	conv.Title = title
	conv.TitleDirtyCounter = 0
	conv.UpdatedAt = time.Now()
	s.flushLocked()
	return true
}

// UpdateSummary replaces the conversation's summary document.
func (s *Store) UpdateSummary(conversationID, summary string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return false
	}
	conv.Summary = summary
	conv.UpdatedAt = time.Now()
	return true
}

// Preferences returns the current preferences.
func (s *Store) Preferences() model.Preferences {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefs
}

// SetPreferences replaces the preferences and persists them.
func (s *Store) SetPreferences(prefs model.Preferences) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.prefs = prefs

	if s.persist != nil {
		ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		defer cancel()
		if err := s.persist.SavePreferences(ctx, prefs); err != nil {
			metrics.PersistErrorsTotal.Inc()
			s.logger.Warnw("failed to persist preferences", "error", err)
		}
	}
}
