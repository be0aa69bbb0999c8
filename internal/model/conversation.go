package model

import (
	"time"

	"github.com/google/uuid"
)

// PlaceholderTitle is the title a conversation carries until the title
// scheduler has produced a real one.
const PlaceholderTitle = "New Chat"

// Conversation represents a conversation thread. Message order is
// insertion order and never reshuffled.
type Conversation struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	Messages  []*Message `json:"messages"`

	// Summary holds the working document for the summarize feature.
	// The in-band replace marker rewrites it mid-stream.
	Summary string `json:"summary,omitempty"`

	// TitleDirtyCounter counts assistant messages committed since the
	// last title refresh.
	TitleDirtyCounter int `json:"title_dirty_counter"`
}

// NewConversation creates a conversation seeded with the synthetic
// welcome message.
func NewConversation(welcomeText string) *Conversation {
	now := time.Now()
	return &Conversation{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Title:     PlaceholderTitle,
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  []*Message{NewWelcomeMessage(welcomeText)},
	}
}

// EffectivelyNew reports whether the conversation is still in
// fresh-landing state: at most one message, and that message is the
// synthetic welcome.
func (c *Conversation) EffectivelyNew() bool {
	if len(c.Messages) == 0 {
		return true
	}
	return len(c.Messages) == 1 && c.Messages[0].IsWelcome()
}

// FirstUserMessage returns the earliest non-empty user message, or nil.
func (c *Conversation) FirstUserMessage() *Message {
	for _, m := range c.Messages {
		if m.Role == RoleUser && m.Text != "" {
			return m
		}
	}
	return nil
}

// Message returns the message with the given id, or nil.
func (c *Conversation) Message(id string) *Message {
	for _, m := range c.Messages {
		if m.ID == id {
			return m
		}
	}
	return nil
}

// Clone returns a deep copy of the conversation. Read paths get
// clones so a streaming turn can mutate the live conversation without
// racing a concurrent reader or marshaler.
func (c *Conversation) Clone() *Conversation {
	out := *c
	out.Messages = make([]*Message, len(c.Messages))
	for i, m := range c.Messages {
		mc := *m
		if m.Thinking != nil {
			t := *m.Thinking
			mc.Thinking = &t
		}
		out.Messages[i] = &mc
	}
	return &out
}

// Snapshot returns a deep copy of the conversation's messages. The
// title scheduler captures one so a later turn cannot mutate the job
// under it.
func (c *Conversation) Snapshot() []Message {
	out := make([]Message, len(c.Messages))
	for i, m := range c.Messages {
		out[i] = *m
	}
	return out
}
