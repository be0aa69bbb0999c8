// Package model defines data structures for the chat backend.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// WelcomeMessageID identifies the synthetic greeting that seeds every
// new conversation. It is never sent to the backend.
const WelcomeMessageID = "welcome"

// ThinkingMeta records the reasoning configuration an assistant
// message was produced with.
type ThinkingMeta struct {
	Enabled   bool   `json:"enabled"`
	Budget    int    `json:"budget"`
	ModelUsed string `json:"model_used"`
}

// Message represents a single message in a conversation. Messages are
// owned by the conversation store; ids are unique within a
// conversation and stable once created.
type Message struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	Role Role   `json:"sender"`

	// Streaming state
	Streaming bool `json:"streaming,omitempty"`
	Error     bool `json:"error,omitempty"`

	// Reasoning metadata (assistant messages only)
	Thinking *ThinkingMeta `json:"thinking,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// NewUserMessage creates a user message with a generated id.
func NewUserMessage(text string) *Message {
	return &Message{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Text:      text,
		Role:      RoleUser,
		CreatedAt: time.Now(),
	}
}

// NewAssistantPlaceholder creates an empty assistant message in
// streaming state, to be filled in by the reconciler.
func NewAssistantPlaceholder() *Message {
	return &Message{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Role:      RoleAssistant,
		Streaming: true,
		CreatedAt: time.Now(),
	}
}

// NewWelcomeMessage creates the synthetic greeting for a fresh
// conversation.
func NewWelcomeMessage(text string) *Message {
	return &Message{
		ID:        WelcomeMessageID,
		Text:      text,
		Role:      RoleAssistant,
		CreatedAt: time.Now(),
	}
}

// IsWelcome reports whether this is the synthetic greeting.
func (m *Message) IsWelcome() bool {
	return m.ID == WelcomeMessageID
}
