// Package session maintains the client-side session context per
// conversation: the cached tuple of model, sampling config, and
// resend-ready history. It is a cache, not a server handle; rebuilding
// is cheap and staleness is the only real failure mode.
package session

import (
	"sync"
	"sync/atomic"

	"github.com/emberchat/emberchat/internal/model"
	"github.com/emberchat/emberchat/pkg/metrics"
)

// Context is the live session state for one conversation.
type Context struct {
	Model             string
	ThinkingBudget    int
	SystemInstruction string
	History           []model.HistoryItem
}

// Manager holds at most one live Context per conversation id. Stale
// contexts are replaced whole, never patched.
type Manager struct {
	mu       sync.Mutex
	contexts map[string]*Context
	rebuilds atomic.Uint64
}

// NewManager creates an empty session manager.
func NewManager() *Manager {
	return &Manager{
		contexts: make(map[string]*Context),
	}
}

// EnsureSession returns the live context for the conversation,
// rebuilding it from the conversation's messages when none exists or
// when model, thinking budget, or system instruction changed.
// Idempotent: unchanged parameters return the existing context with no
// rebuild work.
func (m *Manager) EnsureSession(conv *model.Conversation, modelName string, thinkingBudget int, systemInstruction string) *Context {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ctx, ok := m.contexts[conv.ID]; ok {
		if ctx.Model == modelName &&
			ctx.ThinkingBudget == thinkingBudget &&
			ctx.SystemInstruction == systemInstruction {
			return ctx
		}
	}

	ctx := &Context{
		Model:             modelName,
		ThinkingBudget:    thinkingBudget,
		SystemInstruction: systemInstruction,
		History:           model.BuildHistory(conv),
	}
	m.contexts[conv.ID] = ctx

	m.rebuilds.Add(1)
	metrics.SessionRebuildsTotal.Inc()
	return ctx
}

// Append records a completed exchange on the live context so the next
// turn resends it without a rebuild. No-op when no context is live.
func (m *Manager) Append(conversationID string, userText, assistantText string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, ok := m.contexts[conversationID]
	if !ok {
		return
	}
	if userText != "" {
		ctx.History = append(ctx.History, model.HistoryItem{
			Role:  model.HistoryRoleUser,
			Parts: []model.Part{{Text: userText}},
		})
	}
	if assistantText != "" {
		ctx.History = append(ctx.History, model.HistoryItem{
			Role:  model.HistoryRoleModel,
			Parts: []model.Part{{Text: assistantText}},
		})
	}
}

// Reset drops the conversation's live context unconditionally. The
// next EnsureSession rebuilds from scratch.
func (m *Manager) Reset(conversationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.contexts, conversationID)
}

// ResetAll drops every live context.
func (m *Manager) ResetAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contexts = make(map[string]*Context)
}

// Rebuilds returns the number of context rebuilds performed.
func (m *Manager) Rebuilds() uint64 {
	return m.rebuilds.Load()
}
