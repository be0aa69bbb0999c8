package title

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/emberchat/emberchat/internal/gateway"
	"github.com/emberchat/emberchat/internal/model"
)

// fakeStore implements Conversations for scheduler tests.
type fakeStore struct {
	convs    map[string]*model.Conversation
	activeID string
	titles   map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		convs:  make(map[string]*model.Conversation),
		titles: make(map[string]string),
	}
}

func (f *fakeStore) add(conv *model.Conversation) *model.Conversation {
	f.convs[conv.ID] = conv
	f.activeID = conv.ID
	return conv
}

func (f *fakeStore) Get(id string) (*model.Conversation, error) {
	conv, ok := f.convs[id]
	if !ok {
		return nil, errors.New("conversation not found")
	}
	return conv, nil
}

func (f *fakeStore) ActiveID() string { return f.activeID }

func (f *fakeStore) UpdateTitle(id, title string) bool {
	f.titles[id] = title
	return true
}

func (f *fakeStore) Preferences() model.Preferences {
	return model.DefaultPreferences("gpt-4o")
}

// fakeCompleter returns a canned response or error.
type fakeCompleter struct {
	response string
	err      error
	calls    int
	prompt   string
}

func (f *fakeCompleter) Complete(ctx context.Context, prompt, modelName string, cfg gateway.SamplingConfig) (string, error) {
	f.calls++
	f.prompt = prompt
	return f.response, f.err
}

func withUserMessage(text string) *model.Conversation {
	conv := model.NewConversation("Welcome!")
	conv.Messages = append(conv.Messages, model.NewUserMessage(text))
	return conv
}

func TestScheduler_FallbackOnGatewayFailure(t *testing.T) {
	store := newFakeStore()
	conv := store.add(withUserMessage("Plan my trip to Rome"))

	completer := &fakeCompleter{err: errors.New("boom")}
	s := NewScheduler(store, completer, time.Hour, nil)

	s.Schedule(conv.ID, true)
	s.fire()

	require.Equal(t, "Plan my trip to...", store.titles[conv.ID])
	require.Equal(t, 1, completer.calls)
}

func TestScheduler_GeneratedTitleIsCleaned(t *testing.T) {
	store := newFakeStore()
	conv := store.add(withUserMessage("hello"))

	completer := &fakeCompleter{response: "\"Title: A Very Long Generated Name For This Conversation\""}
	s := NewScheduler(store, completer, time.Hour, nil)

	s.Schedule(conv.ID, true)
	s.fire()

	require.Equal(t, "A Very Long Generated Name For This...", store.titles[conv.ID])
}

func TestScheduler_PlaceholderWithoutUserMessage(t *testing.T) {
	store := newFakeStore()
	conv := store.add(model.NewConversation("Welcome!"))

	completer := &fakeCompleter{response: "unused"}
	s := NewScheduler(store, completer, time.Hour, nil)

	s.Schedule(conv.ID, true)
	s.fire()

	require.Equal(t, model.PlaceholderTitle, store.titles[conv.ID])
	require.Zero(t, completer.calls, "no network call without a user message")
}

func TestScheduler_StaleJobSkipped(t *testing.T) {
	store := newFakeStore()
	conv := store.add(withUserMessage("first"))
	other := store.add(withUserMessage("second")) // becomes active

	completer := &fakeCompleter{response: "unused"}
	s := NewScheduler(store, completer, time.Hour, nil)

	// Periodic refresh for a conversation the user left: skipped.
	s.Schedule(conv.ID, false)
	s.fire()

	require.NotContains(t, store.titles, conv.ID)
	require.Zero(t, completer.calls)

	// A first-title job survives the user moving on.
	store.activeID = conv.ID
	s.Schedule(other.ID, true)
	s.fire()
	require.Contains(t, store.titles, other.ID)
}

func TestScheduler_LastWriteWins(t *testing.T) {
	store := newFakeStore()
	first := store.add(withUserMessage("first topic"))
	second := store.add(withUserMessage("second topic"))

	completer := &fakeCompleter{err: errors.New("force fallback")}
	s := NewScheduler(store, completer, time.Hour, nil)

	s.Schedule(first.ID, true)
	s.Schedule(second.ID, true)
	s.fire()

	require.NotContains(t, store.titles, first.ID, "overwritten job must not run")
	require.Equal(t, "second topic", store.titles[second.ID])

	// The pending slot is consumed; firing again is a no-op.
	s.fire()
	require.Equal(t, 1, completer.calls)
}

func TestScheduler_NilGatewayFallsBack(t *testing.T) {
	store := newFakeStore()
	conv := store.add(withUserMessage("just two"))

	s := NewScheduler(store, nil, time.Hour, nil)
	s.Schedule(conv.ID, true)
	s.fire()

	require.Equal(t, "just two", store.titles[conv.ID])
}

func TestScheduler_ContextTruncation(t *testing.T) {
	store := newFakeStore()
	conv := model.NewConversation("Welcome!")
	long := make([]byte, 4000)
	for i := range long {
		long[i] = 'x'
	}
	conv.Messages = append(conv.Messages, model.NewUserMessage(string(long)))
	store.add(conv)

	completer := &fakeCompleter{response: "Long Input"}
	s := NewScheduler(store, completer, time.Hour, nil)

	s.Schedule(conv.ID, true)
	s.fire()

	require.LessOrEqual(t, len(completer.prompt), contextLimit+200,
		"conversation context must be truncated to its trailing %d chars", contextLimit)
}

func TestCleanTitle(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Rome Trip", "Rome Trip"},
		{"quoted", "\"Rome Trip\"", "Rome Trip"},
		{"curly quotes", "“Rome Trip”", "Rome Trip"},
		{"title prefix", "Title: Rome Trip", "Rome Trip"},
		{"prefix case", "title: Rome Trip", "Rome Trip"},
		{"quoted prefix", "\"Title: Rome Trip\"", "Rome Trip"},
		{"seven word cap", "one two three four five six seven eight", "one two three four five six seven..."},
		{"whitespace", "  Rome Trip \n", "Rome Trip"},
		{"empty", "   ", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, CleanTitle(tc.in))
		})
	}
}

func TestFallbackTitle(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"truncated", "Plan my trip to Rome", "Plan my trip to..."},
		{"exact", "just four words here", "just four words here"},
		{"short", "hello", "hello"},
		{"empty", "   ", model.PlaceholderTitle},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, FallbackTitle(tc.in))
		})
	}
}
