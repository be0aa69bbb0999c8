package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/emberchat/emberchat/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(context.Background(), Options{WelcomeText: "Welcome!", DefaultModel: "claude-3-5-sonnet-20241022"})
	require.NoError(t, err)
	return s
}

func TestCreateConversation_SeedsWelcomeAndActivates(t *testing.T) {
	s := newTestStore(t)

	conv := s.CreateConversation()
	require.Equal(t, conv.ID, s.ActiveID())
	require.Equal(t, model.PlaceholderTitle, conv.Title)
	require.Len(t, conv.Messages, 1)
	require.True(t, conv.Messages[0].IsWelcome())
	require.True(t, conv.EffectivelyNew())
}

func TestBeginTurn_SingleInFlight(t *testing.T) {
	s := newTestStore(t)
	conv := s.CreateConversation()

	require.NoError(t, s.BeginTurn(conv.ID))
	require.True(t, s.Loading())

	// A second send while a turn is running must not acquire the slot.
	require.ErrorIs(t, s.BeginTurn(conv.ID), ErrTurnInFlight)

	s.EndTurn()
	require.False(t, s.Loading())
	require.NoError(t, s.BeginTurn(conv.ID))
}

func TestBeginTurn_RequiresActiveConversation(t *testing.T) {
	s := newTestStore(t)
	a := s.CreateConversation()
	b := s.CreateConversation()

	require.Equal(t, b.ID, s.ActiveID())
	require.ErrorIs(t, s.BeginTurn(a.ID), ErrTurnInFlight)
	require.NoError(t, s.BeginTurn(b.ID))
}

func TestBeginTurn_UnknownConversation(t *testing.T) {
	s := newTestStore(t)
	require.ErrorIs(t, s.BeginTurn("nope"), ErrNotFound)
}

func TestAppendAssistantPlaceholder_Conflict(t *testing.T) {
	s := newTestStore(t)
	conv := s.CreateConversation()

	_, err := s.AppendAssistantPlaceholder(conv.ID)
	require.NoError(t, err)

	_, err = s.AppendAssistantPlaceholder(conv.ID)
	require.ErrorIs(t, err, ErrStreamingConflict)
}

func TestUpdateAssistantText_DroppedWhenNotActive(t *testing.T) {
	s := newTestStore(t)
	a := s.CreateConversation()
	msg, err := s.AppendAssistantPlaceholder(a.ID)
	require.NoError(t, err)

	require.True(t, s.UpdateAssistantText(a.ID, msg.ID, "partial"))

	// Switching away mid-stream turns later commits into no-ops.
	b := s.CreateConversation()
	require.Equal(t, b.ID, s.ActiveID())
	require.False(t, s.UpdateAssistantText(a.ID, msg.ID, "partial plus more"))

	got, err := s.Get(a.ID)
	require.NoError(t, err)
	require.Equal(t, "partial", got.Message(msg.ID).Text)
}

func TestFinalizeAssistantMessage_StaleTurnLeavesTextUntouched(t *testing.T) {
	s := newTestStore(t)
	a := s.CreateConversation()
	msg, err := s.AppendAssistantPlaceholder(a.ID)
	require.NoError(t, err)
	require.True(t, s.UpdateAssistantText(a.ID, msg.ID, "partial"))

	s.CreateConversation()

	committed := s.FinalizeAssistantMessage(a.ID, msg.ID, "full answer", false, nil)
	require.False(t, committed)

	got, err := s.Get(a.ID)
	require.NoError(t, err)
	final := got.Message(msg.ID)
	require.Equal(t, "partial", final.Text)
	require.False(t, final.Streaming)
	require.False(t, final.Error)
	require.Zero(t, got.TitleDirtyCounter)
}

func TestFinalizeAssistantMessage_SuccessBumpsDirtyCounter(t *testing.T) {
	s := newTestStore(t)
	conv := s.CreateConversation()
	msg, err := s.AppendAssistantPlaceholder(conv.ID)
	require.NoError(t, err)

	require.True(t, s.FinalizeAssistantMessage(conv.ID, msg.ID, "answer", false, nil))

	got, err := s.Get(conv.ID)
	require.NoError(t, err)
	require.Equal(t, "answer", got.Message(msg.ID).Text)
	require.False(t, got.Message(msg.ID).Streaming)
	require.Equal(t, 1, got.TitleDirtyCounter)
}

func TestFinalizeAssistantMessage_FailureSkipsDirtyCounter(t *testing.T) {
	s := newTestStore(t)
	conv := s.CreateConversation()
	msg, err := s.AppendAssistantPlaceholder(conv.ID)
	require.NoError(t, err)

	require.True(t, s.FinalizeAssistantMessage(conv.ID, msg.ID, "stream failed", true, nil))

	got, err := s.Get(conv.ID)
	require.NoError(t, err)
	require.True(t, got.Message(msg.ID).Error)
	require.Zero(t, got.TitleDirtyCounter)
}

func TestDeleteConversation_ReassignsActive(t *testing.T) {
	s := newTestStore(t)
	a := s.CreateConversation()
	b := s.CreateConversation()
	c := s.CreateConversation()

	require.Equal(t, c.ID, s.ActiveID())
	require.NoError(t, s.DeleteConversation(c.ID))
	require.Equal(t, b.ID, s.ActiveID())

	// Deleting a non-active conversation leaves the active id alone.
	require.NoError(t, s.DeleteConversation(a.ID))
	require.Equal(t, b.ID, s.ActiveID())

	require.NoError(t, s.DeleteConversation(b.ID))
	require.Empty(t, s.ActiveID())

	require.ErrorIs(t, s.DeleteConversation(b.ID), ErrNotFound)
}

func TestGet_ReturnsDetachedCopy(t *testing.T) {
	s := newTestStore(t)
	conv := s.CreateConversation()
	msg, err := s.AppendAssistantPlaceholder(conv.ID)
	require.NoError(t, err)

	before, err := s.Get(conv.ID)
	require.NoError(t, err)

	// A conversation handed to a reader must not observe later
	// streaming writes.
	require.True(t, s.UpdateAssistantText(conv.ID, msg.ID, "streamed"))
	require.Empty(t, before.Message(msg.ID).Text)

	// Nor can a reader's mutation reach the stored state.
	before.Title = "scribbled"
	before.Messages[0].Text = "scribbled"
	after, err := s.Get(conv.ID)
	require.NoError(t, err)
	require.Equal(t, model.PlaceholderTitle, after.Title)
	require.Equal(t, "Welcome!", after.Messages[0].Text)
	require.Equal(t, "streamed", after.Message(msg.ID).Text)
}

func TestList_ReturnsDetachedCopies(t *testing.T) {
	s := newTestStore(t)
	s.CreateConversation()

	list := s.List()
	list[0].Title = "scribbled"
	list[0].Messages[0].Text = "scribbled"

	fresh := s.List()
	require.Equal(t, model.PlaceholderTitle, fresh[0].Title)
	require.Equal(t, "Welcome!", fresh[0].Messages[0].Text)
}

func TestUpdateTitle_ResetsDirtyCounter(t *testing.T) {
	s := newTestStore(t)
	conv := s.CreateConversation()
	msg, err := s.AppendAssistantPlaceholder(conv.ID)
	require.NoError(t, err)
	require.True(t, s.FinalizeAssistantMessage(conv.ID, msg.ID, "answer", false, nil))

	require.True(t, s.UpdateTitle(conv.ID, "Trip Planning"))

	got, err := s.Get(conv.ID)
	require.NoError(t, err)
	require.Equal(t, "Trip Planning", got.Title)
	require.Zero(t, got.TitleDirtyCounter)
}

func TestList_InsertionOrder(t *testing.T) {
	s := newTestStore(t)
	a := s.CreateConversation()
	b := s.CreateConversation()

	list := s.List()
	require.Len(t, list, 2)
	require.Equal(t, a.ID, list[0].ID)
	require.Equal(t, b.ID, list[1].ID)
}

func TestPreferences_Defaults(t *testing.T) {
	s := newTestStore(t)

	prefs := s.Preferences()
	require.Equal(t, "claude-3-5-sonnet-20241022", prefs.SelectedModel)
	require.Zero(t, prefs.ThinkingBudget)

	prefs.ThinkingBudget = 3
	prefs.TargetLanguage = "French"
	s.SetPreferences(prefs)

	got := s.Preferences()
	require.Equal(t, 3, got.ThinkingBudget)
	require.Equal(t, "French", got.TargetLanguage)
}
