package model

import (
	"testing"
)

func TestBuildHistory_WelcomeOnlyIsEmpty(t *testing.T) {
	conv := NewConversation("Hello! How can I help?")

	history := BuildHistory(conv)
	if len(history) != 0 {
		t.Fatalf("welcome-only conversation must map to empty history, got %d items", len(history))
	}
}

func TestBuildHistory_RolesAndExclusions(t *testing.T) {
	conv := NewConversation("Welcome!")
	conv.Messages = append(conv.Messages,
		&Message{ID: "u1", Role: RoleUser, Text: "first"},
		&Message{ID: "a1", Role: RoleAssistant, Text: "reply"},
		&Message{ID: "u2", Role: RoleUser, Text: ""}, // empty, excluded
	)

	history := BuildHistory(conv)
	if len(history) != 2 {
		t.Fatalf("expected 2 history items, got %d", len(history))
	}
	if history[0].Role != HistoryRoleUser || history[0].Parts[0].Text != "first" {
		t.Errorf("unexpected first item: %+v", history[0])
	}
	if history[1].Role != HistoryRoleModel || history[1].Parts[0].Text != "reply" {
		t.Errorf("unexpected second item: %+v", history[1])
	}
}

func TestConversation_EffectivelyNew(t *testing.T) {
	conv := NewConversation("Welcome!")
	if !conv.EffectivelyNew() {
		t.Error("fresh conversation must be effectively new")
	}

	conv.Messages = append(conv.Messages, NewUserMessage("hi"))
	if conv.EffectivelyNew() {
		t.Error("conversation with a user message is not effectively new")
	}
}

func TestConversation_Snapshot_Isolated(t *testing.T) {
	conv := NewConversation("Welcome!")
	conv.Messages = append(conv.Messages, NewUserMessage("original"))

	snap := conv.Snapshot()
	conv.Messages[1].Text = "mutated"

	if snap[1].Text != "original" {
		t.Errorf("snapshot must not see later mutation, got %q", snap[1].Text)
	}
}
