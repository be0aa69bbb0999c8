package middleware

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestValidateMessageContent(t *testing.T) {
	require.Error(t, ValidateMessageContent(""))
	require.Error(t, ValidateMessageContent(strings.Repeat("a", 100001)))
	require.Error(t, ValidateMessageContent(string([]byte{0xff, 0xfe})))
	require.NoError(t, ValidateMessageContent("hello"))
	require.NoError(t, ValidateMessageContent("héllo 👋"))
}

func TestValidateConversationID(t *testing.T) {
	require.NoError(t, ValidateConversationID(uuid.NewString()))
	require.Error(t, ValidateConversationID("not-a-uuid"))
	require.Error(t, ValidateConversationID(""))
}

func TestValidateThinkingBudget(t *testing.T) {
	for b := 0; b <= 5; b++ {
		require.NoError(t, ValidateThinkingBudget(b))
	}
	require.Error(t, ValidateThinkingBudget(-1))
	require.Error(t, ValidateThinkingBudget(6))
}

func TestValidateTitle(t *testing.T) {
	require.NoError(t, ValidateTitle(""))
	require.NoError(t, ValidateTitle("Trip Planning"))
	require.Error(t, ValidateTitle(strings.Repeat("t", 257)))
}
