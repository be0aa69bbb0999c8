package model

// HistoryRole is the wire-format role for backend history items.
type HistoryRole string

const (
	HistoryRoleUser  HistoryRole = "user"
	HistoryRoleModel HistoryRole = "model"
)

// InlineData carries non-text content inside a history part.
type InlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"` // base64
}

// Part is one unit of history content, either text or inline data.
type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inline_data,omitempty"`
}

// HistoryItem is the wire representation of one message sent to the
// backend when a turn resends conversation history.
type HistoryItem struct {
	Role  HistoryRole `json:"role"`
	Parts []Part      `json:"parts"`
}

// BuildHistory maps conversation messages to backend history items.
// The synthetic welcome message and empty-text messages are excluded.
func BuildHistory(c *Conversation) []HistoryItem {
	items := make([]HistoryItem, 0, len(c.Messages))
	for _, m := range c.Messages {
		if m.IsWelcome() || m.Text == "" {
			continue
		}
		role := HistoryRoleUser
		if m.Role == RoleAssistant {
			role = HistoryRoleModel
		}
		items = append(items, HistoryItem{
			Role:  role,
			Parts: []Part{{Text: m.Text}},
		})
	}
	return items
}
