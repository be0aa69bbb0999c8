package model

// Preference defaults used when a key has never been persisted.
const (
	DefaultBaseTheme      = "light"
	DefaultAccentTheme    = "indigo"
	DefaultTargetLanguage = "en"
	DefaultThinkingBudget = 0
)

// Preferences are the persisted user settings. Each field round-trips
// through its own persistence key so they default independently.
type Preferences struct {
	BaseTheme       string `json:"base_theme"`
	AccentTheme     string `json:"accent_theme"`
	CustomStyleText string `json:"custom_style_text"`
	TargetLanguage  string `json:"target_language"`
	ThinkingBudget  int    `json:"thinking_budget"`
	SelectedModel   string `json:"selected_model"`
}

// DefaultPreferences returns preferences with every field at its
// documented default. The selected model default comes from config.
func DefaultPreferences(defaultModel string) Preferences {
	return Preferences{
		BaseTheme:      DefaultBaseTheme,
		AccentTheme:    DefaultAccentTheme,
		TargetLanguage: DefaultTargetLanguage,
		ThinkingBudget: DefaultThinkingBudget,
		SelectedModel:  defaultModel,
	}
}
