package models

// SettingKey names an admin-editable bot text.
type SettingKey string

const (
	SettingWelcome    SettingKey = "welcome_message"
	SettingNoMatch    SettingKey = "no_match_message"
	SettingCompletion SettingKey = "completion_message"
)

// SettingKeys lists every known key in display order.
var SettingKeys = []SettingKey{SettingWelcome, SettingNoMatch, SettingCompletion}

type Settings struct {
	WelcomeMessage    string
	NoMatchMessage    string
	CompletionMessage string
}

// DefaultSettings holds the texts used until an admin overrides them.
func DefaultSettings() Settings {
	return Settings{
		WelcomeMessage:    "👋 Welcome! Send a photo and set /nickname and /age, then use /match to meet today's partner.",
		NoMatchMessage:    "😔 No match available today.",
		CompletionMessage: "🎉 The puzzle is complete! Here is your match:",
	}
}

func (s *Settings) field(key SettingKey) *string {
	switch key {
	case SettingWelcome:
		return &s.WelcomeMessage
	case SettingNoMatch:
		return &s.NoMatchMessage
	case SettingCompletion:
		return &s.CompletionMessage
	}
	return nil
}

// Value returns the text stored under key, or "" for an unknown key.
func (s *Settings) Value(key SettingKey) string {
	if f := s.field(key); f != nil {
		return *f
	}
	return ""
}

// Apply stores value under key and reports whether the key is known.
func (s *Settings) Apply(key SettingKey, value string) bool {
	f := s.field(key)
	if f == nil {
		return false
	}
	*f = value
	return true
}

func IsSettingKey(key SettingKey) bool {
	var s Settings
	return s.field(key) != nil
}
