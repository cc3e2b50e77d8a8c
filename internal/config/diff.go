package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	LanguageChanged bool
	NewLanguage     string

	// VoiceChanged is informational only: the voice is fixed at session
	// setup, so a change takes effect on the next connect.
	VoiceChanged bool
	NewVoice     string
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Session.Language != new.Session.Language {
		d.LanguageChanged = true
		d.NewLanguage = new.Session.Language
	}

	if old.Session.Voice != new.Session.Voice {
		d.VoiceChanged = true
		d.NewVoice = new.Session.Voice
	}

	return d
}
