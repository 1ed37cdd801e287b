package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; provider and
// storage changes require a restart and are deliberately absent.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	CaptionChanged   bool
	PitchChanged     bool
	TranslateChanged bool
}

// Any reports whether the diff carries at least one change.
func (d ConfigDiff) Any() bool {
	return d.LogLevelChanged || d.CaptionChanged || d.PitchChanged || d.TranslateChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	d.CaptionChanged = old.Pipeline.Caption != new.Pipeline.Caption
	d.PitchChanged = old.Pipeline.Pitch != new.Pipeline.Pitch
	d.TranslateChanged = old.Pipeline.Translate != new.Pipeline.Translate

	return d
}
