package config_test

import (
	"testing"

	"github.com/cadenza-app/cadenza/internal/config"
)

func baseConfig() *config.Config {
	cfg := &config.Config{}
	if err := config.Validate(cfg); err != nil {
		panic(err)
	}
	cfg.Server.LogLevel = config.LogInfo
	return cfg
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()

	old := baseConfig()
	new := baseConfig()

	d := config.Diff(old, new)
	if d.Any() {
		t.Errorf("Diff = %+v, want no changes", d)
	}
}

func TestDiff_LogLevel(t *testing.T) {
	t.Parallel()

	old := baseConfig()
	new := baseConfig()
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
		t.Errorf("Diff = %+v, want log level change to debug", d)
	}
	if d.CaptionChanged || d.PitchChanged || d.TranslateChanged {
		t.Errorf("unexpected pipeline changes: %+v", d)
	}
}

func TestDiff_PipelineSections(t *testing.T) {
	t.Parallel()

	old := baseConfig()
	new := baseConfig()
	new.Pipeline.Caption.MergeCharCap = 120
	new.Pipeline.Translate.MaxAttempts = 5

	d := config.Diff(old, new)
	if !d.CaptionChanged || !d.TranslateChanged {
		t.Errorf("Diff = %+v, want caption and translate changes", d)
	}
	if d.PitchChanged {
		t.Error("pitch flagged changed without a change")
	}
	if !d.Any() {
		t.Error("Any() = false with changes present")
	}
}
