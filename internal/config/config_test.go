package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/cadenza-app/cadenza/internal/config"
	"github.com/cadenza-app/cadenza/internal/translate"
	"github.com/cadenza-app/cadenza/pkg/caption"
	"github.com/cadenza-app/cadenza/pkg/pitch"
)

const validYAML = `
server:
  listen_addr: ":8080"
  log_level: debug
providers:
  llm:
    name: openai
    api_key: sk-test
    model: gpt-4o
  fallback_llm:
    name: ollama
    base_url: http://localhost:11434
    model: llama3
  tts:
    name: openai
    api_key: sk-test
    model: tts-1
  stt:
    name: whisper
    model: /models/ggml-base.en.bin
pipeline:
  caption:
    echo_cutoff: 0.1
    merge_char_cap: 160
  pitch:
    window_size: 2048
    hop_size: 1024
  translate:
    batch_segment_cap: 10
    batch_timeout_seconds: 30
storage:
  postgres_dsn: postgres://cadenza@localhost/cadenza
`

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q, want %q", cfg.Server.ListenAddr, ":8080")
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("LogLevel = %q, want debug", cfg.Server.LogLevel)
	}
	if cfg.Providers.LLM.Name != "openai" || cfg.Providers.LLM.Model != "gpt-4o" {
		t.Errorf("LLM entry = %+v", cfg.Providers.LLM)
	}
	if cfg.Providers.FallbackLLM.BaseURL != "http://localhost:11434" {
		t.Errorf("FallbackLLM.BaseURL = %q", cfg.Providers.FallbackLLM.BaseURL)
	}
	if cfg.Storage.PostgresDSN == "" {
		t.Error("PostgresDSN not parsed")
	}

	// Explicit values survive, absent knobs pick up defaults.
	if cfg.Pipeline.Caption.EchoCutoff != 0.1 || cfg.Pipeline.Caption.MergeCharCap != 160 {
		t.Errorf("caption knobs = %+v", cfg.Pipeline.Caption)
	}
	if cfg.Pipeline.Caption.MergeGapCap != caption.DefaultMergeGapCap {
		t.Errorf("MergeGapCap = %v, want default %v", cfg.Pipeline.Caption.MergeGapCap, caption.DefaultMergeGapCap)
	}
	if cfg.Pipeline.Pitch.WindowSize != 2048 || cfg.Pipeline.Pitch.HopSize != 1024 {
		t.Errorf("pitch knobs = %+v", cfg.Pipeline.Pitch)
	}
	if cfg.Pipeline.Pitch.NoiseGate != pitch.DefaultNoiseGate {
		t.Errorf("NoiseGate = %v, want default %v", cfg.Pipeline.Pitch.NoiseGate, pitch.DefaultNoiseGate)
	}
	if cfg.Pipeline.Translate.BatchSegmentCap != 10 || cfg.Pipeline.Translate.BatchTimeoutSeconds != 30 {
		t.Errorf("translate knobs = %+v", cfg.Pipeline.Translate)
	}
	if cfg.Pipeline.Translate.MaxAttempts != translate.DefaultMaxAttempts {
		t.Errorf("MaxAttempts = %d, want default %d", cfg.Pipeline.Translate.MaxAttempts, translate.DefaultMaxAttempts)
	}
}

func TestLoadFromReader_RejectsUnknownFields(t *testing.T) {
	t.Parallel()

	_, err := config.LoadFromReader(strings.NewReader("server:\n  listen_adr: \":8080\"\n"))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoadFromReader_BadYAML(t *testing.T) {
	t.Parallel()

	_, err := config.LoadFromReader(strings.NewReader(":\n:::"))
	if err == nil {
		t.Fatal("expected error for malformed yaml")
	}
}

func TestValidate_DefaultsOnEmptyConfig(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Pipeline.Caption.EchoCutoff != caption.DefaultEchoCutoff {
		t.Errorf("EchoCutoff = %v, want default", cfg.Pipeline.Caption.EchoCutoff)
	}
	if cfg.Pipeline.Pitch.WindowSize != pitch.DefaultWindowSize || cfg.Pipeline.Pitch.HopSize != pitch.DefaultHopSize {
		t.Errorf("pitch defaults not applied: %+v", cfg.Pipeline.Pitch)
	}
	if cfg.Pipeline.Pitch.MinHz != pitch.DefaultMinHz || cfg.Pipeline.Pitch.MaxHz != pitch.DefaultMaxHz {
		t.Errorf("vocal range defaults not applied: %+v", cfg.Pipeline.Pitch)
	}
	if cfg.Pipeline.Translate.BatchSegmentCap != translate.DefaultMaxBatchSegments {
		t.Errorf("BatchSegmentCap = %d, want default", cfg.Pipeline.Translate.BatchSegmentCap)
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.Server.LogLevel = "loud"
	cfg.Pipeline.Caption.EchoCutoff = -1
	cfg.Pipeline.Pitch.WindowSize = 512
	cfg.Pipeline.Pitch.HopSize = 1024
	cfg.Pipeline.Pitch.MinHz = 400
	cfg.Pipeline.Pitch.MaxHz = 100

	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("expected validation errors")
	}
	msg := err.Error()
	for _, want := range []string{"log_level", "echo_cutoff", "hop_size", "vocal range"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q does not mention %q", msg, want)
		}
	}
}

func TestValidate_FallbackWithoutPrimary(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.Providers.FallbackLLM.Name = "ollama"

	err := config.Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "fallback_llm") {
		t.Fatalf("Validate = %v, want fallback_llm error", err)
	}
}

func TestValidate_TLSRequiresBothFiles(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.Server.TLS = &config.TLSConfig{CertFile: "cert.pem"}

	err := config.Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "key_file") {
		t.Fatalf("Validate = %v, want tls error", err)
	}
}

func TestTranslateConfig_Policy(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.Pipeline.Translate = config.TranslateConfig{
		BatchSegmentCap:     5,
		BatchCharCap:        500,
		BatchTimeoutSeconds: 15,
		MaxAttempts:         2,
	}
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	p := cfg.Pipeline.Translate.Policy()
	if p.MaxBatchSegments != 5 || p.MaxBatchChars != 500 {
		t.Errorf("policy caps = (%d, %d), want (5, 500)", p.MaxBatchSegments, p.MaxBatchChars)
	}
	if p.BatchTimeout != 15*time.Second {
		t.Errorf("BatchTimeout = %v, want 15s", p.BatchTimeout)
	}
	if p.MaxAttempts != 2 {
		t.Errorf("MaxAttempts = %d, want 2", p.MaxAttempts)
	}
	if p.SegmentOverhead != translate.DefaultSegmentOverhead {
		t.Errorf("SegmentOverhead = %d, want default", p.SegmentOverhead)
	}
}

func TestLogLevel_IsValid(t *testing.T) {
	t.Parallel()

	for _, l := range []config.LogLevel{config.LogDebug, config.LogInfo, config.LogWarn, config.LogError} {
		if !l.IsValid() {
			t.Errorf("%q should be valid", l)
		}
	}
	if config.LogLevel("verbose").IsValid() {
		t.Error("unexpected valid level")
	}
}
