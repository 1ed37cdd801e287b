package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cadenza-app/cadenza/internal/translate"
	"github.com/cadenza-app/cadenza/pkg/caption"
	"github.com/cadenza-app/cadenza/pkg/pitch"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"tts": {"openai"},
	"stt": {"whisper"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values and fills every
// zero pipeline knob with its package default, so a validated config can be
// handed to [CaptionConfig.Options], [PitchConfig.Options], and
// [TranslateConfig.Policy] directly.
//
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Provider name validation, warn for unknown provider names.
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("llm", cfg.Providers.FallbackLLM.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)

	// Provider availability warnings
	if cfg.Providers.LLM.Name == "" {
		slog.Warn("no llm provider configured; translation requests will stamp every segment with the fallback sentinel")
	}
	if cfg.Providers.FallbackLLM.Name != "" && cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.fallback_llm is configured without providers.llm"))
	}

	// Storage availability
	if cfg.Storage.PostgresDSN == "" {
		slog.Warn("storage.postgres_dsn is empty; transcripts will be held in memory only")
	}

	errs = append(errs, validateCaption(&cfg.Pipeline.Caption)...)
	errs = append(errs, validatePitch(&cfg.Pipeline.Pitch)...)
	errs = append(errs, validateTranslate(&cfg.Pipeline.Translate)...)

	return errors.Join(errs...)
}

func validateCaption(c *CaptionConfig) []error {
	var errs []error
	if c.EchoCutoff < 0 {
		errs = append(errs, fmt.Errorf("pipeline.caption.echo_cutoff %.3f must not be negative", c.EchoCutoff))
	}
	if c.EchoCutoff == 0 {
		c.EchoCutoff = caption.DefaultEchoCutoff
	}
	if c.MergeCharCap < 0 {
		errs = append(errs, fmt.Errorf("pipeline.caption.merge_char_cap %d must not be negative", c.MergeCharCap))
	}
	if c.MergeCharCap == 0 {
		c.MergeCharCap = caption.DefaultMergeCharCap
	}
	if c.MergeGapCap < 0 {
		errs = append(errs, fmt.Errorf("pipeline.caption.merge_gap_cap %.3f must not be negative", c.MergeGapCap))
	}
	if c.MergeGapCap == 0 {
		c.MergeGapCap = caption.DefaultMergeGapCap
	}
	return errs
}

func validatePitch(c *PitchConfig) []error {
	var errs []error
	if c.WindowSize < 0 || c.HopSize < 0 {
		errs = append(errs, fmt.Errorf("pipeline.pitch window_size/hop_size must not be negative"))
	}
	if c.WindowSize == 0 {
		c.WindowSize = pitch.DefaultWindowSize
	}
	if c.HopSize == 0 {
		c.HopSize = pitch.DefaultHopSize
	}
	if c.HopSize > c.WindowSize {
		errs = append(errs, fmt.Errorf("pipeline.pitch.hop_size %d exceeds window_size %d", c.HopSize, c.WindowSize))
	}
	if c.NoiseGate < 0 {
		errs = append(errs, fmt.Errorf("pipeline.pitch.noise_gate %.4f must not be negative", c.NoiseGate))
	}
	if c.NoiseGate == 0 {
		c.NoiseGate = pitch.DefaultNoiseGate
	}
	if c.MinHz == 0 {
		c.MinHz = pitch.DefaultMinHz
	}
	if c.MaxHz == 0 {
		c.MaxHz = pitch.DefaultMaxHz
	}
	if c.MinHz <= 0 || c.MaxHz <= c.MinHz {
		errs = append(errs, fmt.Errorf("pipeline.pitch vocal range [%.1f, %.1f] is invalid", c.MinHz, c.MaxHz))
	}
	return errs
}

func validateTranslate(c *TranslateConfig) []error {
	var errs []error
	defaults := translate.DefaultPolicy()
	if c.BatchSegmentCap < 0 || c.BatchCharCap < 0 || c.BatchTimeoutSeconds < 0 || c.MaxAttempts < 0 {
		errs = append(errs, errors.New("pipeline.translate values must not be negative"))
	}
	if c.BatchSegmentCap == 0 {
		c.BatchSegmentCap = defaults.MaxBatchSegments
	}
	if c.BatchCharCap == 0 {
		c.BatchCharCap = defaults.MaxBatchChars
	}
	if c.BatchTimeoutSeconds == 0 {
		c.BatchTimeoutSeconds = int(defaults.BatchTimeout / time.Second)
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = defaults.MaxAttempts
	}
	return errs
}

func secondsToDuration(s int) time.Duration {
	return time.Duration(s) * time.Second
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
