// Package openai provides a TTS provider backed by the OpenAI speech API.
package openai

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/cadenza-app/cadenza/pkg/audio"
	"github.com/cadenza-app/cadenza/pkg/provider/tts"
)

// pcmSampleRate is the fixed output rate of the OpenAI speech API when
// requesting the raw PCM response format (mono, 16-bit little-endian).
const pcmSampleRate = 24000

// defaultVoice is used when the caller leaves the voice unselected.
const defaultVoice = "alloy"

// Provider implements tts.Provider using the OpenAI speech API.
type Provider struct {
	client oai.Client
	model  string
}

// config holds optional configuration for the provider.
type config struct {
	baseURL string
	timeout time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a new OpenAI TTS Provider. model is a speech model name
// such as "tts-1", "tts-1-hd", or "gpt-4o-mini-tts".
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("openai: model must not be empty")
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Provider{client: oai.NewClient(reqOpts...), model: model}, nil
}

// Synthesize implements tts.Provider. The audio comes back as headerless
// 24kHz mono PCM and is decoded into an audio.Buffer at that rate.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) (*audio.Buffer, error) {
	if text == "" {
		return nil, fmt.Errorf("openai: text must not be empty")
	}

	resp, err := p.client.Audio.Speech.New(ctx, p.speechParams(text, voice))
	if err != nil {
		return nil, fmt.Errorf("openai: speech synthesis: %w", err)
	}
	defer resp.Body.Close()

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai: read speech response: %w", err)
	}

	buf, err := audio.FromPCM16(pcm, pcmSampleRate, 1)
	if err != nil {
		return nil, fmt.Errorf("openai: decode speech response: %w", err)
	}
	return buf, nil
}

// speechParams builds the request parameters for one synthesis call. An
// unset voice falls back to defaultVoice.
func (p *Provider) speechParams(text string, voice tts.VoiceProfile) oai.AudioSpeechNewParams {
	id := voice.ID
	if id == "" {
		id = defaultVoice
	}
	params := oai.AudioSpeechNewParams{
		Model:          p.model,
		Input:          text,
		Voice:          oai.AudioSpeechNewParamsVoice(id),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatPCM,
	}
	if voice.SpeedFactor > 0 && voice.SpeedFactor != 1 {
		params.Speed = param.NewOpt(voice.SpeedFactor)
	}
	return params
}

// ListVoices implements tts.Provider. The OpenAI API has no voice listing
// endpoint, so this returns the documented fixed catalogue.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	names := []string{"alloy", "ash", "coral", "echo", "fable", "onyx", "nova", "sage", "shimmer"}
	voices := make([]tts.VoiceProfile, 0, len(names))
	for _, name := range names {
		voices = append(voices, tts.VoiceProfile{
			ID:          name,
			Name:        name,
			Provider:    "openai",
			SpeedFactor: 1.0,
		})
	}
	return voices, nil
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)
