// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service and presents a uniform
// one-shot interface: given a sentence and a voice, return a decoded audio
// buffer. Synthesised audio is the reference track a learner shadows, so
// providers should favour natural prosody over latency.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"

	"github.com/cadenza-app/cadenza/pkg/audio"
)

// VoiceProfile describes a TTS voice configuration.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Provider identifies which TTS provider this voice belongs to.
	Provider string

	// SpeedFactor adjusts speaking rate (0.5 to 2.0, 1.0 = default). Slowed
	// speech is useful for early shadowing passes.
	SpeedFactor float64

	// Metadata holds provider-specific voice attributes (gender, accent, etc.).
	Metadata map[string]string
}

// Provider is the abstraction over any TTS backend.
//
// Implementations must be safe for concurrent use; reference audio for
// several segments may be synthesised in parallel.
type Provider interface {
	// Synthesize renders text in the given voice and returns the decoded
	// audio at the provider's native sample rate. Callers needing the
	// canonical analysis format should pass the result through
	// audio.Resample.
	//
	// Returns an error if the voice is unknown, the text is empty, the
	// provider cannot be reached, or ctx is cancelled mid-request.
	Synthesize(ctx context.Context, text string, voice VoiceProfile) (*audio.Buffer, error)

	// ListVoices returns all voice profiles available from this provider.
	// The list reflects the provider's current catalogue and may change
	// between calls.
	ListVoices(ctx context.Context) ([]VoiceProfile, error)
}
