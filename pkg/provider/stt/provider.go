// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a transcription engine (e.g., a local whisper.cpp
// model) and exposes a uniform batch interface: given a recorded take as an
// audio buffer, return time-aligned spans of recognised text. Practice
// recordings are short and complete before transcription starts, so there is
// no streaming surface here.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"time"

	"github.com/cadenza-app/cadenza/pkg/audio"
)

// Span is one time-aligned region of recognised speech.
type Span struct {
	// Text is the transcribed speech content, whitespace-trimmed.
	Text string

	// Start is the span's offset from the beginning of the recording.
	Start time.Duration

	// End is the span's end offset. Always >= Start.
	End time.Duration
}

// Provider is the abstraction over any STT backend.
//
// Implementations must be safe for concurrent use; several takes may be
// transcribed in parallel.
type Provider interface {
	// Transcribe recognises speech in buf and returns the spans in order.
	// language is a BCP-47 primary subtag ("en", "fr"); empty means use the
	// provider default or auto-detect where supported. Implementations
	// resample buf to whatever format the engine needs.
	//
	// A recording with no recognisable speech returns an empty slice and
	// nil error.
	Transcribe(ctx context.Context, buf *audio.Buffer, language string) ([]Span, error)
}
