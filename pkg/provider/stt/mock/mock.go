// Package mock provides a test double for the stt.Provider interface.
//
// Use Provider to feed controlled transcription spans to consumers and to
// verify the audio and language passed to the STT backend.
package mock

import (
	"context"
	"sync"

	"github.com/cadenza-app/cadenza/pkg/audio"
	"github.com/cadenza-app/cadenza/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Buf is the audio buffer passed to Transcribe.
	Buf *audio.Buffer
	// Language is the language tag passed to Transcribe.
	Language string
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// TranscribeFunc, if set, is called to produce the result. The call is
	// still recorded. Takes precedence over TranscribeResult/TranscribeErr.
	TranscribeFunc func(ctx context.Context, buf *audio.Buffer, language string) ([]stt.Span, error)

	// TranscribeResult is returned by Transcribe.
	TranscribeResult []stt.Span

	// TranscribeErr, if non-nil, is returned as the error from Transcribe.
	TranscribeErr error

	// --- Call records ---

	// TranscribeCalls records every call to Transcribe in order.
	TranscribeCalls []TranscribeCall
}

// Transcribe records the call and returns TranscribeResult, TranscribeErr.
func (p *Provider) Transcribe(ctx context.Context, buf *audio.Buffer, language string) ([]stt.Span, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{Ctx: ctx, Buf: buf, Language: language})
	if p.TranscribeFunc != nil {
		return p.TranscribeFunc(ctx, buf, language)
	}
	return p.TranscribeResult, p.TranscribeErr
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = nil
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)
