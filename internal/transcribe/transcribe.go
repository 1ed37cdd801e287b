// Package transcribe turns a recorded practice take into per-segment text.
//
// A take is one continuous recording of the learner shadowing a transcript.
// The [Transcriber] slices the recording along the segment timeline, runs
// each slice through an [stt.Provider], and returns the recognised text per
// segment so the practice scorer can compare it against the reference.
package transcribe

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/cadenza-app/cadenza/pkg/audio"
	"github.com/cadenza-app/cadenza/pkg/caption"
	"github.com/cadenza-app/cadenza/pkg/provider/stt"
)

// defaultParallelism bounds concurrent provider calls per take.
const defaultParallelism = 4

// Chunking defaults for the captionless path. Windows longer than ~30s
// degrade local whisper accuracy; the overlap keeps words that straddle a
// window boundary from being cut in half.
const (
	defaultChunkWindow  = 30.0
	defaultChunkOverlap = 2.0
)

// Result is the transcription outcome for one segment of a take.
type Result struct {
	// SegmentID identifies the reference segment this slice belongs to.
	SegmentID string `json:"segment_id"`

	// Text is the recognised speech for the slice, span texts joined with
	// single spaces. Empty when the slice was silent or out of range.
	Text string `json:"text"`

	// Spans is the raw time-aligned provider output, offsets relative to
	// the slice start.
	Spans []stt.Span `json:"spans,omitempty"`
}

// Option is a functional option for configuring a [Transcriber].
type Option func(*Transcriber)

// WithLanguage sets the recognition language tag passed to the provider.
func WithLanguage(lang string) Option {
	return func(t *Transcriber) { t.language = lang }
}

// WithParallelism bounds the number of concurrent provider calls.
// Default: 4.
func WithParallelism(n int) Option {
	return func(t *Transcriber) {
		if n > 0 {
			t.parallelism = n
		}
	}
}

// WithChunking sets the window and overlap lengths, in seconds, used by
// [Transcriber.SegmentAudio]. Defaults: 30s windows, 2s overlap. The overlap
// must be shorter than the window; invalid values are ignored.
func WithChunking(window, overlap float64) Option {
	return func(t *Transcriber) {
		if window > 0 && overlap >= 0 && overlap < window {
			t.chunkWindow = window
			t.chunkOverlap = overlap
		}
	}
}

// Transcriber transcribes takes against a segment timeline. It is safe for
// concurrent use.
type Transcriber struct {
	provider     stt.Provider
	language     string
	parallelism  int
	chunkWindow  float64
	chunkOverlap float64
}

// New returns a [Transcriber] backed by the given provider.
func New(provider stt.Provider, opts ...Option) *Transcriber {
	t := &Transcriber{
		provider:     provider,
		parallelism:  defaultParallelism,
		chunkWindow:  defaultChunkWindow,
		chunkOverlap: defaultChunkOverlap,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// TranscribeTake slices take along the segment timeline and transcribes
// each slice. Results come back in segment order, one per input segment. A
// segment whose time range falls outside the recording yields an empty
// Result rather than an error; provider failures abort the whole take.
func (t *Transcriber) TranscribeTake(ctx context.Context, take *audio.Buffer, segments []caption.Segment) ([]Result, error) {
	if take == nil {
		return nil, fmt.Errorf("transcribe: nil take buffer")
	}

	results := make([]Result, len(segments))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.parallelism)
	for i, seg := range segments {
		results[i].SegmentID = seg.ID

		slice := take.Slice(seg.Start, seg.Duration)
		if slice == nil || slice.NumSamples() == 0 {
			continue
		}

		g.Go(func() error {
			spans, err := t.provider.Transcribe(gctx, slice, t.language)
			if err != nil {
				return fmt.Errorf("transcribe: segment %s: %w", seg.ID, err)
			}
			results[i].Spans = spans
			results[i].Text = joinSpans(spans)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

// SegmentAudio builds a segment timeline from a recording that has no
// captions. The buffer is cut into fixed overlapping windows, each window is
// transcribed, and the provider's spans are shifted to absolute offsets.
// Spans that fall entirely inside the previous window's coverage are dropped
// so the overlap does not duplicate text.
func (t *Transcriber) SegmentAudio(ctx context.Context, buf *audio.Buffer) ([]caption.Segment, error) {
	if buf == nil || buf.NumSamples() == 0 {
		return nil, fmt.Errorf("transcribe: empty audio buffer")
	}

	total := buf.Duration().Seconds()
	step := t.chunkWindow - t.chunkOverlap

	var starts []float64
	for start := 0.0; start < total; start += step {
		starts = append(starts, start)
		if start+t.chunkWindow >= total {
			break
		}
	}

	chunkSpans := make([][]stt.Span, len(starts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.parallelism)
	for i, start := range starts {
		chunk := buf.Slice(start, t.chunkWindow)
		if chunk == nil {
			continue
		}
		g.Go(func() error {
			spans, err := t.provider.Transcribe(gctx, chunk, t.language)
			if err != nil {
				return fmt.Errorf("transcribe: chunk at %.1fs: %w", start, err)
			}
			chunkSpans[i] = spans
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var segments []caption.Segment
	covered := 0.0
	for i, spans := range chunkSpans {
		for _, s := range spans {
			text := strings.TrimSpace(s.Text)
			if text == "" {
				continue
			}
			absStart := starts[i] + s.Start.Seconds()
			absEnd := starts[i] + s.End.Seconds()
			if absEnd <= covered {
				continue
			}
			if absEnd <= absStart {
				continue
			}
			segments = append(segments, caption.Segment{
				ID:       fmt.Sprintf("seg-%04d", len(segments)),
				Text:     text,
				Start:    absStart,
				Duration: absEnd - absStart,
			})
			covered = absEnd
		}
	}
	return segments, nil
}

// joinSpans concatenates span texts with single spaces.
func joinSpans(spans []stt.Span) string {
	parts := make([]string, 0, len(spans))
	for _, s := range spans {
		if s.Text != "" {
			parts = append(parts, s.Text)
		}
	}
	return strings.Join(parts, " ")
}
