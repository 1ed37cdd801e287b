package transcribe_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/cadenza-app/cadenza/internal/transcribe"
	"github.com/cadenza-app/cadenza/pkg/audio"
	"github.com/cadenza-app/cadenza/pkg/caption"
	"github.com/cadenza-app/cadenza/pkg/provider/stt"
	"github.com/cadenza-app/cadenza/pkg/provider/stt/mock"
)

// takeBuffer builds a mono buffer of the given length in seconds filled with
// a nonzero constant so slices are never empty.
func takeBuffer(seconds float64) *audio.Buffer {
	n := int(seconds * float64(audio.CanonicalRate))
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = 0.25
	}
	return &audio.Buffer{SampleRate: audio.CanonicalRate, Channels: [][]float32{samples}}
}

func seg(id string, start, duration float64) caption.Segment {
	return caption.Segment{ID: id, Text: "reference", Start: start, Duration: duration}
}

func TestTranscribeTake_SegmentOrder(t *testing.T) {
	t.Parallel()

	// Identify each slice by its sample count so results can be traced
	// back to the segment that produced them.
	provider := &mock.Provider{
		TranscribeFunc: func(_ context.Context, buf *audio.Buffer, _ string) ([]stt.Span, error) {
			return []stt.Span{{Text: fmt.Sprintf("samples=%d", buf.NumSamples())}}, nil
		},
	}
	tr := transcribe.New(provider)

	segments := []caption.Segment{
		seg("s1", 0, 1),
		seg("s2", 1, 0.5),
		seg("s3", 1.5, 1.5),
	}
	results, err := tr.TranscribeTake(context.Background(), takeBuffer(3), segments)
	if err != nil {
		t.Fatalf("TranscribeTake: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("len(results) = %d, want 3", len(results))
	}
	wantText := []string{
		fmt.Sprintf("samples=%d", audio.CanonicalRate),
		fmt.Sprintf("samples=%d", audio.CanonicalRate/2),
		fmt.Sprintf("samples=%d", audio.CanonicalRate*3/2),
	}
	for i, r := range results {
		if r.SegmentID != segments[i].ID {
			t.Errorf("results[%d].SegmentID = %q, want %q", i, r.SegmentID, segments[i].ID)
		}
		if r.Text != wantText[i] {
			t.Errorf("results[%d].Text = %q, want %q", i, r.Text, wantText[i])
		}
	}
	if got := len(provider.TranscribeCalls); got != 3 {
		t.Errorf("provider calls = %d, want 3", got)
	}
}

func TestTranscribeTake_OutOfRangeSegment(t *testing.T) {
	t.Parallel()

	provider := &mock.Provider{
		TranscribeResult: []stt.Span{{Text: "hello"}},
	}
	tr := transcribe.New(provider)

	segments := []caption.Segment{
		seg("in", 0, 1),
		seg("past-end", 10, 1),
	}
	results, err := tr.TranscribeTake(context.Background(), takeBuffer(2), segments)
	if err != nil {
		t.Fatalf("TranscribeTake: %v", err)
	}
	if results[0].Text != "hello" {
		t.Errorf("results[0].Text = %q, want %q", results[0].Text, "hello")
	}
	if results[1].Text != "" || results[1].Spans != nil {
		t.Errorf("out-of-range segment got %+v, want empty result", results[1])
	}
	if results[1].SegmentID != "past-end" {
		t.Errorf("results[1].SegmentID = %q, want %q", results[1].SegmentID, "past-end")
	}
	if got := len(provider.TranscribeCalls); got != 1 {
		t.Errorf("provider calls = %d, want 1", got)
	}
}

func TestTranscribeTake_NilTake(t *testing.T) {
	t.Parallel()

	tr := transcribe.New(&mock.Provider{})
	if _, err := tr.TranscribeTake(context.Background(), nil, []caption.Segment{seg("a", 0, 1)}); err == nil {
		t.Fatal("expected error for nil take")
	}
}

func TestTranscribeTake_ProviderError(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("backend down")
	provider := &mock.Provider{TranscribeErr: wantErr}
	tr := transcribe.New(provider)

	_, err := tr.TranscribeTake(context.Background(), takeBuffer(2), []caption.Segment{seg("a", 0, 1)})
	if !errors.Is(err, wantErr) {
		t.Fatalf("TranscribeTake error = %v, want wrapped %v", err, wantErr)
	}
}

func TestTranscribeTake_JoinsSpans(t *testing.T) {
	t.Parallel()

	provider := &mock.Provider{
		TranscribeResult: []stt.Span{{Text: "the"}, {Text: ""}, {Text: "quick"}, {Text: "fox"}},
	}
	tr := transcribe.New(provider)

	results, err := tr.TranscribeTake(context.Background(), takeBuffer(1), []caption.Segment{seg("a", 0, 1)})
	if err != nil {
		t.Fatalf("TranscribeTake: %v", err)
	}
	if results[0].Text != "the quick fox" {
		t.Errorf("Text = %q, want %q", results[0].Text, "the quick fox")
	}
	if len(results[0].Spans) != 4 {
		t.Errorf("len(Spans) = %d, want 4", len(results[0].Spans))
	}
}

func TestTranscribeTake_PassesLanguage(t *testing.T) {
	t.Parallel()

	provider := &mock.Provider{}
	tr := transcribe.New(provider, transcribe.WithLanguage("fr"))

	if _, err := tr.TranscribeTake(context.Background(), takeBuffer(1), []caption.Segment{seg("a", 0, 1)}); err != nil {
		t.Fatalf("TranscribeTake: %v", err)
	}
	if got := provider.TranscribeCalls[0].Language; got != "fr" {
		t.Errorf("Language = %q, want %q", got, "fr")
	}
}

func TestSegmentAudio_ChunksAndOffsets(t *testing.T) {
	t.Parallel()

	// 50s of audio with a 30s window and 2s overlap cuts at 0s and 28s; the
	// second chunk is clipped to 22s. The spans returned for the second
	// chunk start with a repeat of the overlap region, which must be
	// dropped during the merge.
	provider := &mock.Provider{
		TranscribeFunc: func(_ context.Context, buf *audio.Buffer, _ string) ([]stt.Span, error) {
			if buf.NumSamples() == 30*audio.CanonicalRate {
				return []stt.Span{
					{Text: "alpha", Start: 0, End: 5 * time.Second},
					{Text: "bravo", Start: 5 * time.Second, End: 29 * time.Second},
				}, nil
			}
			return []stt.Span{
				{Text: "bravo", Start: 0, End: time.Second},
				{Text: "charlie", Start: 2 * time.Second, End: 10 * time.Second},
			}, nil
		},
	}
	tr := transcribe.New(provider)

	segments, err := tr.SegmentAudio(context.Background(), takeBuffer(50))
	if err != nil {
		t.Fatalf("SegmentAudio: %v", err)
	}

	want := []caption.Segment{
		{ID: "seg-0000", Text: "alpha", Start: 0, Duration: 5},
		{ID: "seg-0001", Text: "bravo", Start: 5, Duration: 24},
		{ID: "seg-0002", Text: "charlie", Start: 30, Duration: 8},
	}
	if len(segments) != len(want) {
		t.Fatalf("len(segments) = %d, want %d: %+v", len(segments), len(want), segments)
	}
	for i, w := range want {
		got := segments[i]
		if got.ID != w.ID || got.Text != w.Text {
			t.Errorf("segments[%d] = {%s %q}, want {%s %q}", i, got.ID, got.Text, w.ID, w.Text)
		}
		if math.Abs(got.Start-w.Start) > 1e-6 || math.Abs(got.Duration-w.Duration) > 1e-6 {
			t.Errorf("segments[%d] timing = (%g, %g), want (%g, %g)", i, got.Start, got.Duration, w.Start, w.Duration)
		}
	}
	if got := len(provider.TranscribeCalls); got != 2 {
		t.Errorf("provider calls = %d, want 2", got)
	}
}

func TestSegmentAudio_SingleChunk(t *testing.T) {
	t.Parallel()

	provider := &mock.Provider{
		TranscribeResult: []stt.Span{{Text: "short clip", Start: 0, End: 3 * time.Second}},
	}
	tr := transcribe.New(provider)

	segments, err := tr.SegmentAudio(context.Background(), takeBuffer(10))
	if err != nil {
		t.Fatalf("SegmentAudio: %v", err)
	}
	if len(segments) != 1 || segments[0].Text != "short clip" {
		t.Fatalf("segments = %+v, want one %q segment", segments, "short clip")
	}
	if got := len(provider.TranscribeCalls); got != 1 {
		t.Errorf("provider calls = %d, want 1", got)
	}
}

func TestSegmentAudio_EmptyBuffer(t *testing.T) {
	t.Parallel()

	tr := transcribe.New(&mock.Provider{})
	if _, err := tr.SegmentAudio(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil buffer")
	}
	if _, err := tr.SegmentAudio(context.Background(), &audio.Buffer{SampleRate: audio.CanonicalRate}); err == nil {
		t.Fatal("expected error for empty buffer")
	}
}

func TestSegmentAudio_ProviderError(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("model not loaded")
	tr := transcribe.New(&mock.Provider{TranscribeErr: wantErr})
	if _, err := tr.SegmentAudio(context.Background(), takeBuffer(5)); !errors.Is(err, wantErr) {
		t.Fatalf("SegmentAudio error = %v, want wrapped %v", err, wantErr)
	}
}

func TestTranscribeTake_NoSegments(t *testing.T) {
	t.Parallel()

	tr := transcribe.New(&mock.Provider{})
	results, err := tr.TranscribeTake(context.Background(), takeBuffer(1), nil)
	if err != nil {
		t.Fatalf("TranscribeTake: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("len(results) = %d, want 0", len(results))
	}
}
