package translate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/cadenza-app/cadenza/pkg/caption"
	"github.com/cadenza-app/cadenza/pkg/provider/llm"
	"github.com/cadenza-app/cadenza/pkg/provider/llm/mock"
)

// fastPolicy keeps retry loops instant in tests.
func fastPolicy() Policy {
	p := DefaultPolicy()
	p.MaxAttempts = 1
	p.BackoffUnit = 0
	return p
}

func makeSegments(n int) []caption.Segment {
	out := make([]caption.Segment, n)
	for i := range out {
		out[i] = caption.Segment{
			ID:       fmt.Sprintf("seg-%04d", i+1),
			Text:     fmt.Sprintf("Sentence number %d.", i+1),
			Start:    float64(i) * 2,
			Duration: 2,
		}
	}
	return out
}

// echoProvider answers every request with a well-formed translation array.
func echoProvider() *mock.Provider {
	return &mock.Provider{
		CompleteFunc: func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			return translateLines(req), nil
		},
	}
}

// translateLines builds a valid response for the numbered user message.
func translateLines(req llm.CompletionRequest) *llm.CompletionResponse {
	lines := requestLines(req)
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = "FR: " + l
	}
	data, _ := json.Marshal(out)
	return &llm.CompletionResponse{Content: string(data)}
}

func requestLines(req llm.CompletionRequest) []string {
	content := req.Messages[len(req.Messages)-1].Content
	var lines []string
	for _, l := range strings.Split(content, "\n") {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

func TestTranslate_AllBatchesSucceed(t *testing.T) {
	t.Parallel()

	segs := makeSegments(45)
	provider := echoProvider()

	var snapshots []Progress
	out := New(provider, WithPolicy(fastPolicy())).Translate(
		context.Background(), segs, "French",
		func(p Progress) { snapshots = append(snapshots, p) },
	)

	if len(out) != 45 {
		t.Fatalf("got %d segments, want 45", len(out))
	}
	for i, s := range out {
		if s.Translation == "" || s.Translation == FallbackTranslation {
			t.Errorf("segment %d unresolved: %q", i, s.Translation)
		}
	}
	// 45 short segments at the default caps means 20+20+5.
	if provider.CallCount() != 3 {
		t.Errorf("provider called %d times, want 3", provider.CallCount())
	}
	wantCompleted := []int{20, 40, 45}
	if len(snapshots) != len(wantCompleted) {
		t.Fatalf("got %d snapshots, want %d", len(snapshots), len(wantCompleted))
	}
	for i, p := range snapshots {
		if p.Completed != wantCompleted[i] || p.Total != 45 || p.Failed != 0 {
			t.Errorf("snapshot %d = %d/%d failed %d", i, p.Completed, p.Total, p.Failed)
		}
	}
}

func TestTranslate_InputUnmodified(t *testing.T) {
	t.Parallel()

	segs := makeSegments(3)
	out := New(echoProvider(), WithPolicy(fastPolicy())).Translate(
		context.Background(), segs, "French", nil)

	for i := range segs {
		if segs[i].Translation != "" {
			t.Errorf("input segment %d mutated: %q", i, segs[i].Translation)
		}
		if out[i].Text != segs[i].Text {
			t.Errorf("output segment %d text drifted: %q", i, out[i].Text)
		}
	}
}

func TestTranslate_SplitRecovery(t *testing.T) {
	t.Parallel()

	// The whole 20-segment batch fails; sub-batches of 10 or fewer succeed.
	provider := &mock.Provider{}
	provider.CompleteFunc = func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		if len(requestLines(req)) > 10 {
			return nil, errors.New("upstream overloaded")
		}
		return translateLines(req), nil
	}

	segs := makeSegments(20)
	var snapshots []Progress
	out := New(provider, WithPolicy(fastPolicy())).Translate(
		context.Background(), segs, "French",
		func(p Progress) { snapshots = append(snapshots, p) },
	)

	if len(out) != 20 {
		t.Fatalf("got %d segments, want 20", len(out))
	}
	for i, s := range out {
		if s.Translation == "" || s.Translation == FallbackTranslation {
			t.Errorf("segment %d not recovered by split: %q", i, s.Translation)
		}
	}

	prev := 0
	for _, p := range snapshots {
		if p.Completed < prev {
			t.Errorf("progress went backwards: %d after %d", p.Completed, prev)
		}
		prev = p.Completed
	}
	if prev != 20 {
		t.Errorf("final completed = %d, want 20", prev)
	}
}

func TestTranslate_AlwaysFailing(t *testing.T) {
	t.Parallel()

	provider := &mock.Provider{CompleteErr: errors.New("permanently down")}

	segs := makeSegments(7)
	var last Progress
	out := New(provider, WithPolicy(fastPolicy())).Translate(
		context.Background(), segs, "French",
		func(p Progress) { last = p },
	)

	for i, s := range out {
		if s.Translation != FallbackTranslation {
			t.Errorf("segment %d = %q, want fallback sentinel", i, s.Translation)
		}
	}
	if last.Completed != 7 || last.Failed != 7 {
		t.Errorf("final progress = %d completed, %d failed, want 7/7", last.Completed, last.Failed)
	}
}

func TestTranslate_NilProvider(t *testing.T) {
	t.Parallel()

	segs := makeSegments(4)
	var snapshots []Progress
	out := New(nil).Translate(context.Background(), segs, "French",
		func(p Progress) { snapshots = append(snapshots, p) })

	for i, s := range out {
		if s.Translation != FallbackTranslation {
			t.Errorf("segment %d = %q, want fallback sentinel", i, s.Translation)
		}
	}
	if len(snapshots) != 1 || snapshots[0].Completed != 4 || snapshots[0].Failed != 4 {
		t.Errorf("snapshots = %+v", snapshots)
	}
}

func TestTranslate_MissingItemGetsFallback(t *testing.T) {
	t.Parallel()

	provider := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: `["Bonjour", "", "Merci"]`},
	}

	out := New(provider, WithPolicy(fastPolicy())).Translate(
		context.Background(), makeSegments(3), "French", nil)

	if out[0].Translation != "Bonjour" || out[2].Translation != "Merci" {
		t.Errorf("resolved items wrong: %q %q", out[0].Translation, out[2].Translation)
	}
	if out[1].Translation != FallbackTranslation {
		t.Errorf("missing item = %q, want fallback sentinel", out[1].Translation)
	}
}

func TestTranslate_Empty(t *testing.T) {
	t.Parallel()

	called := false
	out := New(echoProvider()).Translate(context.Background(), nil, "French",
		func(Progress) { called = true })
	if len(out) != 0 {
		t.Errorf("got %d segments, want 0", len(out))
	}
	if called {
		t.Error("progress callback fired for empty input")
	}
}

func TestTranslate_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := New(echoProvider(), WithPolicy(fastPolicy())).Translate(
		ctx, makeSegments(5), "French", nil)

	// Never throws: cancellation resolves everything to the sentinel.
	for i, s := range out {
		if s.Translation != FallbackTranslation {
			t.Errorf("segment %d = %q, want fallback sentinel", i, s.Translation)
		}
	}
}

func TestBatchBounds_SegmentCap(t *testing.T) {
	t.Parallel()

	got := batchBounds(makeSegments(45), DefaultPolicy())
	want := []bounds{{0, 20}, {20, 40}, {40, 45}}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("batch %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestBatchBounds_CharCap(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("x", 300)
	segs := make([]caption.Segment, 10)
	for i := range segs {
		segs[i] = caption.Segment{Text: long}
	}

	// Cost per segment is 308; seven fit under 2200, the eighth starts a
	// new batch.
	got := batchBounds(segs, DefaultPolicy())
	if len(got) != 2 || got[0] != (bounds{0, 7}) || got[1] != (bounds{7, 10}) {
		t.Errorf("got %v", got)
	}
}

func TestBatchBounds_OversizedSegment(t *testing.T) {
	t.Parallel()

	segs := []caption.Segment{
		{Text: strings.Repeat("x", 5000)},
		{Text: "short"},
	}
	got := batchBounds(segs, DefaultPolicy())
	if len(got) != 2 || got[0] != (bounds{0, 1}) {
		t.Errorf("oversized segment must form its own batch: %v", got)
	}
}
