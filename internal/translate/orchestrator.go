// Package translate implements the batch translation orchestrator: it
// partitions an ordered segment list into size-bounded batches, submits each
// batch to an [llm.Provider] under a timeout, retries transient failures
// with linear backoff, and degrades by recursively halving a failing batch
// until the failure is isolated to single segments.
//
// Translation is best-effort by contract: Translate never returns an error.
// A segment whose translation cannot be obtained after all recovery attempts
// is stamped with [FallbackTranslation] so downstream rendering never sees a
// missing field.
package translate

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cadenza-app/cadenza/pkg/caption"
	"github.com/cadenza-app/cadenza/pkg/provider/llm"
)

// FallbackTranslation is stamped on any segment whose translation could not
// be resolved after retries and splits.
const FallbackTranslation = "(translation unavailable)"

// Default policy knobs. Batch caps keep a single request comfortably inside
// one model call; the character cap prices each segment at its text length
// plus a fixed overhead for the index markup around it.
const (
	DefaultMaxBatchSegments = 20
	DefaultMaxBatchChars    = 2200
	DefaultSegmentOverhead  = 8
	DefaultBatchTimeout     = 90 * time.Second
	DefaultMaxAttempts      = 3
	DefaultBackoffUnit      = time.Second
)

// Policy bounds batch sizing and the retry protocol.
type Policy struct {
	// MaxBatchSegments caps the number of segments in one request.
	MaxBatchSegments int

	// MaxBatchChars caps the estimated character payload of one request.
	// A segment longer than the cap still forms a batch of one.
	MaxBatchChars int

	// SegmentOverhead is the per-segment character cost added for index
	// markup when estimating payload size.
	SegmentOverhead int

	// BatchTimeout is the hard deadline for a single translation call.
	BatchTimeout time.Duration

	// MaxAttempts is the number of whole-batch attempts before splitting.
	MaxAttempts int

	// BackoffUnit scales the linear backoff: attempt n sleeps n units.
	BackoffUnit time.Duration
}

// DefaultPolicy returns the standard orchestration policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxBatchSegments: DefaultMaxBatchSegments,
		MaxBatchChars:    DefaultMaxBatchChars,
		SegmentOverhead:  DefaultSegmentOverhead,
		BatchTimeout:     DefaultBatchTimeout,
		MaxAttempts:      DefaultMaxAttempts,
		BackoffUnit:      DefaultBackoffUnit,
	}
}

// Progress is a snapshot emitted after each top-level batch settles.
// Completed is non-decreasing across snapshots and ends at Total.
type Progress struct {
	// Completed counts segments whose batch has settled (success or not).
	Completed int

	// Total is the number of segments in the job.
	Total int

	// Failed counts segments resolved to [FallbackTranslation] so far.
	Failed int

	// Segments is the full segment list reflecting translations resolved
	// so far. It is a copy; the callback may retain it.
	Segments []caption.Segment
}

// ProgressFunc receives progress snapshots. It is called from the goroutine
// running Translate, after each top-level batch settles.
type ProgressFunc func(Progress)

// Option is a functional option for configuring an [Orchestrator].
type Option func(*Orchestrator)

// WithPolicy overrides the default orchestration policy.
func WithPolicy(p Policy) Option {
	return func(o *Orchestrator) { o.policy = p }
}

// WithTemperature sets the LLM sampling temperature. Default: 0.1.
func WithTemperature(temp float64) Option {
	return func(o *Orchestrator) { o.temperature = temp }
}

// Orchestrator translates segment lists through an [llm.Provider]. It is
// safe for concurrent use; each Translate call is independent.
type Orchestrator struct {
	provider    llm.Provider
	policy      Policy
	temperature float64
}

// New returns an [Orchestrator] backed by the given provider. A nil provider
// is tolerated: Translate then stamps every segment with the fallback
// sentinel instead of calling out.
func New(provider llm.Provider, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		provider:    provider,
		policy:      DefaultPolicy(),
		temperature: 0.1,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Translate returns a copy of segments with every Translation populated,
// possibly with [FallbackTranslation] on unrecoverable failure. It never
// returns an error: partial failures are absorbed per segment, and
// cancellation of ctx stamps all unresolved segments with the sentinel.
//
// Top-level batches are processed sequentially so that onProgress snapshots
// stay ordered and monotonic; concurrency only appears inside the recursive
// split of a failing batch. onProgress may be nil.
func (o *Orchestrator) Translate(ctx context.Context, segments []caption.Segment, targetLanguage string, onProgress ProgressFunc) []caption.Segment {
	out := slices.Clone(segments)
	if len(out) == 0 {
		return out
	}

	if o.provider == nil {
		// Fully malformed call: fail fast, stamp everything.
		for i := range out {
			out[i].Translation = FallbackTranslation
		}
		emit(onProgress, out, len(out))
		return out
	}

	completed := 0
	for _, b := range batchBounds(out, o.policy) {
		o.translateBatch(ctx, out[b.start:b.end], targetLanguage)
		completed += b.end - b.start
		emit(onProgress, out, completed)
	}
	return out
}

// emit sends a progress snapshot with a defensive copy of the segment list.
func emit(onProgress ProgressFunc, segments []caption.Segment, completed int) {
	if onProgress == nil {
		return
	}
	failed := 0
	for _, s := range segments[:completed] {
		if s.Translation == FallbackTranslation {
			failed++
		}
	}
	onProgress(Progress{
		Completed: completed,
		Total:     len(segments),
		Failed:    failed,
		Segments:  slices.Clone(segments),
	})
}

// bounds is a half-open index range into the segment list.
type bounds struct {
	start, end int
}

// batchBounds partitions segments greedily in order: a new batch starts when
// adding the next segment would exceed the segment-count cap or the
// estimated-character cap. An oversized single segment still forms a batch
// of one.
func batchBounds(segments []caption.Segment, p Policy) []bounds {
	var out []bounds
	start, chars := 0, 0
	for i, s := range segments {
		cost := len(s.Text) + p.SegmentOverhead
		if i > start && (i-start >= p.MaxBatchSegments || chars+cost > p.MaxBatchChars) {
			out = append(out, bounds{start, i})
			start, chars = i, 0
		}
		chars += cost
	}
	out = append(out, bounds{start, len(segments)})
	return out
}

// translateBatch resolves translations for batch in place. It tries the
// whole batch up to MaxAttempts times with linear backoff, then splits at
// the midpoint and recurses into both halves concurrently. The base case of
// a single segment stamps the fallback sentinel instead of splitting.
func (o *Orchestrator) translateBatch(ctx context.Context, batch []caption.Segment, targetLanguage string) {
	for attempt := 1; attempt <= o.policy.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			break
		}

		translations, err := o.requestBatch(ctx, batch, targetLanguage)
		if err == nil {
			for i := range batch {
				t := translations[i]
				if t == "" {
					t = FallbackTranslation
				}
				batch[i].Translation = t
			}
			return
		}

		slog.Warn("translation batch attempt failed",
			"segments", len(batch),
			"attempt", attempt,
			"error", err)

		if attempt < o.policy.MaxAttempts && !sleep(ctx, time.Duration(attempt)*o.policy.BackoffUnit) {
			break
		}
	}

	if len(batch) == 1 {
		batch[0].Translation = FallbackTranslation
		return
	}

	// Halve and recurse concurrently; each half writes to its own disjoint
	// subslice, so no locking is needed and the merge is positional.
	mid := len(batch) / 2
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		o.translateBatch(gctx, batch[:mid], targetLanguage)
		return nil
	})
	g.Go(func() error {
		o.translateBatch(gctx, batch[mid:], targetLanguage)
		return nil
	})
	_ = g.Wait()
}

// requestBatch performs one translation call under the batch timeout and
// returns one entry per segment, "" where the response had no usable value.
func (o *Orchestrator) requestBatch(ctx context.Context, batch []caption.Segment, targetLanguage string) ([]string, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.policy.BatchTimeout)
	defer cancel()

	resp, err := o.provider.Complete(callCtx, llm.CompletionRequest{
		SystemPrompt: buildSystemPrompt(targetLanguage, len(batch)),
		Temperature:  o.temperature,
		Messages: []llm.Message{
			{Role: "user", Content: buildUserMessage(batch)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("translate: complete: %w", err)
	}

	translations, err := parseTranslations(resp.Content, len(batch))
	if err != nil {
		return nil, fmt.Errorf("translate: parse response: %w", err)
	}
	return translations, nil
}

// systemPromptTemplate instructs the model to return a bare JSON array. The
// shapes the model returns anyway are handled by parseTranslations.
const systemPromptTemplate = `You are a translation assistant for a language learning tool.

Translate each numbered sentence into %s.

Rules:
- Translate naturally; these are sentences a learner will read alongside the original.
- Keep the translations in the same order as the input.
- Do not merge, split, drop, or add sentences.

Respond with ONLY a JSON array of %d translated strings, one per input sentence, in order (no markdown, no prose).`

// buildSystemPrompt formats the system prompt for the target language and
// batch size.
func buildSystemPrompt(targetLanguage string, count int) string {
	return fmt.Sprintf(systemPromptTemplate, targetLanguage, count)
}

// buildUserMessage numbers the batch one segment per line.
func buildUserMessage(batch []caption.Segment) string {
	var sb strings.Builder
	for i, s := range batch {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, s.Text)
	}
	return sb.String()
}

// sleep waits for d or until ctx is cancelled. Returns false on
// cancellation. The timer is stopped either way so no wait outlives the
// call.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
