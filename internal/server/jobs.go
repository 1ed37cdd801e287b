package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cadenza-app/cadenza/internal/observe"
	"github.com/cadenza-app/cadenza/internal/store"
	"github.com/cadenza-app/cadenza/internal/translate"
	"github.com/cadenza-app/cadenza/pkg/caption"
)

// Job states reported in snapshots and stream events.
const (
	jobRunning = "running"
	jobDone    = "done"
)

// jobStatus is the JSON snapshot of a translation job.
type jobStatus struct {
	JobID          string            `json:"job_id"`
	TranscriptID   string            `json:"transcript_id"`
	TargetLanguage string            `json:"target_language"`
	State          string            `json:"state"`
	Completed      int               `json:"completed"`
	Total          int               `json:"total"`
	Failed         int               `json:"failed"`
	Segments       []caption.Segment `json:"segments,omitempty"`
}

// translationJob tracks one running translation and fans progress snapshots
// out to stream subscribers. Subscriber channels have capacity 1 and are
// conflated: a slow reader sees the latest snapshot, never a stale backlog.
// The final snapshot is always delivered because the channel is drained
// before each send and closed only after the last publish.
type translationJob struct {
	id             string
	transcriptID   string
	targetLanguage string

	mu     sync.Mutex
	latest translate.Progress
	state  string
	subs   map[chan translate.Progress]struct{}
}

// publish records a snapshot and forwards it to all subscribers.
func (j *translationJob) publish(p translate.Progress) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.latest = p
	for ch := range j.subs {
		select {
		case <-ch:
		default:
		}
		ch <- p
	}
}

// finish marks the job done and closes subscriber channels. Buffered final
// snapshots remain readable after close.
func (j *translationJob) finish() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.state = jobDone
	for ch := range j.subs {
		close(ch)
	}
	j.subs = nil
}

// subscribe registers a stream reader. The returned channel is primed with
// the current snapshot when one exists, and closed once the job finishes.
// The cancel function must be called when the reader goes away.
func (j *translationJob) subscribe() (<-chan translate.Progress, func()) {
	ch := make(chan translate.Progress, 1)
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.latest.Total > 0 {
		ch <- j.latest
	}
	if j.state == jobDone {
		close(ch)
		return ch, func() {}
	}

	j.subs[ch] = struct{}{}
	return ch, func() {
		j.mu.Lock()
		delete(j.subs, ch)
		j.mu.Unlock()
	}
}

// snapshot returns the job's current status, including resolved segments.
func (j *translationJob) snapshot() jobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return jobStatus{
		JobID:          j.id,
		TranscriptID:   j.transcriptID,
		TargetLanguage: j.targetLanguage,
		State:          j.state,
		Completed:      j.latest.Completed,
		Total:          j.latest.Total,
		Failed:         j.latest.Failed,
		Segments:       j.latest.Segments,
	}
}

// jobManager starts translation jobs and keeps them addressable by ID for
// the lifetime of the process. Jobs are in-memory only; the durable outcome
// lands in the store via AttachTranslations.
type jobManager struct {
	store        store.Store
	orchestrator *translate.Orchestrator
	metrics      *observe.Metrics

	mu   sync.Mutex
	seq  int
	jobs map[string]*translationJob
}

func newJobManager(st store.Store, orc *translate.Orchestrator, m *observe.Metrics) *jobManager {
	return &jobManager{
		store:        st,
		orchestrator: orc,
		metrics:      m,
		jobs:         make(map[string]*translationJob),
	}
}

// Get returns the job with the given ID, or nil.
func (jm *jobManager) Get(id string) *translationJob {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	return jm.jobs[id]
}

// setOrchestrator replaces the orchestrator used by jobs started after the
// call. Running jobs are unaffected.
func (jm *jobManager) setOrchestrator(o *translate.Orchestrator) {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	jm.orchestrator = o
}

// Start launches a translation job for the transcript and returns it
// immediately. The job runs detached from the request context so that a
// closed HTTP connection does not abort a long translation.
func (jm *jobManager) Start(ctx context.Context, t *store.Transcript, targetLanguage string) *translationJob {
	jm.mu.Lock()
	jm.seq++
	job := &translationJob{
		id:             fmt.Sprintf("job-%04d", jm.seq),
		transcriptID:   t.ID,
		targetLanguage: targetLanguage,
		state:          jobRunning,
		subs:           make(map[chan translate.Progress]struct{}),
	}
	jm.jobs[job.id] = job
	orc := jm.orchestrator
	jm.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	go jm.run(ctx, orc, job, t.Segments)
	return job
}

// run executes the translation and persists the result.
func (jm *jobManager) run(ctx context.Context, orc *translate.Orchestrator, job *translationJob, segments []caption.Segment) {
	ctx, span := observe.StartJobSpan(ctx, job.id, job.transcriptID, job.targetLanguage)
	defer span.End()

	jm.metrics.ActiveTranslationJobs.Add(ctx, 1)
	defer jm.metrics.ActiveTranslationJobs.Add(ctx, -1)

	lastBatch := time.Now()
	lastFailed := 0
	resolved := orc.Translate(ctx, segments, job.targetLanguage, func(p translate.Progress) {
		now := time.Now()
		jm.metrics.TranslateBatchDuration.Record(ctx, now.Sub(lastBatch).Seconds())
		lastBatch = now
		if delta := p.Failed - lastFailed; delta > 0 {
			jm.metrics.RecordTranslationFallbacks(ctx, delta)
		}
		lastFailed = p.Failed
		job.publish(p)
	})

	if err := jm.store.AttachTranslations(ctx, job.transcriptID, job.targetLanguage, resolved); err != nil {
		slog.Error("failed to persist translations",
			"job", job.id, "transcript", job.transcriptID, "err", err)
	}
	job.finish()
	slog.Info("translation job finished",
		"job", job.id, "transcript", job.transcriptID,
		"target_language", job.targetLanguage, "segments", len(resolved))
}
