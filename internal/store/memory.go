package store

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cadenza-app/cadenza/pkg/caption"
)

// defaultSearchLimit caps SearchSegments results when opts.Limit is 0.
const defaultSearchLimit = 50

// Memory is an in-process [Store] backed by a map. It keeps deep copies on
// the way in and out so callers can never alias stored state. Safe for
// concurrent use.
type Memory struct {
	mu          sync.Mutex
	transcripts map[string]*Transcript
	now         func() time.Time
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		transcripts: make(map[string]*Transcript),
		now:         time.Now,
	}
}

// SaveTranscript implements [Store].
func (m *Memory) SaveTranscript(_ context.Context, t *Transcript) error {
	if t == nil || t.ID == "" {
		return fmt.Errorf("store: save transcript: missing id")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cp := cloneTranscript(t)
	cp.UpdatedAt = m.now()
	if prev, ok := m.transcripts[t.ID]; ok {
		cp.CreatedAt = prev.CreatedAt
	} else {
		cp.CreatedAt = cp.UpdatedAt
	}
	m.transcripts[t.ID] = cp
	return nil
}

// GetTranscript implements [Store].
func (m *Memory) GetTranscript(_ context.Context, id string) (*Transcript, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.transcripts[id]
	if !ok {
		return nil, nil
	}
	return cloneTranscript(t), nil
}

// ListTranscripts implements [Store].
func (m *Memory) ListTranscripts(_ context.Context) ([]Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	infos := make([]Info, 0, len(m.transcripts))
	for _, t := range m.transcripts {
		infos = append(infos, Info{
			ID:             t.ID,
			Title:          t.Title,
			SourceLanguage: t.SourceLanguage,
			TargetLanguage: t.TargetLanguage,
			SegmentCount:   len(t.Segments),
			CreatedAt:      t.CreatedAt,
			UpdatedAt:      t.UpdatedAt,
		})
	}
	slices.SortFunc(infos, func(a, b Info) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})
	return infos, nil
}

// AttachTranslations implements [Store].
func (m *Memory) AttachTranslations(_ context.Context, transcriptID, targetLanguage string, segments []caption.Segment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.transcripts[transcriptID]
	if !ok {
		return fmt.Errorf("store: attach translations: transcript %q not found", transcriptID)
	}

	byID := make(map[string]string, len(segments))
	for _, s := range segments {
		if s.Translation != "" {
			byID[s.ID] = s.Translation
		}
	}
	for i := range t.Segments {
		if tr, ok := byID[t.Segments[i].ID]; ok {
			t.Segments[i].Translation = tr
		}
	}
	t.TargetLanguage = targetLanguage
	t.UpdatedAt = m.now()
	return nil
}

// SearchSegments implements [Store]. Matching is a case-insensitive substring
// scan; the postgres implementation uses real full-text search.
func (m *Memory) SearchSegments(_ context.Context, query string, opts SearchOpts) ([]SearchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	needle := strings.ToLower(query)

	ids := make([]string, 0, len(m.transcripts))
	for id := range m.transcripts {
		if opts.TranscriptID == "" || opts.TranscriptID == id {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)

	results := []SearchResult{}
	for _, id := range ids {
		for _, seg := range m.transcripts[id].Segments {
			if len(results) >= limit {
				return results, nil
			}
			if strings.Contains(strings.ToLower(seg.Text), needle) {
				results = append(results, SearchResult{TranscriptID: id, Segment: seg})
			}
		}
	}
	return results, nil
}

// DeleteTranscript implements [Store].
func (m *Memory) DeleteTranscript(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.transcripts, id)
	return nil
}

func cloneTranscript(t *Transcript) *Transcript {
	cp := *t
	cp.Segments = slices.Clone(t.Segments)
	return &cp
}

// Compile-time interface check.
var _ Store = (*Memory)(nil)
