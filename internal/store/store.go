// Package store defines the persistence boundary for normalized transcripts.
//
// A [Transcript] is the unit of storage: metadata plus the ordered segment
// list produced by the caption normalizer. Translations are attached
// incrementally as the translation orchestrator resolves batches, so
// [Store.AttachTranslations] may run many times against one transcript.
//
// Two implementations exist: [Memory] for tests and DSN-less deployments, and
// the PostgreSQL-backed store in the postgres subpackage.
//
// Every implementation must be safe for concurrent use.
package store

import (
	"context"
	"time"

	"github.com/cadenza-app/cadenza/pkg/caption"
)

// Transcript is a stored, normalized transcript.
type Transcript struct {
	// ID is the unique, caller-assigned identifier.
	ID string `json:"id"`

	// Title is a human-readable label for the source media.
	Title string `json:"title,omitempty"`

	// SourceLanguage is the BCP-47 tag of the spoken language.
	SourceLanguage string `json:"source_language,omitempty"`

	// TargetLanguage is the BCP-47 tag translations are produced in.
	// Empty until a translation run has been started.
	TargetLanguage string `json:"target_language,omitempty"`

	// Segments is the ordered segment list. Segment order is the storage
	// order; IDs are unique within the transcript.
	Segments []caption.Segment `json:"segments"`

	// CreatedAt is when the transcript was first saved.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the transcript or its translations last changed.
	UpdatedAt time.Time `json:"updated_at"`
}

// Info is a transcript listing row: the metadata without the segment bodies.
type Info struct {
	ID             string    `json:"id"`
	Title          string    `json:"title,omitempty"`
	SourceLanguage string    `json:"source_language,omitempty"`
	TargetLanguage string    `json:"target_language,omitempty"`
	SegmentCount   int       `json:"segment_count"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// SearchOpts narrows a segment text search. All non-zero fields are applied
// as AND conditions.
type SearchOpts struct {
	// TranscriptID restricts the search to a single transcript.
	// An empty string searches across all transcripts.
	TranscriptID string

	// Limit caps the number of results returned.
	// A value of 0 means the implementation may apply its own default.
	Limit int
}

// SearchResult pairs a matched segment with the transcript it belongs to.
type SearchResult struct {
	TranscriptID string          `json:"transcript_id"`
	Segment      caption.Segment `json:"segment"`
}

// Store persists normalized transcripts and their translations.
//
// Mutating operations that act on a primary key (SaveTranscript) must behave
// as upserts rather than returning an error on duplicates. Deletions of
// non-existent records are not errors.
type Store interface {
	// SaveTranscript upserts a transcript. ID must be non-empty. On insert
	// CreatedAt is set; UpdatedAt is refreshed on every save. The stored
	// segment list is replaced wholesale.
	SaveTranscript(ctx context.Context, t *Transcript) error

	// GetTranscript retrieves a transcript by ID, segments included.
	// Returns (nil, nil) when the transcript does not exist.
	GetTranscript(ctx context.Context, id string) (*Transcript, error)

	// ListTranscripts returns metadata for all stored transcripts, most
	// recently updated first. Returns an empty (non-nil) slice when the
	// store is empty.
	ListTranscripts(ctx context.Context) ([]Info, error)

	// AttachTranslations writes the Translation field of the given segments
	// into the stored transcript, matching on segment ID, and records the
	// target language. Segment IDs not present in the transcript are
	// ignored. Returns an error when the transcript does not exist.
	AttachTranslations(ctx context.Context, transcriptID, targetLanguage string, segments []caption.Segment) error

	// SearchSegments performs a text search over stored segment text.
	// Returns an empty (non-nil) slice when nothing matches.
	SearchSegments(ctx context.Context, query string, opts SearchOpts) ([]SearchResult, error)

	// DeleteTranscript removes a transcript and its segments. Deleting a
	// non-existent transcript is not an error.
	DeleteTranscript(ctx context.Context, id string) error
}
