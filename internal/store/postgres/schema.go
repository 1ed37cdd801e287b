// Package postgres provides a PostgreSQL-backed implementation of
// [store.Store].
//
// Transcripts and their segments live in two tables joined by transcript ID;
// [Migrate] ensures both exist and is safe to run on every application start.
//
// Usage:
//
//	st, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer st.Close()
//
//	_ = st.SaveTranscript(ctx, transcript)
//	results, _ := st.SearchSegments(ctx, "rain in spain", store.SearchOpts{})
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlTranscripts = `
CREATE TABLE IF NOT EXISTS transcripts (
    id               TEXT         PRIMARY KEY,
    title            TEXT         NOT NULL DEFAULT '',
    source_language  TEXT         NOT NULL DEFAULT '',
    target_language  TEXT         NOT NULL DEFAULT '',
    created_at       TIMESTAMPTZ  NOT NULL DEFAULT now(),
    updated_at       TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_transcripts_updated_at
    ON transcripts (updated_at);
`

const ddlSegments = `
CREATE TABLE IF NOT EXISTS segments (
    transcript_id     TEXT              NOT NULL REFERENCES transcripts (id) ON DELETE CASCADE,
    position          INT               NOT NULL,
    segment_id        TEXT              NOT NULL,
    text              TEXT              NOT NULL,
    start_seconds     DOUBLE PRECISION  NOT NULL,
    duration_seconds  DOUBLE PRECISION  NOT NULL,
    translation       TEXT              NOT NULL DEFAULT '',
    PRIMARY KEY (transcript_id, position)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_segments_transcript_segment_id
    ON segments (transcript_id, segment_id);

CREATE INDEX IF NOT EXISTS idx_segments_fts
    ON segments USING GIN (to_tsvector('english', text));
`

// Migrate creates or ensures all required database tables exist. It is
// idempotent and safe to call on every application start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []string{
		ddlTranscripts,
		ddlSegments,
	}
	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
