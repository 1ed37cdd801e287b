package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cadenza-app/cadenza/internal/store"
	"github.com/cadenza-app/cadenza/pkg/caption"
)

// defaultSearchLimit caps SearchSegments results when opts.Limit is 0.
const defaultSearchLimit = 50

// Store is the PostgreSQL-backed transcript store. It holds a single
// [pgxpool.Pool]; all operations are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// NewStore establishes a connection pool to the PostgreSQL database at dsn
// and runs [Migrate] to ensure the required tables exist.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close releases all connections held by the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping reports whether the database is reachable. Used by readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// SaveTranscript implements [store.Store]. The segment list is replaced
// wholesale inside a single transaction.
func (s *Store) SaveTranscript(ctx context.Context, t *store.Transcript) error {
	if t == nil || t.ID == "" {
		return fmt.Errorf("postgres store: save transcript: missing id")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres store: save transcript: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	const upsert = `
		INSERT INTO transcripts (id, title, source_language, target_language)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
		    title           = EXCLUDED.title,
		    source_language = EXCLUDED.source_language,
		    target_language = EXCLUDED.target_language,
		    updated_at      = now()`
	if _, err := tx.Exec(ctx, upsert, t.ID, t.Title, t.SourceLanguage, t.TargetLanguage); err != nil {
		return fmt.Errorf("postgres store: save transcript: upsert: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM segments WHERE transcript_id = $1`, t.ID); err != nil {
		return fmt.Errorf("postgres store: save transcript: clear segments: %w", err)
	}

	rows := make([][]any, len(t.Segments))
	for i, seg := range t.Segments {
		rows[i] = []any{t.ID, i, seg.ID, seg.Text, seg.Start, seg.Duration, seg.Translation}
	}
	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"segments"},
		[]string{"transcript_id", "position", "segment_id", "text", "start_seconds", "duration_seconds", "translation"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("postgres store: save transcript: copy segments: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres store: save transcript: commit: %w", err)
	}
	return nil
}

// GetTranscript implements [store.Store].
func (s *Store) GetTranscript(ctx context.Context, id string) (*store.Transcript, error) {
	const q = `
		SELECT id, title, source_language, target_language, created_at, updated_at
		FROM   transcripts
		WHERE  id = $1`

	var t store.Transcript
	err := s.pool.QueryRow(ctx, q, id).Scan(
		&t.ID, &t.Title, &t.SourceLanguage, &t.TargetLanguage, &t.CreatedAt, &t.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres store: get transcript: %w", err)
	}

	segments, err := s.loadSegments(ctx, id)
	if err != nil {
		return nil, err
	}
	t.Segments = segments
	return &t, nil
}

func (s *Store) loadSegments(ctx context.Context, transcriptID string) ([]caption.Segment, error) {
	const q = `
		SELECT segment_id, text, start_seconds, duration_seconds, translation
		FROM   segments
		WHERE  transcript_id = $1
		ORDER  BY position`

	rows, err := s.pool.Query(ctx, q, transcriptID)
	if err != nil {
		return nil, fmt.Errorf("postgres store: load segments: %w", err)
	}
	segments, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (caption.Segment, error) {
		var seg caption.Segment
		err := row.Scan(&seg.ID, &seg.Text, &seg.Start, &seg.Duration, &seg.Translation)
		return seg, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan segments: %w", err)
	}
	if segments == nil {
		segments = []caption.Segment{}
	}
	return segments, nil
}

// ListTranscripts implements [store.Store].
func (s *Store) ListTranscripts(ctx context.Context) ([]store.Info, error) {
	const q = `
		SELECT t.id, t.title, t.source_language, t.target_language,
		       COUNT(s.segment_id), t.created_at, t.updated_at
		FROM   transcripts t
		LEFT   JOIN segments s ON s.transcript_id = t.id
		GROUP  BY t.id
		ORDER  BY t.updated_at DESC`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list transcripts: %w", err)
	}
	infos, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.Info, error) {
		var info store.Info
		err := row.Scan(
			&info.ID, &info.Title, &info.SourceLanguage, &info.TargetLanguage,
			&info.SegmentCount, &info.CreatedAt, &info.UpdatedAt,
		)
		return info, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan transcripts: %w", err)
	}
	if infos == nil {
		infos = []store.Info{}
	}
	return infos, nil
}

// AttachTranslations implements [store.Store]. Per-segment updates go out as
// one pgx batch inside a transaction.
func (s *Store) AttachTranslations(ctx context.Context, transcriptID, targetLanguage string, segments []caption.Segment) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres store: attach translations: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	const stamp = `
		UPDATE transcripts
		SET    target_language = $2, updated_at = now()
		WHERE  id = $1`
	tag, err := tx.Exec(ctx, stamp, transcriptID, targetLanguage)
	if err != nil {
		return fmt.Errorf("postgres store: attach translations: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres store: attach translations: transcript %q not found", transcriptID)
	}

	batch := &pgx.Batch{}
	const update = `
		UPDATE segments
		SET    translation = $3
		WHERE  transcript_id = $1 AND segment_id = $2`
	for _, seg := range segments {
		if seg.Translation == "" {
			continue
		}
		batch.Queue(update, transcriptID, seg.ID, seg.Translation)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("postgres store: attach translations: batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres store: attach translations: commit: %w", err)
	}
	return nil
}

// SearchSegments implements [store.Store]. It performs a PostgreSQL full-text
// search over segment text; the query is passed to plainto_tsquery so no
// special operator syntax is required.
func (s *Store) SearchSegments(ctx context.Context, query string, opts store.SearchOpts) ([]store.SearchResult, error) {
	args := []any{query} // $1 = FTS query string
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	conditions := []string{
		"to_tsvector('english', text) @@ plainto_tsquery('english', $1)",
	}
	if opts.TranscriptID != "" {
		conditions = append(conditions, "transcript_id = "+next(opts.TranscriptID))
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	q := "SELECT transcript_id, segment_id, text, start_seconds, duration_seconds, translation\n" +
		"FROM   segments\n" +
		"WHERE  " + strings.Join(conditions, "\n  AND  ") + "\n" +
		"ORDER  BY ts_rank(to_tsvector('english', text), plainto_tsquery('english', $1)) DESC,\n" +
		"       transcript_id, position\n" +
		fmt.Sprintf("LIMIT %s", next(limit))

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres store: search segments: %w", err)
	}
	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.SearchResult, error) {
		var r store.SearchResult
		err := row.Scan(
			&r.TranscriptID, &r.Segment.ID, &r.Segment.Text,
			&r.Segment.Start, &r.Segment.Duration, &r.Segment.Translation,
		)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan search results: %w", err)
	}
	if results == nil {
		results = []store.SearchResult{}
	}
	return results, nil
}

// DeleteTranscript implements [store.Store]. Segments go with the transcript
// via ON DELETE CASCADE.
func (s *Store) DeleteTranscript(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM transcripts WHERE id = $1`, id); err != nil {
		return fmt.Errorf("postgres store: delete transcript: %w", err)
	}
	return nil
}
