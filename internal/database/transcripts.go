package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrNotFound is returned when a transcript lookup matches nothing.
var ErrNotFound = errors.New("transcript not found")

// TranscriptRow is the input for indexing a finished transcript.
type TranscriptRow struct {
	ID           uuid.UUID
	InputPath    string
	InputName    string
	OutputKey    string
	SelfName     string
	OtherName    string
	OtherSource  string // "override", "filename", "fallback"
	OtherOn      string // "left", "right"
	Provider     string
	Model        string
	Language     string
	LineCount    int
	EventCount   int
	DurationS    *float32
	ProcessingMs int
	Body         string          // rendered transcript
	Lines        json.RawMessage // dialogue lines as JSON
}

// TranscriptAPI is the transcript representation for API responses.
type TranscriptAPI struct {
	ID           uuid.UUID       `json:"id"`
	InputPath    string          `json:"input_path"`
	InputName    string          `json:"input_name"`
	OutputKey    string          `json:"output_key"`
	SelfName     string          `json:"self_name"`
	OtherName    string          `json:"other_name"`
	OtherSource  string          `json:"other_source"`
	OtherOn      string          `json:"other_on"`
	Provider     string          `json:"provider,omitempty"`
	Model        string          `json:"model,omitempty"`
	Language     string          `json:"language,omitempty"`
	LineCount    int             `json:"line_count"`
	EventCount   int             `json:"event_count"`
	DurationS    *float32        `json:"duration_s,omitempty"`
	ProcessingMs int             `json:"processing_ms"`
	Body         string          `json:"body,omitempty"`
	Lines        json.RawMessage `json:"lines,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// TranscriptFilter specifies filters for listing and searching transcripts.
type TranscriptFilter struct {
	Speaker   string // matches self or other name, case-insensitive
	StartTime *time.Time
	EndTime   *time.Time
	Limit     int
	Offset    int
}

// TranscriptSearchHit is a search result with relevance score.
type TranscriptSearchHit struct {
	TranscriptAPI
	Rank     float32 `json:"rank"`
	Headline string  `json:"headline"`
}

// UpsertTranscript indexes a transcript. Re-processing the same input
// replaces the earlier row but keeps its ID.
func (db *DB) UpsertTranscript(ctx context.Context, row *TranscriptRow) (uuid.UUID, error) {
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	var id uuid.UUID
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO call_transcripts (
			id, input_path, input_name, output_key,
			self_name, other_name, other_source, other_on,
			provider, model, language,
			line_count, event_count, duration_s, processing_ms,
			body, lines
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (input_path) DO UPDATE SET
			input_name = EXCLUDED.input_name,
			output_key = EXCLUDED.output_key,
			self_name = EXCLUDED.self_name,
			other_name = EXCLUDED.other_name,
			other_source = EXCLUDED.other_source,
			other_on = EXCLUDED.other_on,
			provider = EXCLUDED.provider,
			model = EXCLUDED.model,
			language = EXCLUDED.language,
			line_count = EXCLUDED.line_count,
			event_count = EXCLUDED.event_count,
			duration_s = EXCLUDED.duration_s,
			processing_ms = EXCLUDED.processing_ms,
			body = EXCLUDED.body,
			lines = EXCLUDED.lines,
			created_at = now()
		RETURNING id
	`,
		row.ID, row.InputPath, row.InputName, row.OutputKey,
		row.SelfName, row.OtherName, row.OtherSource, row.OtherOn,
		pqString(row.Provider), pqString(row.Model), pqString(row.Language),
		row.LineCount, row.EventCount, row.DurationS, row.ProcessingMs,
		row.Body, row.Lines,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("upsert transcript: %w", err)
	}
	return id, nil
}

const transcriptColumns = `t.id, t.input_path, t.input_name, t.output_key,
	t.self_name, t.other_name, t.other_source, t.other_on,
	COALESCE(t.provider, ''), COALESCE(t.model, ''), COALESCE(t.language, ''),
	t.line_count, t.event_count, t.duration_s, COALESCE(t.processing_ms, 0),
	t.created_at`

func scanTranscript(row pgx.Row, extra ...any) (TranscriptAPI, error) {
	var t TranscriptAPI
	dest := []any{
		&t.ID, &t.InputPath, &t.InputName, &t.OutputKey,
		&t.SelfName, &t.OtherName, &t.OtherSource, &t.OtherOn,
		&t.Provider, &t.Model, &t.Language,
		&t.LineCount, &t.EventCount, &t.DurationS, &t.ProcessingMs,
		&t.CreatedAt,
	}
	err := row.Scan(append(dest, extra...)...)
	return t, err
}

// GetTranscript returns one transcript including its body and lines.
func (db *DB) GetTranscript(ctx context.Context, id uuid.UUID) (*TranscriptAPI, error) {
	var body string
	var lines json.RawMessage
	t, err := scanTranscript(db.Pool.QueryRow(ctx,
		`SELECT `+transcriptColumns+`, t.body, t.lines FROM call_transcripts t WHERE t.id = $1`, id,
	), &body, &lines)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	t.Body = body
	t.Lines = lines
	return &t, nil
}

// HasTranscript reports whether inputPath has already been indexed.
func (db *DB) HasTranscript(ctx context.Context, inputPath string) (bool, error) {
	var exists bool
	err := db.Pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM call_transcripts WHERE input_path = $1)`, inputPath,
	).Scan(&exists)
	return exists, err
}

func applyFilter(qb *queryBuilder, f TranscriptFilter) {
	if f.Speaker != "" {
		p := qb.Param(f.Speaker)
		qb.AddRaw(fmt.Sprintf("(t.other_name ILIKE %s OR t.self_name ILIKE %s)", p, p))
	}
	if f.StartTime != nil {
		qb.Add("t.created_at >= %s", *f.StartTime)
	}
	if f.EndTime != nil {
		qb.Add("t.created_at < %s", *f.EndTime)
	}
}

// Page sizes for list and search. The API rejects limits above
// MaxPageSize; the index still never reads more than that.
const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultPageSize
	case limit > MaxPageSize:
		return MaxPageSize
	}
	return limit
}

// ListTranscripts returns transcripts newest first, without bodies.
func (db *DB) ListTranscripts(ctx context.Context, filter TranscriptFilter) ([]TranscriptAPI, int, error) {
	qb := newQueryBuilder()
	applyFilter(qb, filter)
	whereClause := qb.WhereClause()

	var total int
	if err := db.Pool.QueryRow(ctx, "SELECT count(*) FROM call_transcripts t"+whereClause, qb.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM call_transcripts t%s ORDER BY t.created_at DESC LIMIT %d OFFSET %d`,
		transcriptColumns, whereClause, clampLimit(filter.Limit), filter.Offset)
	rows, err := db.Pool.Query(ctx, query, qb.Args()...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []TranscriptAPI{}
	for rows.Next() {
		t, err := scanTranscript(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, t)
	}
	return out, total, rows.Err()
}

// TSQuery returns the tsquery expression for a search parameter. API search
// and dbcheck share it so both accept the same syntax.
func TSQuery(param string) string {
	return "websearch_to_tsquery('english', " + param + ")"
}

// SearchTranscripts performs full-text search across transcript bodies.
// query uses web search syntax: quoted phrases, "or", and -exclusions.
func (db *DB) SearchTranscripts(ctx context.Context, query string, filter TranscriptFilter) ([]TranscriptSearchHit, int, error) {
	qb := newQueryBuilder()
	tsq := qb.Param(query)
	qb.AddRaw("t.search_vector @@ " + TSQuery(tsq))
	applyFilter(qb, filter)
	whereClause := qb.WhereClause()

	var total int
	if err := db.Pool.QueryRow(ctx, "SELECT count(*) FROM call_transcripts t"+whereClause, qb.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}

	dataQuery := fmt.Sprintf(`
		SELECT %s,
			ts_rank(t.search_vector, %s) AS rank,
			ts_headline('english', t.body, %s, 'MaxFragments=2') AS headline
		FROM call_transcripts t%s
		ORDER BY rank DESC, t.created_at DESC
		LIMIT %d OFFSET %d
	`, transcriptColumns, TSQuery(tsq), TSQuery(tsq), whereClause, clampLimit(filter.Limit), filter.Offset)

	rows, err := db.Pool.Query(ctx, dataQuery, qb.Args()...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	hits := []TranscriptSearchHit{}
	for rows.Next() {
		var h TranscriptSearchHit
		t, err := scanTranscript(rows, &h.Rank, &h.Headline)
		if err != nil {
			return nil, 0, err
		}
		h.TranscriptAPI = t
		hits = append(hits, h)
	}
	return hits, total, rows.Err()
}

// pqString converts "" to nil so PostgreSQL stores NULL.
func pqString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
