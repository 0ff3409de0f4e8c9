// Package journal persists comparison runs to a SQLite database so past
// output can be audited and listed.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/openagreements/redline/core/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id              TEXT PRIMARY KEY,
	created_at      TEXT NOT NULL,
	original_path   TEXT NOT NULL,
	revised_path    TEXT NOT NULL,
	engine          TEXT NOT NULL,
	mode_requested  TEXT NOT NULL,
	mode_used       TEXT NOT NULL,
	fallback_reason TEXT NOT NULL DEFAULT '',
	insertions      INTEGER NOT NULL,
	deletions       INTEGER NOT NULL,
	moves           INTEGER NOT NULL,
	format_changes  INTEGER NOT NULL,
	duration_ms     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
`

// Run is one journaled comparison.
type Run struct {
	ID             string    `json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	OriginalPath   string    `json:"original_path"`
	RevisedPath    string    `json:"revised_path"`
	Engine         string    `json:"engine"`
	ModeRequested  string    `json:"mode_requested"`
	ModeUsed       string    `json:"mode_used"`
	FallbackReason string    `json:"fallback_reason,omitempty"`
	Insertions     int       `json:"insertions"`
	Deletions      int       `json:"deletions"`
	Moves          int       `json:"moves"`
	FormatChanges  int       `json:"format_changes"`
	DurationMS     int64     `json:"duration_ms"`
}

// Journal is a SQLite-backed run log.
type Journal struct {
	db *sql.DB
}

// Open opens (and if needed initializes) a journal database at path.
func Open(path string) (*Journal, error) {
	db, err := sqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record inserts a run. A missing ID or CreatedAt is filled in.
func (j *Journal) Record(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO runs (
			id, created_at, original_path, revised_path,
			engine, mode_requested, mode_used, fallback_reason,
			insertions, deletions, moves, format_changes, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.CreatedAt.Format(time.RFC3339), run.OriginalPath, run.RevisedPath,
		run.Engine, run.ModeRequested, run.ModeUsed, run.FallbackReason,
		run.Insertions, run.Deletions, run.Moves, run.FormatChanges, run.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// History returns the most recent runs, newest first. A non-positive limit
// means 50.
func (j *Journal) History(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, created_at, original_path, revised_path,
		       engine, mode_requested, mode_used, fallback_reason,
		       insertions, deletions, moves, format_changes, duration_ms
		FROM runs ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var created string
		if err := rows.Scan(
			&r.ID, &created, &r.OriginalPath, &r.RevisedPath,
			&r.Engine, &r.ModeRequested, &r.ModeUsed, &r.FallbackReason,
			&r.Insertions, &r.Deletions, &r.Moves, &r.FormatChanges, &r.DurationMS,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if t, err := time.Parse(time.RFC3339, created); err == nil {
			r.CreatedAt = t
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Get returns one run by id.
func (j *Journal) Get(ctx context.Context, id string) (*Run, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, created_at, original_path, revised_path,
		       engine, mode_requested, mode_used, fallback_reason,
		       insertions, deletions, moves, format_changes, duration_ms
		FROM runs WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, sql.ErrNoRows
	}
	var r Run
	var created string
	if err := rows.Scan(
		&r.ID, &created, &r.OriginalPath, &r.RevisedPath,
		&r.Engine, &r.ModeRequested, &r.ModeUsed, &r.FallbackReason,
		&r.Insertions, &r.Deletions, &r.Moves, &r.FormatChanges, &r.DurationMS,
	); err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}
	if t, err := time.Parse(time.RFC3339, created); err == nil {
		r.CreatedAt = t
	}
	return &r, nil
}
