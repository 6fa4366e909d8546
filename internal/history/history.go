// Package history persists terminal job results so that job status can be
// queried after the build has completed. Artifacts are not stored, only the
// outcome metadata.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no record exists for a job ID.
var ErrNotFound = errors.New("job not found")

// Entry is one terminal job record.
type Entry struct {
	JobID       string    `json:"job_id"`
	Status      string    `json:"status"` // succeeded|failed
	FailureKind string    `json:"failure_kind,omitempty"`
	Diagnostic  string    `json:"diagnostic,omitempty"`
	Engine      string    `json:"engine"`
	Passes      int       `json:"passes"`
	Pages       int       `json:"pages"`
	Duration    int64     `json:"duration_ms"`
	FinishedAt  time.Time `json:"finished_at"`
}

// Store records and retrieves terminal job results.
type Store interface {
	Record(ctx context.Context, e Entry) error
	Get(ctx context.Context, jobID string) (*Entry, error)
	Recent(ctx context.Context, limit int) ([]Entry, error)
	Close() error
}

// SQLiteStore implements Store on SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore opens (and if needed creates) the store at dbPath.
// Use ":memory:" for an ephemeral store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS jobs (
		job_id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		failure_kind TEXT,
		diagnostic TEXT,
		engine TEXT NOT NULL,
		passes INTEGER NOT NULL,
		pages INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		finished_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_jobs_finished_at ON jobs(finished_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record upserts the terminal result for a job.
func (s *SQLiteStore) Record(ctx context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.FinishedAt.IsZero() {
		e.FinishedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (job_id, status, failure_kind, diagnostic, engine, passes, pages, duration_ms, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(job_id) DO UPDATE SET
		   status=excluded.status, failure_kind=excluded.failure_kind, diagnostic=excluded.diagnostic,
		   engine=excluded.engine, passes=excluded.passes, pages=excluded.pages,
		   duration_ms=excluded.duration_ms, finished_at=excluded.finished_at`,
		e.JobID, e.Status, e.FailureKind, e.Diagnostic, e.Engine, e.Passes, e.Pages, e.Duration, e.FinishedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert job record: %w", err)
	}
	return nil
}

// Get returns the record for jobID, or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, jobID string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT job_id, status, failure_kind, diagnostic, engine, passes, pages, duration_ms, finished_at FROM jobs WHERE job_id = ?",
		jobID,
	)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query job record: %w", err)
	}
	return e, nil
}

// Recent returns up to limit records, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT job_id, status, failure_kind, diagnostic, engine, passes, pages, duration_ms, finished_at FROM jobs ORDER BY finished_at DESC, job_id LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query job records: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job record: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return entries, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*Entry, error) {
	var e Entry
	var kind, diag sql.NullString
	var finishedUnix int64
	if err := row.Scan(&e.JobID, &e.Status, &kind, &diag, &e.Engine, &e.Passes, &e.Pages, &e.Duration, &finishedUnix); err != nil {
		return nil, err
	}
	e.FailureKind = kind.String
	e.Diagnostic = diag.String
	e.FinishedAt = time.Unix(finishedUnix, 0)
	return &e, nil
}
