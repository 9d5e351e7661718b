// Package store persists the run ledger and a page cache in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/JoeHelbing/phd-advisor-analyzer-agent/internal/web"
)

// Run statuses recorded in the ledger.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store wraps the SQLite database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Run is one ledger row.
type Run struct {
	ID         string
	URL        string
	Status     string
	Stage      string
	Error      string
	Faculty    string
	Score      float64
	ReportPath string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Open opens or creates the database at path and ensures the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, now: time.Now}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			url TEXT NOT NULL,
			status TEXT NOT NULL,
			stage TEXT,
			error TEXT,
			faculty TEXT,
			score REAL,
			report_path TEXT,
			started_at TEXT NOT NULL,
			finished_at TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,
		`CREATE TABLE IF NOT EXISTS pages (
			url TEXT PRIMARY KEY,
			final_url TEXT,
			title TEXT,
			text TEXT,
			links TEXT,
			fetched_at TEXT NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// StartRun records a new run and returns its id.
func (s *Store) StartRun(ctx context.Context, url string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, url, status, started_at) VALUES (?, ?, ?, ?)`,
		id, url, StatusRunning, s.now().UTC().Format(timeLayout),
	)
	if err != nil {
		return "", fmt.Errorf("inserting run: %w", err)
	}
	return id, nil
}

// FinishRun stores the outcome of a run.
func (s *Store) FinishRun(ctx context.Context, run Run) error {
	status := StatusCompleted
	if run.Error != "" {
		status = StatusFailed
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, stage = ?, error = ?, faculty = ?, score = ?, report_path = ?, finished_at = ?
		 WHERE id = ?`,
		status, run.Stage, run.Error, run.Faculty, run.Score, run.ReportPath,
		s.now().UTC().Format(timeLayout), run.ID,
	)
	if err != nil {
		return fmt.Errorf("updating run %s: %w", run.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("updating run %s: not found", run.ID)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, url, status, COALESCE(stage, ''), COALESCE(error, ''), COALESCE(faculty, ''),
		        COALESCE(score, 0), COALESCE(report_path, ''), started_at, COALESCE(finished_at, '')
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started, finished string
		if err := rows.Scan(&r.ID, &r.URL, &r.Status, &r.Stage, &r.Error, &r.Faculty,
			&r.Score, &r.ReportPath, &started, &finished); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.StartedAt, _ = time.Parse(timeLayout, started)
		if finished != "" {
			r.FinishedAt, _ = time.Parse(timeLayout, finished)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetPage returns a cached page younger than maxAge. maxAge <= 0 disables expiry.
func (s *Store) GetPage(ctx context.Context, url string, maxAge time.Duration) (*web.Page, bool, error) {
	var page web.Page
	var links, fetched string
	err := s.db.QueryRowContext(ctx,
		`SELECT url, COALESCE(final_url, ''), COALESCE(title, ''), COALESCE(text, ''), COALESCE(links, '[]'), fetched_at
		 FROM pages WHERE url = ?`, url,
	).Scan(&page.URL, &page.FinalURL, &page.Title, &page.Text, &links, &fetched)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("querying page %s: %w", url, err)
	}

	if maxAge > 0 {
		at, err := time.Parse(timeLayout, fetched)
		if err != nil || s.now().Sub(at) > maxAge {
			return nil, false, nil
		}
	}

	if err := json.Unmarshal([]byte(links), &page.Links); err != nil {
		return nil, false, fmt.Errorf("decoding links for %s: %w", url, err)
	}
	return &page, true, nil
}

// PutPage upserts a fetched page.
func (s *Store) PutPage(ctx context.Context, page *web.Page) error {
	if page == nil {
		return errors.New("page is required")
	}
	links, err := json.Marshal(page.Links)
	if err != nil {
		return fmt.Errorf("encoding links: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO pages (url, final_url, title, text, links, fetched_at) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(url) DO UPDATE SET final_url = excluded.final_url, title = excluded.title,
		   text = excluded.text, links = excluded.links, fetched_at = excluded.fetched_at`,
		page.URL, page.FinalURL, page.Title, page.Text, string(links), s.now().UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("storing page %s: %w", page.URL, err)
	}
	return nil
}
