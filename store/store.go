// Package store keeps crawl reports in a SQLite database so earlier runs
// can be listed and shown again without recrawling.
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
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/lukemcguire/termcrawl/result"
)

var (
	// ErrRunNotFound is returned when no run matches an id.
	ErrRunNotFound = errors.New("crawl run not found")
	// ErrAmbiguousID is returned when an id prefix matches several runs.
	ErrAmbiguousID = errors.New("run id prefix matches more than one run")
)

const schema = `
CREATE TABLE IF NOT EXISTS crawl_runs (
	id TEXT PRIMARY KEY,
	seed_url TEXT NOT NULL,
	terms TEXT NOT NULL,
	started_at TEXT NOT NULL,
	duration_ms INTEGER NOT NULL,
	visited INTEGER NOT NULL,
	failed INTEGER NOT NULL,
	skipped INTEGER NOT NULL,
	queued INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON crawl_runs(started_at);

CREATE TABLE IF NOT EXISTS run_pages (
	run_id TEXT NOT NULL REFERENCES crawl_runs(id) ON DELETE CASCADE,
	url TEXT NOT NULL,
	total INTEGER NOT NULL,
	PRIMARY KEY (run_id, url)
);

CREATE TABLE IF NOT EXISTS term_counts (
	run_id TEXT NOT NULL REFERENCES crawl_runs(id) ON DELETE CASCADE,
	url TEXT NOT NULL,
	term TEXT NOT NULL,
	count INTEGER NOT NULL,
	PRIMARY KEY (run_id, url, term)
);
`

// Store is a SQLite database of crawl reports.
type Store struct {
	db   *sql.DB
	path string
}

// RunSummary describes one stored run without its page table.
type RunSummary struct {
	ID        string
	SeedURL   string
	Terms     []string
	StartedAt time.Time
	Duration  time.Duration
	Visited   int
	Failed    int
	Skipped   int
}

// Open opens or creates the database at path, creating its directory.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveReport stores report under a new run id and returns the id.
func (s *Store) SaveReport(ctx context.Context, report *result.Report) (id string, err error) {
	termsJSON, err := json.Marshal(report.Terms)
	if err != nil {
		return "", fmt.Errorf("encode terms: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	id = uuid.NewString()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO crawl_runs (id, seed_url, terms, started_at, duration_ms, visited, failed, skipped, queued)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		report.SeedURL,
		string(termsJSON),
		report.StartedAt.UTC().Format(time.RFC3339Nano),
		report.Stats.Duration.Milliseconds(),
		report.Stats.Visited,
		report.Stats.Failed,
		report.Stats.Skipped,
		report.Stats.Queued,
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	pageStmt, err := tx.PrepareContext(ctx, `INSERT INTO run_pages (run_id, url, total) VALUES (?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("prepare page insert: %w", err)
	}
	defer pageStmt.Close()

	countStmt, err := tx.PrepareContext(ctx, `INSERT INTO term_counts (run_id, url, term, count) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("prepare count insert: %w", err)
	}
	defer countStmt.Close()

	for _, pageURL := range report.Pages.URLs() {
		counts := report.Pages[pageURL]
		if _, err = pageStmt.ExecContext(ctx, id, pageURL, counts.Total()); err != nil {
			return "", fmt.Errorf("insert page %s: %w", pageURL, err)
		}
		for term, n := range counts {
			if _, err = countStmt.ExecContext(ctx, id, pageURL, term, n); err != nil {
				return "", fmt.Errorf("insert count %s/%s: %w", pageURL, term, err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return "", fmt.Errorf("commit run: %w", err)
	}
	return id, nil
}

// ResolveID expands an id prefix to the full id of exactly one run.
func (s *Store) ResolveID(ctx context.Context, prefix string) (string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM crawl_runs WHERE id LIKE ? || '%' LIMIT 2`, prefix)
	if err != nil {
		return "", fmt.Errorf("query run id: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", fmt.Errorf("scan run id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("iterate run ids: %w", err)
	}

	switch len(ids) {
	case 0:
		return "", fmt.Errorf("%w: %s", ErrRunNotFound, prefix)
	case 1:
		return ids[0], nil
	default:
		return "", fmt.Errorf("%w: %s", ErrAmbiguousID, prefix)
	}
}

// LoadReport reads the run with the given id (or unique id prefix).
func (s *Store) LoadReport(ctx context.Context, id string) (*result.Report, error) {
	fullID, err := s.ResolveID(ctx, id)
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, seed_url, terms, started_at, duration_ms, visited, failed, skipped, queued
		FROM crawl_runs WHERE id = ?`, fullID)

	var (
		summary RunSummary
		queued  int
	)
	if err := scanRun(row, &summary, &queued); err != nil {
		return nil, err
	}

	report := &result.Report{
		SeedURL:   summary.SeedURL,
		Terms:     summary.Terms,
		Pages:     make(result.PageStats),
		StartedAt: summary.StartedAt,
		Stats: result.CrawlStats{
			Visited:  summary.Visited,
			Failed:   summary.Failed,
			Skipped:  summary.Skipped,
			Queued:   queued,
			Duration: summary.Duration,
		},
	}

	pages, err := s.db.QueryContext(ctx, `SELECT url FROM run_pages WHERE run_id = ?`, fullID)
	if err != nil {
		return nil, fmt.Errorf("query pages: %w", err)
	}
	defer pages.Close()
	for pages.Next() {
		var pageURL string
		if err := pages.Scan(&pageURL); err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		report.Pages[pageURL] = result.Counts{}
	}
	if err := pages.Err(); err != nil {
		return nil, fmt.Errorf("iterate pages: %w", err)
	}

	counts, err := s.db.QueryContext(ctx, `SELECT url, term, count FROM term_counts WHERE run_id = ?`, fullID)
	if err != nil {
		return nil, fmt.Errorf("query counts: %w", err)
	}
	defer counts.Close()
	for counts.Next() {
		var (
			pageURL, term string
			n             int
		)
		if err := counts.Scan(&pageURL, &term, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		if report.Pages[pageURL] == nil {
			report.Pages[pageURL] = result.Counts{}
		}
		report.Pages[pageURL][term] = n
	}
	if err := counts.Err(); err != nil {
		return nil, fmt.Errorf("iterate counts: %w", err)
	}

	return report, nil
}

// ListRuns returns up to limit runs, newest first. A limit <= 0 lists all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	query := `
		SELECT id, seed_url, terms, started_at, duration_ms, visited, failed, skipped, queued
		FROM crawl_runs ORDER BY started_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var (
			summary RunSummary
			queued  int
		)
		if err := scanRun(rows, &summary, &queued); err != nil {
			return nil, err
		}
		runs = append(runs, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// DeleteRun removes a run and its page table.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	fullID, err := s.ResolveID(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM crawl_runs WHERE id = ?`, fullID); err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner, summary *RunSummary, queued *int) error {
	var (
		termsJSON  string
		startedAt  string
		durationMS int64
	)
	err := row.Scan(
		&summary.ID,
		&summary.SeedURL,
		&termsJSON,
		&startedAt,
		&durationMS,
		&summary.Visited,
		&summary.Failed,
		&summary.Skipped,
		queued,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrRunNotFound
	}
	if err != nil {
		return fmt.Errorf("scan run: %w", err)
	}

	if err := json.Unmarshal([]byte(termsJSON), &summary.Terms); err != nil {
		return fmt.Errorf("decode terms of run %s: %w", summary.ID, err)
	}
	summary.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt)
	if err != nil {
		return fmt.Errorf("decode start time of run %s: %w", summary.ID, err)
	}
	summary.Duration = time.Duration(durationMS) * time.Millisecond
	return nil
}
