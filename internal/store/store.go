// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store persists the collaborator response cache and the run
// archive in a SQLite database at <dir>/harmonizer.db.
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

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/record-harmonizer/pkg/types"
)

const dbFile = "harmonizer.db"

// timeLayout keeps every created_at the same width so text order is time
// order. RFC3339Nano trims trailing zeros and breaks that.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrNotFound is returned when a run ID is not in the archive.
var ErrNotFound = errors.New("run not found")

// Store wraps the database. It is safe for concurrent use.
type Store struct {
	db *sqlx.DB
}

// Open opens or creates the database in dir and applies the schema.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	db, err := sqlx.Connect("sqlite3", Path(dir)+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One writer at a time; batch runs share the store.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Path returns the database file inside dir.
func Path(dir string) string {
	return filepath.Join(dir, dbFile)
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS responses (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			patient TEXT NOT NULL,
			documents TEXT NOT NULL,
			complete INTEGER NOT NULL,
			failed_stage TEXT NOT NULL,
			conflicts INTEGER NOT NULL,
			report TEXT NOT NULL,
			markdown TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Get implements collab.Cache.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.GetContext(ctx, &value, `SELECT value FROM responses WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading cached response: %w", err)
	}
	return value, true, nil
}

// Put implements collab.Cache.
func (s *Store) Put(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO responses (key, value, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value, created_at=excluded.created_at`,
		key, value, time.Now().UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("caching response: %w", err)
	}
	return nil
}

// Run is one archived pipeline run.
type Run struct {
	ID          string            `json:"id" yaml:"id"`
	Patient     string            `json:"patient" yaml:"patient"`
	Documents   []string          `json:"documents" yaml:"documents"`
	Complete    bool              `json:"complete" yaml:"complete"`
	FailedStage string            `json:"failed_stage,omitempty" yaml:"failed_stage,omitempty"`
	Conflicts   int               `json:"conflicts" yaml:"conflicts"`
	Report      types.FinalReport `json:"report" yaml:"report"`
	Markdown    string            `json:"-" yaml:"-"`
	CreatedAt   time.Time         `json:"created_at" yaml:"created_at"`
}

type runRow struct {
	ID          string `db:"id"`
	Patient     string `db:"patient"`
	Documents   string `db:"documents"`
	Complete    bool   `db:"complete"`
	FailedStage string `db:"failed_stage"`
	Conflicts   int    `db:"conflicts"`
	Report      string `db:"report"`
	Markdown    string `db:"markdown"`
	CreatedAt   string `db:"created_at"`
}

// SaveRun archives r, replacing any run with the same ID.
func (s *Store) SaveRun(ctx context.Context, r Run) error {
	docs, err := json.Marshal(r.Documents)
	if err != nil {
		return fmt.Errorf("encoding documents: %w", err)
	}
	report, err := json.Marshal(r.Report)
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}

	_, err = s.db.NamedExecContext(ctx,
		`INSERT OR REPLACE INTO runs (id, patient, documents, complete, failed_stage, conflicts, report, markdown, created_at)
		 VALUES (:id, :patient, :documents, :complete, :failed_stage, :conflicts, :report, :markdown, :created_at)`,
		runRow{
			ID:          r.ID,
			Patient:     r.Patient,
			Documents:   string(docs),
			Complete:    r.Complete,
			FailedStage: r.FailedStage,
			Conflicts:   r.Conflicts,
			Report:      string(report),
			Markdown:    r.Markdown,
			CreatedAt:   r.CreatedAt.UTC().Format(timeLayout),
		})
	if err != nil {
		return fmt.Errorf("saving run %s: %w", r.ID, err)
	}
	return nil
}

// ListRuns returns up to limit runs, newest first. A limit of zero or less
// returns every run.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	var rows []runRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM runs ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}

	runs := make([]Run, 0, len(rows))
	for _, row := range rows {
		r, err := row.run()
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, nil
}

// GetRun returns the run with the given ID, or ErrNotFound.
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	var row runRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM runs WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("reading run %s: %w", id, err)
	}
	return row.run()
}

func (row runRow) run() (Run, error) {
	r := Run{
		ID:          row.ID,
		Patient:     row.Patient,
		Complete:    row.Complete,
		FailedStage: row.FailedStage,
		Conflicts:   row.Conflicts,
		Markdown:    row.Markdown,
	}
	if err := json.Unmarshal([]byte(row.Documents), &r.Documents); err != nil {
		return Run{}, fmt.Errorf("decoding documents of run %s: %w", row.ID, err)
	}
	if err := json.Unmarshal([]byte(row.Report), &r.Report); err != nil {
		return Run{}, fmt.Errorf("decoding report of run %s: %w", row.ID, err)
	}
	t, err := time.Parse(time.RFC3339Nano, row.CreatedAt)
	if err != nil {
		return Run{}, fmt.Errorf("decoding created_at of run %s: %w", row.ID, err)
	}
	r.CreatedAt = t
	return r, nil
}
