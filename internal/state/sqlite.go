// Package state records pipeline run history in a SQLite database.
package state

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Run status values.
type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusSuccess RunStatus = "success"
	RunStatusFailed  RunStatus = "failed"
)

// Run is one recorded pipeline invocation.
type Run struct {
	ID          string
	Status      RunStatus
	StartedAt   time.Time
	CompletedAt *time.Time
	Error       string
}

// StageRun is one stage outcome within a run.
type StageRun struct {
	RunID    string
	Stage    string
	Status   string
	Duration time.Duration
	Artifact string
	Error    string
}

// Store persists runs and their stage outcomes.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates an unopened store.
func NewStore() *Store {
	return &Store{}
}

// Open opens the database at path, creating parent directories as
// needed. Use ":memory:" for an in-memory database.
func (s *Store) Open(path string) error {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create state directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping sqlite database: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	s.path = path
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// InitSchema creates the tables if they do not exist.
func (s *Store) InitSchema() error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

func generateID() string {
	return uuid.New().String()
}

// CreateRun records the start of a pipeline run.
func (s *Store) CreateRun() (*Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	run := &Run{
		ID:        generateID(),
		Status:    RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.db.Exec(
		`INSERT INTO runs (id, status, started_at) VALUES (?, ?, ?)`,
		run.ID, run.Status, run.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

// CompleteRun marks a run finished with the given status.
func (s *Store) CompleteRun(id string, status RunStatus, errMsg string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	var errVal any
	if errMsg != "" {
		errVal = errMsg
	}
	_, err := s.db.Exec(
		`UPDATE runs SET status = ?, completed_at = ?, error = ? WHERE id = ?`,
		status, time.Now().UTC(), errVal, id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(id string) (*Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	run := &Run{}
	var completedAt sql.NullTime
	var errMsg sql.NullString
	err := s.db.QueryRow(
		`SELECT id, status, started_at, completed_at, error FROM runs WHERE id = ?`, id,
	).Scan(&run.ID, &run.Status, &run.StartedAt, &completedAt, &errMsg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	run.Error = errMsg.String
	return run, nil
}

// ListRuns retrieves the most recent runs, newest first.
func (s *Store) ListRuns(limit int) ([]*Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(
		`SELECT id, status, started_at, completed_at, error FROM runs
		 ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*Run
	for rows.Next() {
		run := &Run{}
		var completedAt sql.NullTime
		var errMsg sql.NullString
		if err := rows.Scan(&run.ID, &run.Status, &run.StartedAt, &completedAt, &errMsg); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if completedAt.Valid {
			run.CompletedAt = &completedAt.Time
		}
		run.Error = errMsg.String
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// RecordStageRun appends one stage outcome to a run.
func (s *Store) RecordStageRun(sr StageRun) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	var artifact, errVal any
	if sr.Artifact != "" {
		artifact = sr.Artifact
	}
	if sr.Error != "" {
		errVal = sr.Error
	}
	_, err := s.db.Exec(
		`INSERT INTO stage_runs (run_id, stage, status, duration_ms, artifact, error)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sr.RunID, sr.Stage, sr.Status, sr.Duration.Milliseconds(), artifact, errVal,
	)
	if err != nil {
		return fmt.Errorf("failed to record stage run: %w", err)
	}
	return nil
}

// StageRuns retrieves the stage outcomes of one run, in insertion
// order.
func (s *Store) StageRuns(runID string) ([]StageRun, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.Query(
		`SELECT run_id, stage, status, duration_ms, artifact, error
		 FROM stage_runs WHERE run_id = ? ORDER BY id`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list stage runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []StageRun
	for rows.Next() {
		var sr StageRun
		var durationMS int64
		var artifact, errMsg sql.NullString
		if err := rows.Scan(&sr.RunID, &sr.Stage, &sr.Status, &durationMS, &artifact, &errMsg); err != nil {
			return nil, fmt.Errorf("failed to scan stage run: %w", err)
		}
		sr.Duration = time.Duration(durationMS) * time.Millisecond
		sr.Artifact = artifact.String
		sr.Error = errMsg.String
		out = append(out, sr)
	}
	return out, rows.Err()
}
