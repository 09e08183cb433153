// Package jobstore persists render jobs in a SQLite database inside the run
// directory, so a later process can report on or resume them.
package jobstore

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/forPelevin/vertclip/internal/render"
)

// FileName is the database file created in each run directory.
const FileName = "jobs.db"

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped whenever schema.sql changes. Old run directories
// are not migrated.
const schemaVersion = 1

var (
	ErrSchemaMismatch = errors.New("schema version mismatch")
	ErrNotFound       = errors.New("not found")
)

// RunInfo describes the run a database belongs to. It holds everything a
// resume needs beyond the jobs themselves.
type RunInfo struct {
	RunID      string          `json:"run_id"`
	Input      string          `json:"input"`
	Transcript string          `json:"transcript"`
	Config     json.RawMessage `json:"config,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

type Store struct {
	db *sql.DB
}

// Open creates or opens the job database in runDir.
func Open(ctx context.Context, runDir string) (*Store, error) {
	path := filepath.Join(runDir, FileName)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// Parallel render workers share this handle.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	s := &Store{db: db}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d", ErrSchemaMismatch, version, schemaVersion)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

func (s *Store) SaveRun(ctx context.Context, info RunInfo) error {
	b, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("marshal run info: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO run_info (id, info_json, updated_at) VALUES (1, ?, ?)
         ON CONFLICT(id) DO UPDATE SET info_json = excluded.info_json, updated_at = excluded.updated_at`,
		string(b), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save run info: %w", err)
	}
	return nil
}

func (s *Store) Run(ctx context.Context) (RunInfo, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT info_json FROM run_info WHERE id = 1").Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return RunInfo{}, fmt.Errorf("run info: %w", ErrNotFound)
	}
	if err != nil {
		return RunInfo{}, fmt.Errorf("load run info: %w", err)
	}
	var info RunInfo
	if err := json.Unmarshal([]byte(raw), &info); err != nil {
		return RunInfo{}, fmt.Errorf("decode run info: %w", err)
	}
	return info, nil
}

// Save upserts one attempt of a job. Earlier attempts keep their own rows.
func (s *Store) Save(ctx context.Context, job *render.Job) error {
	b, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs (
            job_id, attempt, clip_id, clip_start_ms, clip_end_ms,
            failed_stage, reason, state_json, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(job_id, attempt) DO UPDATE SET
            failed_stage = excluded.failed_stage,
            reason = excluded.reason,
            state_json = excluded.state_json,
            updated_at = excluded.updated_at`,
		job.ID,
		job.Attempt,
		job.Clip.ID,
		job.Clip.Start.Milliseconds(),
		job.Clip.End.Milliseconds(),
		nullableString(string(job.FailedStage)),
		nullableString(job.Reason),
		string(b),
		job.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save job %s attempt %d: %w", job.ID, job.Attempt, err)
	}
	return nil
}

// Latest returns the newest attempt of every job, ordered by clip.
func (s *Store) Latest(ctx context.Context) ([]*render.Job, error) {
	return s.query(ctx,
		`SELECT j.state_json FROM jobs j
         JOIN (SELECT job_id, MAX(attempt) AS attempt FROM jobs GROUP BY job_id) m
           ON m.job_id = j.job_id AND m.attempt = j.attempt
         ORDER BY j.clip_start_ms, j.clip_id`)
}

// Attempts returns every attempt of one job, oldest first.
func (s *Store) Attempts(ctx context.Context, jobID string) ([]*render.Job, error) {
	jobs, err := s.query(ctx, "SELECT state_json FROM jobs WHERE job_id = ? ORDER BY attempt", jobID)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("job %s: %w", jobID, ErrNotFound)
	}
	return jobs, nil
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]*render.Job, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var out []*render.Job
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		var job render.Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			return nil, fmt.Errorf("decode job: %w", err)
		}
		out = append(out, &job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return out, nil
}

func nullableString(v string) any {
	if v == "" {
		return nil
	}
	return v
}
