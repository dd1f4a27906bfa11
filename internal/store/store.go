// Package store persists jobs and reports in SQLite. Report rows hoist the
// headline numbers into real columns so dashboards can query without parsing
// the report JSON.
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

	_ "modernc.org/sqlite"

	"call-audit-go/internal/types"
)

var ErrNotFound = errors.New("not found")

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	// Serialize writers; the pipeline transitions one job at a time but
	// multiple jobs run concurrently.
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	s := &Store{db: db}
	if err := s.applySchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) applySchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			audio_path TEXT NOT NULL,
			rubric_path TEXT NOT NULL DEFAULT '',
			language TEXT NOT NULL DEFAULT 'auto',
			webhook_url TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status)`,
		`CREATE TABLE IF NOT EXISTS reports (
			job_id TEXT PRIMARY KEY REFERENCES jobs(id),
			final_score REAL NOT NULL,
			mandatory_avg REAL NOT NULL,
			general_avg REAL NOT NULL,
			ethics_flag INTEGER NOT NULL,
			report_json TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema statement: %w", err)
		}
	}
	return nil
}

func (s *Store) CreateJob(ctx context.Context, job types.Job) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, status, audio_path, rubric_path, language, webhook_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, string(job.Status), job.AudioPath, job.RubricPath, job.Language, job.WebhookURL,
		job.CreatedAt.UTC().Format(time.RFC3339Nano), job.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, id string) (types.Job, error) {
	var job types.Job
	var status, createdAt, updatedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, status, audio_path, rubric_path, language, webhook_url, error, created_at, updated_at
		FROM jobs WHERE id = ?`, id,
	).Scan(&job.ID, &status, &job.AudioPath, &job.RubricPath, &job.Language, &job.WebhookURL, &job.Error, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Job{}, ErrNotFound
	}
	if err != nil {
		return types.Job{}, fmt.Errorf("query job: %w", err)
	}
	job.Status = types.JobStatus(status)
	job.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	job.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return job, nil
}

// Transition moves a job from one status to another atomically. It returns
// false when the job is not currently in the expected status, which is how
// the pipeline rejects a duplicate run claiming the same job.
func (s *Store) Transition(ctx context.Context, id string, from, to types.JobStatus) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(to), time.Now().UTC().Format(time.RFC3339Nano), id, string(from),
	)
	if err != nil {
		return false, fmt.Errorf("transition job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition rows affected: %w", err)
	}
	return n > 0, nil
}

// MarkFailed is terminal and valid from any non-terminal state.
func (s *Store) MarkFailed(ctx context.Context, id, cause string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, error = ?, updated_at = ?
		WHERE id = ? AND status NOT IN (?, ?)`,
		string(types.StatusFailed), cause, time.Now().UTC().Format(time.RFC3339Nano),
		id, string(types.StatusDone), string(types.StatusFailed),
	)
	if err != nil {
		return fmt.Errorf("mark job failed: %w", err)
	}
	return nil
}

func (s *Store) SaveReport(ctx context.Context, jobID string, rep types.Report) error {
	payload, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	ethicsFlag := 0
	if rep.Scores.EthicsFlag {
		ethicsFlag = 1
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO reports (job_id, final_score, mandatory_avg, general_avg, ethics_flag, report_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		jobID, rep.Scores.FinalScore, rep.Scores.MandatoryAvg, rep.Scores.GeneralAvg,
		ethicsFlag, string(payload), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

func (s *Store) GetReport(ctx context.Context, jobID string) (types.Report, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT report_json FROM reports WHERE job_id = ?`, jobID,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Report{}, ErrNotFound
	}
	if err != nil {
		return types.Report{}, fmt.Errorf("query report: %w", err)
	}
	var rep types.Report
	if err := json.Unmarshal([]byte(payload), &rep); err != nil {
		return types.Report{}, fmt.Errorf("unmarshal report: %w", err)
	}
	return rep, nil
}
