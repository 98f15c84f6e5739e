package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Job is one pipeline run as recorded in the jobs table.
type Job struct {
	ID        string
	CaseID    string
	Status    string
	Sources   []string
	Stage     string
	Error     string
	Result    json.RawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
}

type jobRow struct {
	ID        string         `db:"job_id"`
	CaseID    string         `db:"case_id"`
	Status    string         `db:"status"`
	Sources   string         `db:"sources"`
	Stage     string         `db:"stage"`
	Error     string         `db:"error"`
	Result    sql.NullString `db:"result"`
	CreatedAt string         `db:"created_at"`
	UpdatedAt string         `db:"updated_at"`
}

// StartJob records a new PROCESSING job for caseID and returns its id.
func (s *Store) StartJob(ctx context.Context, caseID string, sources []string) (string, error) {
	id := uuid.NewString()
	now := timeToString(s.clock())
	_, err := s.db.ExecContext(ctx, `INSERT INTO jobs (job_id, case_id, status, sources, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`, id, caseID, StatusProcessing, marshalList(sources), now, now)
	if err != nil {
		return "", fmt.Errorf("start job: %w", err)
	}
	return id, nil
}

// CompleteJob marks the job COMPLETE and stores result as JSON.
func (s *Store) CompleteJob(ctx context.Context, id string, result any) error {
	b, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode job result: %w", err)
	}
	return s.finish(ctx, id, `UPDATE jobs SET status = ?, result = ?, stage = '', error = '', updated_at = ? WHERE job_id = ?`,
		StatusComplete, string(b), timeToString(s.clock()), id)
}

// FailJob marks the job FAILED with the stage that failed and the error.
func (s *Store) FailJob(ctx context.Context, id, stage string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return s.finish(ctx, id, `UPDATE jobs SET status = ?, stage = ?, error = ?, updated_at = ? WHERE job_id = ?`,
		StatusFailed, stage, msg, timeToString(s.clock()), id)
}

func (s *Store) finish(ctx context.Context, id, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update job %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update job %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, id string) (Job, error) {
	var r jobRow
	err := s.db.GetContext(ctx, &r, `SELECT job_id, case_id, status, sources, stage, error, result, created_at, updated_at
		FROM jobs WHERE job_id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if err != nil {
		return Job{}, fmt.Errorf("get job %s: %w", id, err)
	}
	j := Job{
		ID:      r.ID,
		CaseID:  r.CaseID,
		Status:  r.Status,
		Sources: unmarshalList(r.Sources),
		Stage:   r.Stage,
		Error:   r.Error,
	}
	if r.Result.Valid && r.Result.String != "" {
		j.Result = json.RawMessage(r.Result.String)
	}
	j.CreatedAt, _ = time.Parse(time.RFC3339Nano, r.CreatedAt)
	j.UpdatedAt, _ = time.Parse(time.RFC3339Nano, r.UpdatedAt)
	return j, nil
}
