package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/bearmemori/bearmemori/internal/apperr"
	"github.com/google/uuid"
)

const jobSelect = `SELECT id, job_type, payload, user_id, status, result, error_message, created_at, updated_at FROM llm_jobs`

// CreateJob inserts a new LLM job row in the queued state.
func (s *SQLiteStore) CreateJob(ctx context.Context, j *LLMJob) error {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	j.CreatedAt, j.UpdatedAt = now, now
	if j.Status == "" {
		j.Status = JobQueued
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Infra("begin create job", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO llm_jobs (id, job_type, payload, user_id, status, result, error_message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, j.ID, j.JobType, j.Payload, nullable(j.UserID), j.Status, nullable(j.Result), nullable(j.ErrorMessage), j.CreatedAt, j.UpdatedAt)
	if err != nil {
		return apperr.Infra("insert job", err)
	}
	if err := insertAuditTx(ctx, tx, "llm_job", j.ID, ActionCreated, "system", nil); err != nil {
		return apperr.Infra("audit create job", err)
	}
	return tx.Commit()
}

// GetJob fetches a single LLM job.
func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*LLMJob, error) {
	row := s.db.QueryRowContext(ctx, jobSelect+` WHERE id = ?`, id)
	return scanJobRow(row)
}

// UpdateJob applies a patch to an LLM job's state-machine fields.
func (s *SQLiteStore) UpdateJob(ctx context.Context, id string, patch JobPatch) (*LLMJob, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Infra("begin update job", err)
	}
	defer tx.Rollback()

	existing, err := getJobTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if patch.Status != nil {
		existing.Status = *patch.Status
	}
	if patch.Result != nil {
		existing.Result = patch.Result
	}
	if patch.ErrorMessage != nil {
		existing.ErrorMessage = patch.ErrorMessage
	}
	existing.UpdatedAt = time.Now().UTC()

	_, err = tx.ExecContext(ctx, `
		UPDATE llm_jobs SET status=?, result=?, error_message=?, updated_at=? WHERE id=?
	`, existing.Status, nullable(existing.Result), nullable(existing.ErrorMessage), existing.UpdatedAt, id)
	if err != nil {
		return nil, apperr.Infra("update job", err)
	}

	if err := insertAuditTx(ctx, tx, "llm_job", id, ActionUpdated, "llm_worker", nil); err != nil {
		return nil, apperr.Infra("audit update job", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperr.Infra("commit update job", err)
	}
	return existing, nil
}

func getJobTx(ctx context.Context, tx *sql.Tx, id string) (*LLMJob, error) {
	row := tx.QueryRowContext(ctx, jobSelect+` WHERE id = ?`, id)
	return scanJobRow(row)
}

func scanJobRow(row *sql.Row) (*LLMJob, error) {
	var j LLMJob
	var userID sql.NullInt64
	var result, errMsg sql.NullString

	err := row.Scan(&j.ID, &j.JobType, &j.Payload, &userID, &j.Status, &result, &errMsg, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("job not found")
		}
		return nil, apperr.Infra("get job", err)
	}
	if userID.Valid {
		j.UserID = &userID.Int64
	}
	if result.Valid {
		j.Result = &result.String
	}
	if errMsg.Valid {
		j.ErrorMessage = &errMsg.String
	}
	return &j, nil
}
