package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/bearmemori/bearmemori/internal/apperr"
	"github.com/google/uuid"
)

// CreateTask inserts a new task and its creation audit entry.
func (s *SQLiteStore) CreateTask(ctx context.Context, t *Task) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now
	if t.State == "" {
		t.State = TaskNotDone
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Infra("begin create task", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tasks (id, memory_id, owner_user_id, description, state, due_at, recurrence_minutes,
			completed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, nullable(t.MemoryID), t.OwnerUserID, t.Description, t.State, nullable(t.DueAt),
		nullable(t.RecurrenceMinutes), nullable(t.CompletedAt), t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return apperr.Infra("insert task", err)
	}

	if err := insertAuditTx(ctx, tx, "task", t.ID, ActionCreated, "user:"+itoa(t.OwnerUserID), nil); err != nil {
		return apperr.Infra("audit create task", err)
	}
	return tx.Commit()
}

// GetTask fetches a single task.
func (s *SQLiteStore) GetTask(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, taskSelect+` WHERE id = ?`, id)
	return scanTaskRow(row)
}

// ListTasks returns every task owned by a user, newest first.
func (s *SQLiteStore) ListTasks(ctx context.Context, ownerUserID int64) ([]*Task, error) {
	rows, err := s.db.QueryContext(ctx, taskSelect+` WHERE owner_user_id = ? ORDER BY created_at DESC`, ownerUserID)
	if err != nil {
		return nil, apperr.Infra("list tasks", err)
	}
	defer rows.Close()

	var out []*Task
	for rows.Next() {
		t, err := scanTaskRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

const taskSelect = `SELECT id, memory_id, owner_user_id, description, state, due_at, recurrence_minutes, completed_at, created_at, updated_at FROM tasks`

// UpdateTask applies a patch. When the transition is NOT_DONE -> DONE on a
// task with a recurrence set, it spawns the child task in the same
// transaction as the parent's completion.
func (s *SQLiteStore) UpdateTask(ctx context.Context, id string, patch TaskPatch) (*Task, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Infra("begin update task", err)
	}
	defer tx.Rollback()

	existing, err := getTaskTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	wasNotDone := existing.State == TaskNotDone
	now := time.Now().UTC()

	if patch.Description != nil {
		existing.Description = *patch.Description
	}
	if patch.DueAt != nil {
		existing.DueAt = patch.DueAt
	}
	if patch.RecurrenceMinutes != nil {
		existing.RecurrenceMinutes = *patch.RecurrenceMinutes
	}
	transitioningToDone := false
	if patch.State != nil {
		if wasNotDone && *patch.State == TaskDone {
			transitioningToDone = true
		}
		existing.State = *patch.State
	}
	if transitioningToDone {
		existing.CompletedAt = &now
	}
	existing.UpdatedAt = now

	_, err = tx.ExecContext(ctx, `
		UPDATE tasks SET description=?, state=?, due_at=?, recurrence_minutes=?, completed_at=?, updated_at=? WHERE id=?
	`, existing.Description, existing.State, nullable(existing.DueAt), nullable(existing.RecurrenceMinutes),
		nullable(existing.CompletedAt), existing.UpdatedAt, id)
	if err != nil {
		return nil, apperr.Infra("update task", err)
	}

	if transitioningToDone && existing.RecurrenceMinutes != nil {
		base := now
		if existing.DueAt != nil {
			base = *existing.DueAt
		}
		nextDue := base.Add(time.Duration(*existing.RecurrenceMinutes) * time.Minute)
		child := &Task{
			ID:                uuid.NewString(),
			MemoryID:          existing.MemoryID,
			OwnerUserID:       existing.OwnerUserID,
			Description:       existing.Description,
			State:             TaskNotDone,
			DueAt:             &nextDue,
			RecurrenceMinutes: existing.RecurrenceMinutes,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO tasks (id, memory_id, owner_user_id, description, state, due_at, recurrence_minutes,
				completed_at, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, child.ID, nullable(child.MemoryID), child.OwnerUserID, child.Description, child.State,
			nullable(child.DueAt), nullable(child.RecurrenceMinutes), nullable(child.CompletedAt), child.CreatedAt, child.UpdatedAt)
		if err != nil {
			return nil, apperr.Infra("spawn recurring task", err)
		}
		if err := insertAuditTx(ctx, tx, "task", child.ID, ActionCreated, "system", nil); err != nil {
			return nil, apperr.Infra("audit spawn task", err)
		}
	}

	if err := insertAuditTx(ctx, tx, "task", id, ActionUpdated, "user:"+itoa(existing.OwnerUserID), nil); err != nil {
		return nil, apperr.Infra("audit update task", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperr.Infra("commit update task", err)
	}
	return existing, nil
}

// DeleteTask removes a task permanently.
func (s *SQLiteStore) DeleteTask(ctx context.Context, id string, actor string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Infra("begin delete task", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return apperr.Infra("delete task", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("task not found")
	}
	if err := insertAuditTx(ctx, tx, "task", id, ActionDeleted, actor, nil); err != nil {
		return apperr.Infra("audit delete task", err)
	}
	return tx.Commit()
}

func getTaskTx(ctx context.Context, tx *sql.Tx, id string) (*Task, error) {
	row := tx.QueryRowContext(ctx, taskSelect+` WHERE id = ?`, id)
	return scanTaskRow(row)
}

func scanTaskRow(row *sql.Row) (*Task, error) {
	var t Task
	var memoryID sql.NullString
	var dueAt, completedAt sql.NullTime
	var recurrence sql.NullInt64

	err := row.Scan(&t.ID, &memoryID, &t.OwnerUserID, &t.Description, &t.State, &dueAt, &recurrence, &completedAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("task not found")
		}
		return nil, apperr.Infra("get task", err)
	}
	applyTaskNullables(&t, memoryID, dueAt, completedAt, recurrence)
	return &t, nil
}

func scanTaskRows(rows *sql.Rows) (*Task, error) {
	var t Task
	var memoryID sql.NullString
	var dueAt, completedAt sql.NullTime
	var recurrence sql.NullInt64

	err := rows.Scan(&t.ID, &memoryID, &t.OwnerUserID, &t.Description, &t.State, &dueAt, &recurrence, &completedAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, apperr.Infra("scan task", err)
	}
	applyTaskNullables(&t, memoryID, dueAt, completedAt, recurrence)
	return &t, nil
}

func applyTaskNullables(t *Task, memoryID sql.NullString, dueAt, completedAt sql.NullTime, recurrence sql.NullInt64) {
	if memoryID.Valid {
		t.MemoryID = &memoryID.String
	}
	if dueAt.Valid {
		t.DueAt = &dueAt.Time
	}
	if completedAt.Valid {
		t.CompletedAt = &completedAt.Time
	}
	if recurrence.Valid {
		t.RecurrenceMinutes = &recurrence.Int64
	}
}
