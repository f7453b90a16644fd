package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/bearmemori/bearmemori/internal/apperr"
	"github.com/google/uuid"
)

const reminderSelect = `SELECT id, memory_id, owner_user_id, fire_at, recurrence_minutes, fired, text, created_at, updated_at FROM reminders`

// CreateReminder inserts a new reminder.
func (s *SQLiteStore) CreateReminder(ctx context.Context, r *Reminder) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Infra("begin create reminder", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO reminders (id, memory_id, owner_user_id, fire_at, recurrence_minutes, fired, text, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, nullable(r.MemoryID), r.OwnerUserID, r.FireAt, nullable(r.RecurrenceMinutes), r.Fired, nullable(r.Text), r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return apperr.Infra("insert reminder", err)
	}
	if err := insertAuditTx(ctx, tx, "reminder", r.ID, ActionCreated, "user:"+itoa(r.OwnerUserID), nil); err != nil {
		return apperr.Infra("audit create reminder", err)
	}
	return tx.Commit()
}

// GetReminder fetches a single reminder.
func (s *SQLiteStore) GetReminder(ctx context.Context, id string) (*Reminder, error) {
	row := s.db.QueryRowContext(ctx, reminderSelect+` WHERE id = ?`, id)
	return scanReminderRow(row)
}

// ListReminders returns every reminder owned by a user.
func (s *SQLiteStore) ListReminders(ctx context.Context, ownerUserID int64) ([]*Reminder, error) {
	rows, err := s.db.QueryContext(ctx, reminderSelect+` WHERE owner_user_id = ? ORDER BY fire_at ASC`, ownerUserID)
	if err != nil {
		return nil, apperr.Infra("list reminders", err)
	}
	defer rows.Close()

	var out []*Reminder
	for rows.Next() {
		r, err := scanReminderRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpdateReminder applies a patch to a reminder.
func (s *SQLiteStore) UpdateReminder(ctx context.Context, id string, patch ReminderPatch) (*Reminder, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Infra("begin update reminder", err)
	}
	defer tx.Rollback()

	existing, err := getReminderTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if patch.FireAt != nil {
		existing.FireAt = *patch.FireAt
	}
	if patch.RecurrenceMinutes != nil {
		existing.RecurrenceMinutes = *patch.RecurrenceMinutes
	}
	if patch.Text != nil {
		existing.Text = patch.Text
	}
	if patch.Fired != nil {
		existing.Fired = *patch.Fired
	}
	existing.UpdatedAt = time.Now().UTC()

	_, err = tx.ExecContext(ctx, `
		UPDATE reminders SET fire_at=?, recurrence_minutes=?, fired=?, text=?, updated_at=? WHERE id=?
	`, existing.FireAt, nullable(existing.RecurrenceMinutes), existing.Fired, nullable(existing.Text), existing.UpdatedAt, id)
	if err != nil {
		return nil, apperr.Infra("update reminder", err)
	}

	action := ActionUpdated
	if patch.Fired != nil && *patch.Fired {
		action = ActionFired
	}
	if err := insertAuditTx(ctx, tx, "reminder", id, action, "system", nil); err != nil {
		return nil, apperr.Infra("audit update reminder", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperr.Infra("commit update reminder", err)
	}
	return existing, nil
}

// DeleteReminder removes a reminder permanently.
func (s *SQLiteStore) DeleteReminder(ctx context.Context, id string, actor string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Infra("begin delete reminder", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM reminders WHERE id = ?`, id)
	if err != nil {
		return apperr.Infra("delete reminder", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("reminder not found")
	}
	if err := insertAuditTx(ctx, tx, "reminder", id, ActionDeleted, actor, nil); err != nil {
		return apperr.Infra("audit delete reminder", err)
	}
	return tx.Commit()
}

// ListDueReminders returns unfired reminders whose fire_at has passed, for
// the housekeeping scheduler, ordered by fire_at so the oldest fires first.
func (s *SQLiteStore) ListDueReminders(ctx context.Context, asOf time.Time) ([]*Reminder, error) {
	rows, err := s.db.QueryContext(ctx, reminderSelect+` WHERE fired = 0 AND fire_at <= ? ORDER BY fire_at ASC`, asOf)
	if err != nil {
		return nil, apperr.Infra("list due reminders", err)
	}
	defer rows.Close()

	var out []*Reminder
	for rows.Next() {
		r, err := scanReminderRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// FireReminder marks a reminder fired and, if it recurs, inserts the child
// reminder in the same transaction — used by the scheduler so the fire and
// the spawn are atomic.
func (s *SQLiteStore) FireReminder(ctx context.Context, id string) (child *Reminder, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Infra("begin fire reminder", err)
	}
	defer tx.Rollback()

	r, err := getReminderTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `UPDATE reminders SET fired=1, updated_at=? WHERE id=?`, now, id); err != nil {
		return nil, apperr.Infra("fire reminder", err)
	}

	if r.RecurrenceMinutes != nil {
		nextFire := r.FireAt.Add(time.Duration(*r.RecurrenceMinutes) * time.Minute)
		c := &Reminder{
			ID:                uuid.NewString(),
			MemoryID:          r.MemoryID,
			OwnerUserID:       r.OwnerUserID,
			FireAt:            nextFire,
			RecurrenceMinutes: r.RecurrenceMinutes,
			Fired:             false,
			Text:              r.Text,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO reminders (id, memory_id, owner_user_id, fire_at, recurrence_minutes, fired, text, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, c.ID, nullable(c.MemoryID), c.OwnerUserID, c.FireAt, nullable(c.RecurrenceMinutes), c.Fired, nullable(c.Text), c.CreatedAt, c.UpdatedAt)
		if err != nil {
			return nil, apperr.Infra("spawn recurring reminder", err)
		}
		if err := insertAuditTx(ctx, tx, "reminder", c.ID, ActionCreated, "system", nil); err != nil {
			return nil, apperr.Infra("audit spawn reminder", err)
		}
		child = c
	}

	if err := insertAuditTx(ctx, tx, "reminder", id, ActionFired, "system", nil); err != nil {
		return nil, apperr.Infra("audit fire reminder", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperr.Infra("commit fire reminder", err)
	}
	return child, nil
}

func getReminderTx(ctx context.Context, tx *sql.Tx, id string) (*Reminder, error) {
	row := tx.QueryRowContext(ctx, reminderSelect+` WHERE id = ?`, id)
	return scanReminderRow(row)
}

func scanReminderRow(row *sql.Row) (*Reminder, error) {
	var r Reminder
	var memoryID, text sql.NullString
	var recurrence sql.NullInt64

	err := row.Scan(&r.ID, &memoryID, &r.OwnerUserID, &r.FireAt, &recurrence, &r.Fired, &text, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("reminder not found")
		}
		return nil, apperr.Infra("get reminder", err)
	}
	applyReminderNullables(&r, memoryID, text, recurrence)
	return &r, nil
}

func scanReminderRows(rows *sql.Rows) (*Reminder, error) {
	var r Reminder
	var memoryID, text sql.NullString
	var recurrence sql.NullInt64

	err := rows.Scan(&r.ID, &memoryID, &r.OwnerUserID, &r.FireAt, &recurrence, &r.Fired, &text, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, apperr.Infra("scan reminder", err)
	}
	applyReminderNullables(&r, memoryID, text, recurrence)
	return &r, nil
}

func applyReminderNullables(r *Reminder, memoryID, text sql.NullString, recurrence sql.NullInt64) {
	if memoryID.Valid {
		r.MemoryID = &memoryID.String
	}
	if text.Valid {
		r.Text = &text.String
	}
	if recurrence.Valid {
		r.RecurrenceMinutes = &recurrence.Int64
	}
}
