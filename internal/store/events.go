package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/bearmemori/bearmemori/internal/apperr"
	"github.com/google/uuid"
)

const eventSelect = `SELECT id, memory_id, owner_user_id, description, event_time, source_type, source_detail,
	status, pending_since, reminder_id, confirmed_at, created_at, updated_at FROM events`

// CreateEvent inserts a new event, defaulting pending_since when created in
// the pending state (the normal case for email-extracted events).
func (s *SQLiteStore) CreateEvent(ctx context.Context, e *Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	e.CreatedAt, e.UpdatedAt = now, now
	if e.Status == "" {
		e.Status = EventPending
	}
	if e.Status == EventPending && e.PendingSince == nil {
		e.PendingSince = &now
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Infra("begin create event", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO events (id, memory_id, owner_user_id, description, event_time, source_type, source_detail,
			status, pending_since, reminder_id, confirmed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, nullable(e.MemoryID), e.OwnerUserID, e.Description, e.EventTime, e.SourceType, nullable(e.SourceDetail),
		e.Status, nullable(e.PendingSince), nullable(e.ReminderID), nullable(e.ConfirmedAt), e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return apperr.Infra("insert event", err)
	}
	if err := insertAuditTx(ctx, tx, "event", e.ID, ActionCreated, "user:"+itoa(e.OwnerUserID), nil); err != nil {
		return apperr.Infra("audit create event", err)
	}
	return tx.Commit()
}

// GetEvent fetches a single event.
func (s *SQLiteStore) GetEvent(ctx context.Context, id string) (*Event, error) {
	row := s.db.QueryRowContext(ctx, eventSelect+` WHERE id = ?`, id)
	return scanEventRow(row)
}

// ListEvents returns every event owned by a user.
func (s *SQLiteStore) ListEvents(ctx context.Context, ownerUserID int64) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx, eventSelect+` WHERE owner_user_id = ? ORDER BY event_time ASC`, ownerUserID)
	if err != nil {
		return nil, apperr.Infra("list events", err)
	}
	defer rows.Close()

	var out []*Event
	for rows.Next() {
		e, err := scanEventRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// UpdateEvent applies a patch. A transition into EventConfirmed creates a
// linked reminder in the same transaction, per the invariant that every
// confirmed event has a reminder whose fire_at equals its event_time.
func (s *SQLiteStore) UpdateEvent(ctx context.Context, id string, patch EventPatch) (*Event, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Infra("begin update event", err)
	}
	defer tx.Rollback()

	existing, err := getEventTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	wasPending := existing.Status == EventPending
	now := time.Now().UTC()

	if patch.Description != nil {
		existing.Description = *patch.Description
	}
	if patch.EventTime != nil {
		existing.EventTime = *patch.EventTime
	}
	transitioningToConfirmed := false
	if patch.Status != nil {
		if wasPending && *patch.Status == EventConfirmed {
			transitioningToConfirmed = true
		}
		existing.Status = *patch.Status
	}
	if transitioningToConfirmed {
		existing.ConfirmedAt = &now
		existing.PendingSince = nil

		reminder := &Reminder{
			ID:          uuid.NewString(),
			MemoryID:    existing.MemoryID,
			OwnerUserID: existing.OwnerUserID,
			FireAt:      existing.EventTime,
			Fired:       false,
			Text:        &existing.Description,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO reminders (id, memory_id, owner_user_id, fire_at, recurrence_minutes, fired, text, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, reminder.ID, nullable(reminder.MemoryID), reminder.OwnerUserID, reminder.FireAt, nullable(reminder.RecurrenceMinutes),
			reminder.Fired, nullable(reminder.Text), reminder.CreatedAt, reminder.UpdatedAt)
		if err != nil {
			return nil, apperr.Infra("create linked reminder", err)
		}
		if err := insertAuditTx(ctx, tx, "reminder", reminder.ID, ActionCreated, "system", nil); err != nil {
			return nil, apperr.Infra("audit linked reminder", err)
		}
		existing.ReminderID = &reminder.ID
	}
	existing.UpdatedAt = now

	_, err = tx.ExecContext(ctx, `
		UPDATE events SET description=?, event_time=?, status=?, pending_since=?, reminder_id=?, confirmed_at=?, updated_at=?
		WHERE id=?
	`, existing.Description, existing.EventTime, existing.Status, nullable(existing.PendingSince),
		nullable(existing.ReminderID), nullable(existing.ConfirmedAt), existing.UpdatedAt, id)
	if err != nil {
		return nil, apperr.Infra("update event", err)
	}

	action := ActionUpdated
	if patch.Status != nil {
		switch *patch.Status {
		case EventConfirmed:
			action = ActionConfirmed
		case EventRejected:
			action = ActionRejected
		}
	}
	if err := insertAuditTx(ctx, tx, "event", id, action, "user:"+itoa(existing.OwnerUserID), nil); err != nil {
		return nil, apperr.Infra("audit update event", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperr.Infra("commit update event", err)
	}
	return existing, nil
}

// DeleteEvent removes an event permanently.
func (s *SQLiteStore) DeleteEvent(ctx context.Context, id string, actor string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Infra("begin delete event", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return apperr.Infra("delete event", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("event not found")
	}
	if err := insertAuditTx(ctx, tx, "event", id, ActionDeleted, actor, nil); err != nil {
		return apperr.Infra("audit delete event", err)
	}
	return tx.Commit()
}

// ListStalePendingEvents returns pending events whose pending_since predates
// olderThan, for the housekeeping scheduler's re-prompt task.
func (s *SQLiteStore) ListStalePendingEvents(ctx context.Context, olderThan time.Time) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx, eventSelect+` WHERE status = 'pending' AND pending_since <= ?`, olderThan)
	if err != nil {
		return nil, apperr.Infra("list stale events", err)
	}
	defer rows.Close()

	var out []*Event
	for rows.Next() {
		e, err := scanEventRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ResetPendingSince advances a pending event's re-prompt clock and records
// the requeue in the audit log.
func (s *SQLiteStore) ResetPendingSince(ctx context.Context, id string, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Infra("begin reset pending_since", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE events SET pending_since=?, updated_at=? WHERE id=?`, at, at, id); err != nil {
		return apperr.Infra("reset pending_since", err)
	}
	if err := insertAuditTx(ctx, tx, "event", id, ActionRequeued, "system", nil); err != nil {
		return apperr.Infra("audit requeue event", err)
	}
	return tx.Commit()
}

func getEventTx(ctx context.Context, tx *sql.Tx, id string) (*Event, error) {
	row := tx.QueryRowContext(ctx, eventSelect+` WHERE id = ?`, id)
	return scanEventRow(row)
}

func scanEventRow(row *sql.Row) (*Event, error) {
	var e Event
	var memoryID, sourceDetail, reminderID sql.NullString
	var pendingSince, confirmedAt sql.NullTime

	err := row.Scan(&e.ID, &memoryID, &e.OwnerUserID, &e.Description, &e.EventTime, &e.SourceType, &sourceDetail,
		&e.Status, &pendingSince, &reminderID, &confirmedAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("event not found")
		}
		return nil, apperr.Infra("get event", err)
	}
	applyEventNullables(&e, memoryID, sourceDetail, reminderID, pendingSince, confirmedAt)
	return &e, nil
}

func scanEventRows(rows *sql.Rows) (*Event, error) {
	var e Event
	var memoryID, sourceDetail, reminderID sql.NullString
	var pendingSince, confirmedAt sql.NullTime

	err := rows.Scan(&e.ID, &memoryID, &e.OwnerUserID, &e.Description, &e.EventTime, &e.SourceType, &sourceDetail,
		&e.Status, &pendingSince, &reminderID, &confirmedAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, apperr.Infra("scan event", err)
	}
	applyEventNullables(&e, memoryID, sourceDetail, reminderID, pendingSince, confirmedAt)
	return &e, nil
}

func applyEventNullables(e *Event, memoryID, sourceDetail, reminderID sql.NullString, pendingSince, confirmedAt sql.NullTime) {
	if memoryID.Valid {
		e.MemoryID = &memoryID.String
	}
	if sourceDetail.Valid {
		e.SourceDetail = &sourceDetail.String
	}
	if reminderID.Valid {
		e.ReminderID = &reminderID.String
	}
	if pendingSince.Valid {
		e.PendingSince = &pendingSince.Time
	}
	if confirmedAt.Valid {
		e.ConfirmedAt = &confirmedAt.Time
	}
}
