package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/bearmemori/bearmemori/internal/apperr"
)

// UpsertTags adds or updates tags on a memory (worker-suggested or
// user-confirmed), reindexing the memory's FTS row and recording one audit
// entry per call.
func (s *SQLiteStore) UpsertTags(ctx context.Context, memoryID string, tags []TagInput, actor string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Infra("begin upsert tags", err)
	}
	defer tx.Rollback()

	if _, err := getMemoryTx(ctx, tx, memoryID); err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, t := range tags {
		var suggestedAt, confirmedAt any
		if t.Status == TagSuggested {
			suggestedAt = now
		} else {
			confirmedAt = now
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO memory_tags (memory_id, tag, status, suggested_at, confirmed_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(memory_id, tag) DO UPDATE SET status=excluded.status,
				suggested_at=COALESCE(excluded.suggested_at, memory_tags.suggested_at),
				confirmed_at=COALESCE(excluded.confirmed_at, memory_tags.confirmed_at)
		`, memoryID, t.Tag, t.Status, suggestedAt, confirmedAt)
		if err != nil {
			return apperr.Infra("upsert tag", err)
		}
	}

	if err := reindexIfConfirmed(ctx, tx, memoryID); err != nil {
		return apperr.Infra("reindex after tag upsert", err)
	}

	if err := insertAuditTx(ctx, tx, "memory", memoryID, ActionUpdated, actor, nil); err != nil {
		return apperr.Infra("audit upsert tags", err)
	}

	return tx.Commit()
}

// RemoveTag deletes one tag from a memory, reindexing and auditing.
func (s *SQLiteStore) RemoveTag(ctx context.Context, memoryID, tag string, actor string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Infra("begin remove tag", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM memory_tags WHERE memory_id = ? AND tag = ?`, memoryID, tag)
	if err != nil {
		return apperr.Infra("remove tag", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("tag not found")
	}

	if err := reindexIfConfirmed(ctx, tx, memoryID); err != nil {
		return apperr.Infra("reindex after tag removal", err)
	}
	if err := insertAuditTx(ctx, tx, "memory", memoryID, ActionUpdated, actor, nil); err != nil {
		return apperr.Infra("audit remove tag", err)
	}

	return tx.Commit()
}

// ListTags returns every tag on a memory, confirmed and suggested.
func (s *SQLiteStore) ListTags(ctx context.Context, memoryID string) ([]MemoryTag, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT memory_id, tag, status, suggested_at, confirmed_at FROM memory_tags WHERE memory_id = ?
	`, memoryID)
	if err != nil {
		return nil, apperr.Infra("list tags", err)
	}
	defer rows.Close()

	var out []MemoryTag
	for rows.Next() {
		t, err := scanTag(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTag(rows *sql.Rows) (MemoryTag, error) {
	var t MemoryTag
	var suggestedAt, confirmedAt sql.NullTime
	if err := rows.Scan(&t.MemoryID, &t.Tag, &t.Status, &suggestedAt, &confirmedAt); err != nil {
		return t, apperr.Infra("scan tag", err)
	}
	if suggestedAt.Valid {
		t.SuggestedAt = &suggestedAt.Time
	}
	if confirmedAt.Valid {
		t.ConfirmedAt = &confirmedAt.Time
	}
	return t, nil
}

// ListExpiredSuggestedTags returns suggested tags older than the caller's
// cutoff, for the housekeeping scheduler's expiry task.
func (s *SQLiteStore) ListExpiredSuggestedTags(ctx context.Context, asOf time.Time) ([]MemoryTag, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT memory_id, tag, status, suggested_at, confirmed_at
		FROM memory_tags WHERE status = 'suggested' AND suggested_at <= ?
	`, asOf)
	if err != nil {
		return nil, apperr.Infra("list expired tags", err)
	}
	defer rows.Close()

	var out []MemoryTag
	for rows.Next() {
		t, err := scanTag(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
