package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/bearmemori/bearmemori/internal/apperr"
)

// insertAuditTx appends one audit row as part of an in-flight transaction,
// so the primary mutation and its audit entry always commit together.
func insertAuditTx(ctx context.Context, tx *sql.Tx, entityType, entityID string, action AuditAction, actor string, detail *string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO audit_log (entity_type, entity_id, action, actor, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, entityType, entityID, action, actor, detail, time.Now().UTC())
	return err
}

// AppendAudit writes a standalone audit entry outside of any other
// transaction, for callers (e.g. scheduler tasks) that need to record an
// action not already wrapped in an entity mutation.
func (s *SQLiteStore) AppendAudit(ctx context.Context, a *AuditLog) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (entity_type, entity_id, action, actor, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, a.EntityType, a.EntityID, a.Action, a.Actor, a.Detail, a.CreatedAt)
	if err != nil {
		return apperr.Infra("append audit", err)
	}
	return nil
}

// ListAudit returns the most recent audit rows for an entity (or all
// entities of a type if entityID is empty), newest first.
func (s *SQLiteStore) ListAudit(ctx context.Context, entityType, entityID string, limit int) ([]*AuditLog, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT id, entity_type, entity_id, action, actor, detail, created_at FROM audit_log WHERE 1=1`
	args := []any{}
	if entityType != "" {
		query += ` AND entity_type = ?`
		args = append(args, entityType)
	}
	if entityID != "" {
		query += ` AND entity_id = ?`
		args = append(args, entityID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Infra("list audit", err)
	}
	defer rows.Close()

	var out []*AuditLog
	for rows.Next() {
		var a AuditLog
		if err := rows.Scan(&a.ID, &a.EntityType, &a.EntityID, &a.Action, &a.Actor, &a.Detail, &a.CreatedAt); err != nil {
			return nil, apperr.Infra("scan audit", err)
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}
