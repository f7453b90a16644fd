package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/bearmemori/bearmemori/internal/apperr"
	"github.com/google/uuid"
)

// CreateMemory inserts a new memory (confirmed text, or pending image) and
// its creation audit entry in one transaction.
func (s *SQLiteStore) CreateMemory(ctx context.Context, m *Memory) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	m.CreatedAt, m.UpdatedAt = now, now

	if m.Status == MemoryPending && m.PendingExpiresAt == nil {
		return apperr.Validation("pending memory requires pending_expires_at")
	}
	if m.Status == MemoryConfirmed {
		m.PendingExpiresAt = nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Infra("begin create memory", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO memories (id, owner_user_id, source_chat_id, source_message_id, content, media_type,
			media_file_id, media_local_path, status, pending_expires_at, is_pinned, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.OwnerUserID, nullable(m.SourceChatID), nullable(m.SourceMessageID), nullable(m.Content),
		nullable(m.MediaType), nullable(m.MediaFileID), nullable(m.MediaLocalPath), m.Status,
		nullable(m.PendingExpiresAt), m.IsPinned, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return apperr.Infra("insert memory", err)
	}

	if m.Status == MemoryConfirmed {
		if err := reindexIfConfirmed(ctx, tx, m.ID); err != nil {
			return apperr.Infra("index memory", err)
		}
	}

	if err := insertAuditTx(ctx, tx, "memory", m.ID, ActionCreated, "user:"+itoa(m.OwnerUserID), nil); err != nil {
		return apperr.Infra("audit create memory", err)
	}

	if err := tx.Commit(); err != nil {
		return apperr.Infra("commit create memory", err)
	}
	return nil
}

// GetMemory fetches one memory by ID.
func (s *SQLiteStore) GetMemory(ctx context.Context, id string) (*Memory, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner_user_id, source_chat_id, source_message_id, content, media_type, media_file_id,
			media_local_path, status, pending_expires_at, is_pinned, created_at, updated_at
		FROM memories WHERE id = ?
	`, id)
	return scanMemory(row)
}

func scanMemory(row *sql.Row) (*Memory, error) {
	var m Memory
	var sourceChatID, sourceMessageID sql.NullInt64
	var content, mediaType, mediaFileID, mediaLocalPath sql.NullString
	var pendingExpiresAt sql.NullTime

	err := row.Scan(&m.ID, &m.OwnerUserID, &sourceChatID, &sourceMessageID, &content, &mediaType, &mediaFileID,
		&mediaLocalPath, &m.Status, &pendingExpiresAt, &m.IsPinned, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("memory not found")
		}
		return nil, apperr.Infra("get memory", err)
	}

	if sourceChatID.Valid {
		m.SourceChatID = &sourceChatID.Int64
	}
	if sourceMessageID.Valid {
		m.SourceMessageID = &sourceMessageID.Int64
	}
	if content.Valid {
		m.Content = &content.String
	}
	if mediaType.Valid {
		m.MediaType = &mediaType.String
	}
	if mediaFileID.Valid {
		m.MediaFileID = &mediaFileID.String
	}
	if mediaLocalPath.Valid {
		m.MediaLocalPath = &mediaLocalPath.String
	}
	if pendingExpiresAt.Valid {
		m.PendingExpiresAt = &pendingExpiresAt.Time
	}
	return &m, nil
}

// UpdateMemory applies a partial patch, re-derives pending/confirmed
// invariants, maintains the FTS index, and records an audit entry — all in
// one transaction.
func (s *SQLiteStore) UpdateMemory(ctx context.Context, id string, patch MemoryPatch) (*Memory, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Infra("begin update memory", err)
	}
	defer tx.Rollback()

	existing, err := getMemoryTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if patch.Content != nil {
		existing.Content = patch.Content
	}
	if patch.IsPinned != nil {
		existing.IsPinned = *patch.IsPinned
	}
	if patch.MediaLocalPath != nil {
		existing.MediaLocalPath = patch.MediaLocalPath
	}
	if patch.Status != nil {
		existing.Status = *patch.Status
		switch existing.Status {
		case MemoryConfirmed:
			existing.PendingExpiresAt = nil
		case MemoryPending:
			// Re-enforce the pending invariant on every transition into
			// pending, not just at insert time (CreateMemory: :22-24) —
			// otherwise a PATCH that flips a confirmed memory back to
			// pending, or re-sends pending without an expiry, leaves a
			// zombie row ListExpiredPendingMemories can never sweep.
			if patch.PendingExpiresAt != nil {
				existing.PendingExpiresAt = patch.PendingExpiresAt
			}
			if existing.PendingExpiresAt == nil {
				return nil, apperr.Validation("pending memory requires pending_expires_at")
			}
		}
	}
	existing.UpdatedAt = time.Now().UTC()

	_, err = tx.ExecContext(ctx, `
		UPDATE memories SET content=?, status=?, pending_expires_at=?, is_pinned=?, media_local_path=?, updated_at=? WHERE id=?
	`, nullable(existing.Content), existing.Status, nullable(existing.PendingExpiresAt), existing.IsPinned, nullable(existing.MediaLocalPath), existing.UpdatedAt, id)
	if err != nil {
		return nil, apperr.Infra("update memory", err)
	}

	if err := reindexIfConfirmed(ctx, tx, id); err != nil {
		return nil, apperr.Infra("reindex memory", err)
	}

	action := ActionUpdated
	if patch.Status != nil && *patch.Status == MemoryConfirmed {
		action = ActionConfirmed
	}
	if err := insertAuditTx(ctx, tx, "memory", id, action, "user:"+itoa(existing.OwnerUserID), nil); err != nil {
		return nil, apperr.Infra("audit update memory", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperr.Infra("commit update memory", err)
	}
	return existing, nil
}

func getMemoryTx(ctx context.Context, tx *sql.Tx, id string) (*Memory, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT id, owner_user_id, source_chat_id, source_message_id, content, media_type, media_file_id,
			media_local_path, status, pending_expires_at, is_pinned, created_at, updated_at
		FROM memories WHERE id = ?
	`, id)

	var m Memory
	var sourceChatID, sourceMessageID sql.NullInt64
	var content, mediaType, mediaFileID, mediaLocalPath sql.NullString
	var pendingExpiresAt sql.NullTime

	err := row.Scan(&m.ID, &m.OwnerUserID, &sourceChatID, &sourceMessageID, &content, &mediaType, &mediaFileID,
		&mediaLocalPath, &m.Status, &pendingExpiresAt, &m.IsPinned, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("memory not found")
		}
		return nil, apperr.Infra("get memory", err)
	}
	if sourceChatID.Valid {
		m.SourceChatID = &sourceChatID.Int64
	}
	if sourceMessageID.Valid {
		m.SourceMessageID = &sourceMessageID.Int64
	}
	if content.Valid {
		m.Content = &content.String
	}
	if mediaType.Valid {
		m.MediaType = &mediaType.String
	}
	if mediaFileID.Valid {
		m.MediaFileID = &mediaFileID.String
	}
	if mediaLocalPath.Valid {
		m.MediaLocalPath = &mediaLocalPath.String
	}
	if pendingExpiresAt.Valid {
		m.PendingExpiresAt = &pendingExpiresAt.Time
	}
	return &m, nil
}

// DeleteMemory hard-deletes a memory, its tags, and its FTS entries, in one
// transaction. Any on-disk image bytes are the caller's responsibility to
// remove after commit (best-effort, per the design notes on FTS/file
// deletion not needing two-phase commit).
func (s *SQLiteStore) DeleteMemory(ctx context.Context, id string, actor string, reason AuditAction) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Infra("begin delete memory", err)
	}
	defer tx.Rollback()

	if _, err := getMemoryTx(ctx, tx, id); err != nil {
		return err
	}

	if err := deindexMemory(ctx, tx, id); err != nil {
		return apperr.Infra("deindex memory", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM memory_tags WHERE memory_id = ?`, id); err != nil {
		return apperr.Infra("delete memory tags", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id); err != nil {
		return apperr.Infra("delete memory", err)
	}

	if err := insertAuditTx(ctx, tx, "memory", id, reason, actor, nil); err != nil {
		return apperr.Infra("audit delete memory", err)
	}

	if err := tx.Commit(); err != nil {
		return apperr.Infra("commit delete memory", err)
	}
	return nil
}

// ListExpiredPendingMemories returns pending memories whose expiry has
// passed, for the housekeeping scheduler.
func (s *SQLiteStore) ListExpiredPendingMemories(ctx context.Context, asOf time.Time) ([]*Memory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_user_id, source_chat_id, source_message_id, content, media_type, media_file_id,
			media_local_path, status, pending_expires_at, is_pinned, created_at, updated_at
		FROM memories WHERE status = 'pending' AND pending_expires_at <= ?
	`, asOf)
	if err != nil {
		return nil, apperr.Infra("list expired memories", err)
	}
	defer rows.Close()

	var out []*Memory
	for rows.Next() {
		m, err := scanMemoryRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanMemoryRows(rows *sql.Rows) (*Memory, error) {
	var m Memory
	var sourceChatID, sourceMessageID sql.NullInt64
	var content, mediaType, mediaFileID, mediaLocalPath sql.NullString
	var pendingExpiresAt sql.NullTime

	err := rows.Scan(&m.ID, &m.OwnerUserID, &sourceChatID, &sourceMessageID, &content, &mediaType, &mediaFileID,
		&mediaLocalPath, &m.Status, &pendingExpiresAt, &m.IsPinned, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, apperr.Infra("scan memory", err)
	}
	if sourceChatID.Valid {
		m.SourceChatID = &sourceChatID.Int64
	}
	if sourceMessageID.Valid {
		m.SourceMessageID = &sourceMessageID.Int64
	}
	if content.Valid {
		m.Content = &content.String
	}
	if mediaType.Valid {
		m.MediaType = &mediaType.String
	}
	if mediaFileID.Valid {
		m.MediaFileID = &mediaFileID.String
	}
	if mediaLocalPath.Valid {
		m.MediaLocalPath = &mediaLocalPath.String
	}
	if pendingExpiresAt.Valid {
		m.PendingExpiresAt = &pendingExpiresAt.Time
	}
	return &m, nil
}
