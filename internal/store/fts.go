package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

// indexMemory (re)writes a confirmed memory's FTS row, using the meta cache
// to issue a correct delete first if a previous entry exists. External
// content FTS5 tables require deletes to supply the exact original content,
// hence the meta side-cache.
func indexMemory(ctx context.Context, tx *sql.Tx, memoryID, content, tags string) error {
	if err := deindexMemory(ctx, tx, memoryID); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO memories_fts (rowid, content, tags) VALUES ((SELECT rowid FROM memories WHERE id = ?), ?, ?)
	`, memoryID, content, tags); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO memories_fts_meta (memory_id, content, tags) VALUES (?, ?, ?)
		ON CONFLICT(memory_id) DO UPDATE SET content=excluded.content, tags=excluded.tags
	`, memoryID, content, tags); err != nil {
		return err
	}
	return nil
}

// deindexMemory removes a memory's FTS row and meta cache entry, if present.
func deindexMemory(ctx context.Context, tx *sql.Tx, memoryID string) error {
	var prevContent, prevTags string
	row := tx.QueryRowContext(ctx, `SELECT content, tags FROM memories_fts_meta WHERE memory_id = ?`, memoryID)
	err := row.Scan(&prevContent, &prevTags)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO memories_fts (memories_fts, rowid, content, tags) VALUES ('delete', (SELECT rowid FROM memories WHERE id = ?), ?, ?)
	`, memoryID, prevContent, prevTags); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM memories_fts_meta WHERE memory_id = ?`, memoryID); err != nil {
		return err
	}
	return nil
}

// confirmedTagString builds the space-joined confirmed-tag string indexed
// alongside a memory's content.
func confirmedTagString(ctx context.Context, tx *sql.Tx, memoryID string) (string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT tag FROM memory_tags WHERE memory_id = ? AND status = 'confirmed'`, memoryID)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return "", err
		}
		tags = append(tags, tag)
	}
	return strings.Join(tags, " "), rows.Err()
}

// reindexIfConfirmed refreshes the FTS row for a memory if it is currently
// confirmed, or removes it otherwise. Called after any tag or content change.
func reindexIfConfirmed(ctx context.Context, tx *sql.Tx, memoryID string) error {
	var status, content sql.NullString
	row := tx.QueryRowContext(ctx, `SELECT status, content FROM memories WHERE id = ?`, memoryID)
	if err := row.Scan(&status, &content); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return deindexMemory(ctx, tx, memoryID)
		}
		return err
	}

	if status.String != string(MemoryConfirmed) {
		return deindexMemory(ctx, tx, memoryID)
	}

	tags, err := confirmedTagString(ctx, tx, memoryID)
	if err != nil {
		return err
	}
	return indexMemory(ctx, tx, memoryID, content.String, tags)
}
