package store

import (
	"context"
	"strings"

	"github.com/bearmemori/bearmemori/internal/apperr"
	"github.com/bearmemori/bearmemori/internal/search"
)

// Search resolves a free-text query against the FTS index, applying the
// pin boost and scope filters and capping the result at search.MaxHits.
// Pending memories, deleted memories, and memories whose only matching
// tags are suggested are excluded by construction: the index only ever
// contains confirmed memories with confirmed tags (see fts.go).
func (s *SQLiteStore) Search(ctx context.Context, rawQuery string, filters SearchFilters) ([]SearchResult, error) {
	matchExpr := search.BuildQuery(rawQuery)
	if matchExpr == "" {
		return nil, nil
	}

	query := strings.Builder{}
	args := []any{matchExpr}
	query.WriteString(`
		SELECT m.id, snippet(memories_fts, 0, '[', ']', '...', 12), m.media_type, m.is_pinned, m.created_at,
			(SELECT GROUP_CONCAT(tag, ',') FROM memory_tags WHERE memory_id = m.id AND status = 'confirmed')
		FROM memories_fts
		JOIN memories m ON m.rowid = memories_fts.rowid
		WHERE memories_fts MATCH ?
	`)

	if filters.OwnerUserID != nil {
		query.WriteString(` AND m.owner_user_id = ?`)
		args = append(args, *filters.OwnerUserID)
	}
	if filters.Pinned != nil {
		query.WriteString(` AND m.is_pinned = ?`)
		args = append(args, *filters.Pinned)
	}
	if filters.MediaType != nil {
		query.WriteString(` AND m.media_type = ?`)
		args = append(args, *filters.MediaType)
	}
	if filters.From != nil {
		query.WriteString(` AND m.created_at >= ?`)
		args = append(args, *filters.From)
	}
	if filters.To != nil {
		query.WriteString(` AND m.created_at <= ?`)
		args = append(args, *filters.To)
	}

	// Pin boost: pinned memories sort first regardless of bm25 rank; within
	// each bucket, best match first, ties broken by recency.
	query.WriteString(` ORDER BY m.is_pinned DESC, bm25(memories_fts) ASC, m.created_at DESC LIMIT ?`)
	args = append(args, search.MaxHits)

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, apperr.Infra("search", err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		var mediaType, tagCSV any
		if err := rows.Scan(&r.MemoryID, &r.Snippet, &mediaType, &r.IsPinned, &r.CreatedAt, &tagCSV); err != nil {
			return nil, apperr.Infra("scan search result", err)
		}
		if mt, ok := mediaType.(string); ok && mt != "" {
			r.MediaType = &mt
		}
		if csv, ok := tagCSV.(string); ok && csv != "" {
			r.Tags = strings.Split(csv, ",")
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
