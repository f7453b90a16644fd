package httpapi

import (
	"net/http"
	"strconv"

	"github.com/bearmemori/bearmemori/internal/store"
)

// handleListAudit implements GET /audit?entity_type=&entity_id=&limit=.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 100
	if raw := q.Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			limit = v
		}
	}

	entries, err := s.Store.ListAudit(r.Context(), q.Get("entity_type"), q.Get("entity_id"), limit)
	if err != nil {
		writeErr(w, err)
		return
	}
	if entries == nil {
		entries = []*store.AuditLog{}
	}
	writeJSON(w, http.StatusOK, entries)
}
