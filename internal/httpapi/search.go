package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/bearmemori/bearmemori/internal/store"
)

// handleSearch implements GET /search?q=&owner=&pinned=&media_type=. The
// owner filter scopes results to a single user's memories (the DM case in
// §4.F); omitting it leaves the search unscoped (the group-chat case).
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filters store.SearchFilters

	if owner := q.Get("owner"); owner != "" {
		if v, err := strconv.ParseInt(owner, 10, 64); err == nil {
			filters.OwnerUserID = &v
		}
	}
	if pinned := q.Get("pinned"); pinned != "" {
		if v, err := strconv.ParseBool(pinned); err == nil {
			filters.Pinned = &v
		}
	}
	if mediaType := q.Get("media_type"); mediaType != "" {
		filters.MediaType = &mediaType
	}
	if from := q.Get("from"); from != "" {
		if t, err := time.Parse(time.RFC3339, from); err == nil {
			filters.From = &t
		}
	}
	if to := q.Get("to"); to != "" {
		if t, err := time.Parse(time.RFC3339, to); err == nil {
			filters.To = &t
		}
	}

	results, err := s.Store.Search(r.Context(), q.Get("q"), filters)
	if err != nil {
		writeErr(w, err)
		return
	}
	if results == nil {
		results = []store.SearchResult{}
	}
	writeJSON(w, http.StatusOK, results)
}
