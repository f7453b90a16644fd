// Package httpapi exposes the thin REST surface (§4.G of the specification)
// over the store, dispatcher, and search engine. Routing and JSON
// conventions are grounded on the teacher's serve.Server/registerRoutes
// shape (net/http.ServeMux method+wildcard patterns, writeJSON/ErrorResponse,
// permissive CORS middleware for development), generalized from the
// teacher's dashboard API to BearMemori's memory/task/reminder/event/search
// contracts.
package httpapi

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bearmemori/bearmemori/internal/apperr"
	"github.com/bearmemori/bearmemori/internal/dispatcher"
	"github.com/bearmemori/bearmemori/internal/store"
)

// ErrorResponse is the JSON body written on any non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// defaultMemoryPendingTTL is used when Server.MemoryPendingTTL is left zero.
const defaultMemoryPendingTTL = 7 * 24 * time.Hour

// Server is the HTTP surface over the store and dispatcher.
type Server struct {
	Store      store.Store
	Dispatcher *dispatcher.Dispatcher
	Log        *slog.Logger
	// MemoryPendingTTL is the image-memory pending window (MEMORY_PENDING_TTL_DAYS,
	// default 7 days per the specification's §6 default table).
	MemoryPendingTTL time.Duration
	startedAt        time.Time
}

// New constructs a Server with the default pending-memory TTL; callers that
// need the configured MEMORY_PENDING_TTL_DAYS value should set
// Server.MemoryPendingTTL after construction.
func New(st store.Store, disp *dispatcher.Dispatcher, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{Store: st, Dispatcher: disp, Log: log, MemoryPendingTTL: defaultMemoryPendingTTL, startedAt: time.Now()}
}

// Handler builds the routed, CORS-wrapped http.Handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerRoutes(mux)
	return corsMiddleware(mux)
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /users", s.handleUpsertUser)
	mux.HandleFunc("GET /settings/{user_id}", s.handleGetSettings)
	mux.HandleFunc("PUT /settings/{user_id}", s.handlePutSettings)

	mux.HandleFunc("POST /memories", s.handleCreateMemory)
	mux.HandleFunc("GET /memories/{id}", s.handleGetMemory)
	mux.HandleFunc("PATCH /memories/{id}", s.handlePatchMemory)
	mux.HandleFunc("DELETE /memories/{id}", s.handleDeleteMemory)
	mux.HandleFunc("POST /memories/{id}/tags", s.handlePostTags)
	mux.HandleFunc("DELETE /memories/{id}/tags/{tag}", s.handleDeleteTag)
	mux.HandleFunc("POST /memories/{id}/image", s.handlePostImage)

	mux.HandleFunc("POST /tasks", s.handleCreateTask)
	mux.HandleFunc("GET /tasks", s.handleListTasks)
	mux.HandleFunc("GET /tasks/{id}", s.handleGetTask)
	mux.HandleFunc("PATCH /tasks/{id}", s.handlePatchTask)
	mux.HandleFunc("DELETE /tasks/{id}", s.handleDeleteTask)

	mux.HandleFunc("POST /reminders", s.handleCreateReminder)
	mux.HandleFunc("GET /reminders", s.handleListReminders)
	mux.HandleFunc("GET /reminders/{id}", s.handleGetReminder)
	mux.HandleFunc("PATCH /reminders/{id}", s.handlePatchReminder)
	mux.HandleFunc("DELETE /reminders/{id}", s.handleDeleteReminder)

	mux.HandleFunc("POST /events", s.handleCreateEvent)
	mux.HandleFunc("GET /events", s.handleListEvents)
	mux.HandleFunc("GET /events/{id}", s.handleGetEvent)
	mux.HandleFunc("PATCH /events/{id}", s.handlePatchEvent)
	mux.HandleFunc("DELETE /events/{id}", s.handleDeleteEvent)

	mux.HandleFunc("GET /search", s.handleSearch)

	mux.HandleFunc("POST /llm_jobs", s.handleCreateJob)
	mux.HandleFunc("GET /llm_jobs/{id}", s.handleGetJob)
	mux.HandleFunc("PATCH /llm_jobs/{id}", s.handlePatchJob)

	mux.HandleFunc("GET /audit", s.handleListAudit)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.Store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "store unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON marshals v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeErr maps an apperr.Kind to an HTTP status and writes the body.
func writeErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		status = http.StatusBadRequest
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindConflict:
		status = http.StatusConflict
	case apperr.KindInfra:
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return apperr.Validation(fmt.Sprintf("invalid JSON body: %s", err.Error()))
	}
	return nil
}

// corsMiddleware adds permissive CORS headers for the gateway and assistant
// clients, matching the teacher's development-mode CORS policy.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
