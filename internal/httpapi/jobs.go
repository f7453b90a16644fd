package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/bearmemori/bearmemori/internal/apperr"
	"github.com/bearmemori/bearmemori/internal/store"
)

type createJobRequest struct {
	JobType store.JobType  `json:"job_type"`
	Payload map[string]any `json:"payload"`
	UserID  *int64         `json:"user_id,omitempty"`
}

// handleCreateJob is the dispatcher entrypoint (§4.C): it inserts the job
// row and publishes the stream entry atomically from the caller's point of
// view via internal/dispatcher.
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if req.JobType == "" {
		writeErr(w, apperr.ValidationField("job_type", "job_type is required"))
		return
	}

	id, err := s.Dispatcher.Enqueue(r.Context(), req.JobType, req.Payload, req.UserID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.Store.GetJob(r.Context(), r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

type patchJobRequest struct {
	Status       *store.JobStatus `json:"status,omitempty"`
	Result       json.RawMessage  `json:"result,omitempty"`
	ErrorMessage *string          `json:"error_message,omitempty"`
}

// handlePatchJob is the worker's PATCH-persisted state-machine transition
// point (queued -> processing -> {completed, failed}).
func (s *Server) handlePatchJob(w http.ResponseWriter, r *http.Request) {
	var req patchJobRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}

	patch := store.JobPatch{Status: req.Status, ErrorMessage: req.ErrorMessage}
	if len(req.Result) > 0 {
		result := string(req.Result)
		patch.Result = &result
	}

	job, err := s.Store.UpdateJob(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}
