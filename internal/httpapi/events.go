package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/bearmemori/bearmemori/internal/apperr"
	"github.com/bearmemori/bearmemori/internal/store"
)

type createEventRequest struct {
	MemoryID     *string               `json:"memory_id,omitempty"`
	OwnerUserID  int64                 `json:"owner_user_id"`
	Description  string                `json:"description"`
	EventTime    time.Time             `json:"event_time"`
	SourceType   store.EventSourceType `json:"source_type"`
	SourceDetail *string               `json:"source_detail,omitempty"`
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var req createEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if req.OwnerUserID == 0 || req.Description == "" || req.EventTime.IsZero() {
		writeErr(w, apperr.Validation("owner_user_id, description, and event_time are required"))
		return
	}
	if req.SourceType != store.EventSourceEmail && req.SourceType != store.EventSourceManual {
		writeErr(w, apperr.ValidationField("source_type", "must be email or manual"))
		return
	}

	e := &store.Event{
		MemoryID:     req.MemoryID,
		OwnerUserID:  req.OwnerUserID,
		Description:  req.Description,
		EventTime:    req.EventTime,
		SourceType:   req.SourceType,
		SourceDetail: req.SourceDetail,
		Status:       store.EventPending,
	}
	if err := s.Store.CreateEvent(r.Context(), e); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	ownerUserID, err := strconv.ParseInt(r.URL.Query().Get("owner"), 10, 64)
	if err != nil {
		writeErr(w, apperr.ValidationField("owner", "owner query parameter is required"))
		return
	}
	events, err := s.Store.ListEvents(r.Context(), ownerUserID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	e, err := s.Store.GetEvent(r.Context(), r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

type patchEventRequest struct {
	Description *string            `json:"description,omitempty"`
	EventTime   *time.Time         `json:"event_time,omitempty"`
	Status      *store.EventStatus `json:"status,omitempty"`
}

func (s *Server) handlePatchEvent(w http.ResponseWriter, r *http.Request) {
	var req patchEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if req.Status != nil && *req.Status != store.EventPending && *req.Status != store.EventConfirmed && *req.Status != store.EventRejected {
		writeErr(w, apperr.ValidationField("status", "must be pending, confirmed, or rejected"))
		return
	}

	e, err := s.Store.UpdateEvent(r.Context(), r.PathValue("id"), store.EventPatch{
		Description: req.Description,
		EventTime:   req.EventTime,
		Status:      req.Status,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	if err := s.Store.DeleteEvent(r.Context(), r.PathValue("id"), actorFromQuery(r)); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
