package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/bearmemori/bearmemori/internal/apperr"
	"github.com/bearmemori/bearmemori/internal/store"
)

type createTaskRequest struct {
	MemoryID          *string    `json:"memory_id,omitempty"`
	OwnerUserID       int64      `json:"owner_user_id"`
	Description       string     `json:"description"`
	DueAt             *time.Time `json:"due_at,omitempty"`
	RecurrenceMinutes *int64     `json:"recurrence_minutes,omitempty"`
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if req.OwnerUserID == 0 || req.Description == "" {
		writeErr(w, apperr.Validation("owner_user_id and description are required"))
		return
	}

	t := &store.Task{
		MemoryID:          req.MemoryID,
		OwnerUserID:       req.OwnerUserID,
		Description:       req.Description,
		State:             store.TaskNotDone,
		DueAt:             req.DueAt,
		RecurrenceMinutes: req.RecurrenceMinutes,
	}
	if err := s.Store.CreateTask(r.Context(), t); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	ownerUserID, err := strconv.ParseInt(r.URL.Query().Get("owner"), 10, 64)
	if err != nil {
		writeErr(w, apperr.ValidationField("owner", "owner query parameter is required"))
		return
	}
	tasks, err := s.Store.ListTasks(r.Context(), ownerUserID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	t, err := s.Store.GetTask(r.Context(), r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type patchTaskRequest struct {
	Description       *string         `json:"description,omitempty"`
	State             *store.TaskState `json:"state,omitempty"`
	DueAt             *time.Time      `json:"due_at,omitempty"`
	RecurrenceMinutes **int64         `json:"recurrence_minutes,omitempty"`
}

func (s *Server) handlePatchTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req patchTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}

	if req.State != nil {
		existing, err := s.Store.GetTask(r.Context(), id)
		if err != nil {
			writeErr(w, err)
			return
		}
		if existing.State == store.TaskDone && *req.State == store.TaskDone {
			writeErr(w, apperr.Conflict("task is already DONE"))
			return
		}
	}

	t, err := s.Store.UpdateTask(r.Context(), id, store.TaskPatch{
		Description:       req.Description,
		State:             req.State,
		DueAt:             req.DueAt,
		RecurrenceMinutes: req.RecurrenceMinutes,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	if err := s.Store.DeleteTask(r.Context(), r.PathValue("id"), actorFromQuery(r)); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
