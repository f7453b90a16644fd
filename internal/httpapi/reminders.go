package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/bearmemori/bearmemori/internal/apperr"
	"github.com/bearmemori/bearmemori/internal/store"
)

type createReminderRequest struct {
	MemoryID          *string    `json:"memory_id,omitempty"`
	OwnerUserID       int64      `json:"owner_user_id"`
	FireAt            time.Time  `json:"fire_at"`
	RecurrenceMinutes *int64     `json:"recurrence_minutes,omitempty"`
	Text              *string    `json:"text,omitempty"`
}

func (s *Server) handleCreateReminder(w http.ResponseWriter, r *http.Request) {
	var req createReminderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if req.OwnerUserID == 0 || req.FireAt.IsZero() {
		writeErr(w, apperr.Validation("owner_user_id and fire_at are required"))
		return
	}

	rem := &store.Reminder{
		MemoryID:          req.MemoryID,
		OwnerUserID:       req.OwnerUserID,
		FireAt:            req.FireAt,
		RecurrenceMinutes: req.RecurrenceMinutes,
		Text:              req.Text,
	}
	if err := s.Store.CreateReminder(r.Context(), rem); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rem)
}

func (s *Server) handleListReminders(w http.ResponseWriter, r *http.Request) {
	ownerUserID, err := strconv.ParseInt(r.URL.Query().Get("owner"), 10, 64)
	if err != nil {
		writeErr(w, apperr.ValidationField("owner", "owner query parameter is required"))
		return
	}
	reminders, err := s.Store.ListReminders(r.Context(), ownerUserID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reminders)
}

func (s *Server) handleGetReminder(w http.ResponseWriter, r *http.Request) {
	rem, err := s.Store.GetReminder(r.Context(), r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rem)
}

type patchReminderRequest struct {
	FireAt            *time.Time `json:"fire_at,omitempty"`
	RecurrenceMinutes **int64    `json:"recurrence_minutes,omitempty"`
	Text              *string    `json:"text,omitempty"`
	Fired             *bool      `json:"fired,omitempty"`
}

func (s *Server) handlePatchReminder(w http.ResponseWriter, r *http.Request) {
	var req patchReminderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	rem, err := s.Store.UpdateReminder(r.Context(), r.PathValue("id"), store.ReminderPatch{
		FireAt:            req.FireAt,
		RecurrenceMinutes: req.RecurrenceMinutes,
		Text:              req.Text,
		Fired:             req.Fired,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rem)
}

func (s *Server) handleDeleteReminder(w http.ResponseWriter, r *http.Request) {
	if err := s.Store.DeleteReminder(r.Context(), r.PathValue("id"), actorFromQuery(r)); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
