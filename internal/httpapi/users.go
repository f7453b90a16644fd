package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/bearmemori/bearmemori/internal/apperr"
	"github.com/bearmemori/bearmemori/internal/store"
)

type upsertUserRequest struct {
	UserID      int64  `json:"user_id"`
	DisplayName string `json:"display_name"`
	IsAllowed   bool   `json:"is_allowed"`
}

func (s *Server) handleUpsertUser(w http.ResponseWriter, r *http.Request) {
	var req upsertUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if req.UserID == 0 {
		writeErr(w, apperr.ValidationField("user_id", "user_id is required"))
		return
	}

	u := &store.User{
		UserID:      req.UserID,
		DisplayName: req.DisplayName,
		IsAllowed:   req.IsAllowed,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.Store.UpsertUser(r.Context(), u); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.PathValue("user_id"), 10, 64)
	if err != nil {
		writeErr(w, apperr.ValidationField("user_id", "must be an integer"))
		return
	}
	settings, err := s.Store.GetSettings(r.Context(), userID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

type putSettingsRequest struct {
	Timezone string `json:"timezone"`
	Language string `json:"language"`
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.PathValue("user_id"), 10, 64)
	if err != nil {
		writeErr(w, apperr.ValidationField("user_id", "must be an integer"))
		return
	}
	var req putSettingsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if req.Timezone == "" {
		req.Timezone = "UTC"
	}
	if req.Language == "" {
		req.Language = "en"
	}

	now := time.Now().UTC()
	settings := &store.UserSettings{
		UserID:    userID,
		Timezone:  req.Timezone,
		Language:  req.Language,
		UpdatedAt: now,
	}
	if err := s.Store.PutSettings(r.Context(), settings); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}
