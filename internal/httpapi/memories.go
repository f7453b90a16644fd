package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/bearmemori/bearmemori/internal/apperr"
	"github.com/bearmemori/bearmemori/internal/store"
)

type createMemoryRequest struct {
	OwnerUserID     int64   `json:"owner_user_id"`
	SourceChatID    *int64  `json:"source_chat_id,omitempty"`
	SourceMessageID *int64  `json:"source_message_id,omitempty"`
	Content         *string `json:"content,omitempty"`
	MediaType       *string `json:"media_type,omitempty"`
	MediaFileID     *string `json:"media_file_id,omitempty"`
}

func (s *Server) handleCreateMemory(w http.ResponseWriter, r *http.Request) {
	var req createMemoryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if req.OwnerUserID == 0 {
		writeErr(w, apperr.ValidationField("owner_user_id", "owner_user_id is required"))
		return
	}

	m := &store.Memory{
		OwnerUserID:     req.OwnerUserID,
		SourceChatID:    req.SourceChatID,
		SourceMessageID: req.SourceMessageID,
		Content:         req.Content,
		MediaType:       req.MediaType,
		MediaFileID:     req.MediaFileID,
	}

	if req.MediaType != nil && *req.MediaType == "image" {
		m.Status = store.MemoryPending
		// PendingExpiresAt is computed here, not in the store, since the
		// store treats it as caller-supplied (§3's invariant that pending
		// requires a non-null expiry at insert time).
		expiry := time.Now().UTC().Add(s.MemoryPendingTTL)
		m.PendingExpiresAt = &expiry
	} else {
		m.Status = store.MemoryConfirmed
	}

	if err := s.Store.CreateMemory(r.Context(), m); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (s *Server) handleGetMemory(w http.ResponseWriter, r *http.Request) {
	m, err := s.Store.GetMemory(r.Context(), r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type patchMemoryRequest struct {
	Content          *string             `json:"content,omitempty"`
	Status           *store.MemoryStatus `json:"status,omitempty"`
	IsPinned         *bool               `json:"is_pinned,omitempty"`
	PendingExpiresAt *time.Time          `json:"pending_expires_at,omitempty"`
}

func (s *Server) handlePatchMemory(w http.ResponseWriter, r *http.Request) {
	var req patchMemoryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}

	patch := store.MemoryPatch{
		Content:          req.Content,
		Status:           req.Status,
		IsPinned:         req.IsPinned,
		PendingExpiresAt: req.PendingExpiresAt,
	}
	if req.Status != nil && *req.Status == store.MemoryPending && req.PendingExpiresAt == nil {
		// Same default window handleCreateMemory applies to a fresh pending
		// image memory, so a caller that flips status back to pending
		// without naming an expiry still gets a sweepable one.
		expiry := time.Now().UTC().Add(s.MemoryPendingTTL)
		patch.PendingExpiresAt = &expiry
	}

	m, err := s.Store.UpdateMemory(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleDeleteMemory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.Store.DeleteMemory(r.Context(), id, actorFromQuery(r), store.ActionDeleted); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handlePostImage accepts multipart image upload metadata. Bytes transport
// itself is out of core scope (spec.md §1); this records the local path the
// gateway already wrote the bytes to.
type postImageRequest struct {
	LocalPath string `json:"local_path"`
}

func (s *Server) handlePostImage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var localPath string
	if ct := r.Header.Get("Content-Type"); len(ct) >= len("multipart/form-data") && ct[:len("multipart/form-data")] == "multipart/form-data" {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			writeErr(w, apperr.Validation("invalid multipart body"))
			return
		}
		localPath = r.FormValue("local_path")
	} else {
		var req postImageRequest
		if err := decodeJSON(r, &req); err != nil {
			writeErr(w, err)
			return
		}
		localPath = req.LocalPath
	}
	if localPath == "" {
		writeErr(w, apperr.ValidationField("local_path", "local_path is required"))
		return
	}

	m, err := s.Store.UpdateMemory(r.Context(), id, store.MemoryPatch{MediaLocalPath: &localPath})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func actorFromQuery(r *http.Request) string {
	if uid := r.URL.Query().Get("actor_user_id"); uid != "" {
		return fmt.Sprintf("user:%s", uid)
	}
	return "system"
}
