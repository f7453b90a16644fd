package httpapi

import (
	"net/http"

	"github.com/bearmemori/bearmemori/internal/apperr"
	"github.com/bearmemori/bearmemori/internal/store"
)

type postTagRequest struct {
	Tag    string          `json:"tag"`
	Status store.TagStatus `json:"status"`
}

type postTagsRequest struct {
	Tags []postTagRequest `json:"tags"`
}

func (s *Server) handlePostTags(w http.ResponseWriter, r *http.Request) {
	memoryID := r.PathValue("id")
	var req postTagsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if len(req.Tags) == 0 {
		writeErr(w, apperr.ValidationField("tags", "at least one tag is required"))
		return
	}

	inputs := make([]store.TagInput, 0, len(req.Tags))
	for _, t := range req.Tags {
		status := t.Status
		if status == "" {
			status = store.TagSuggested
		}
		inputs = append(inputs, store.TagInput{Tag: t.Tag, Status: status})
	}

	if err := s.Store.UpsertTags(r.Context(), memoryID, inputs, actorFromQuery(r)); err != nil {
		writeErr(w, err)
		return
	}
	tags, err := s.Store.ListTags(r.Context(), memoryID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tags)
}

func (s *Server) handleDeleteTag(w http.ResponseWriter, r *http.Request) {
	memoryID, tag := r.PathValue("id"), r.PathValue("tag")
	if err := s.Store.RemoveTag(r.Context(), memoryID, tag, actorFromQuery(r)); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
