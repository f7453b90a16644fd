package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/bearmemori/bearmemori/internal/llmclient"
	"github.com/bearmemori/bearmemori/internal/store"
	"github.com/bearmemori/bearmemori/internal/streambus"
)

// Handlers implements one method per job_type, each calling the LLM,
// validating its output schema, persisting advisory results through the
// store, and publishing a user-facing notification. Handlers never flip a
// memory to confirmed or otherwise write an authoritative field — only the
// user-confirmation path (the HTTP surface) does that.
type Handlers struct {
	Store       store.Store
	Bus         streambus.Bus
	LLM         llmclient.Client
	VisionModel string
	TextModel   string
	Log         *slog.Logger
}

func (h *Handlers) notify(ctx context.Context, userID int64, messageType string, content any) {
	raw, err := json.Marshal(content)
	if err != nil {
		h.Log.Error("marshal notification", "error", err)
		return
	}
	_, err = h.Bus.Publish(ctx, "notify:telegram", map[string]string{
		"user_id":      fmt.Sprintf("%d", userID),
		"message_type": messageType,
		"content":      string(raw),
	})
	if err != nil {
		h.Log.Warn("publish notification failed", "message_type", messageType, "error", err)
	}
}

// --- image_tag ---

type imageTagInput struct {
	MemoryID  string `json:"memory_id"`
	ImageRef  string `json:"image_ref"`
	Caption   string `json:"caption,omitempty"`
}

type imageTagOutput struct {
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	Location    string   `json:"location,omitempty"`
}

// ImageTag calls the vision model over the referenced image and persists
// suggested tags (and a description, if no caption was supplied).
func (h *Handlers) ImageTag(ctx context.Context, userID int64, payload json.RawMessage) error {
	var in imageTagInput
	if err := json.Unmarshal(payload, &in); err != nil {
		return &SchemaError{Msg: err.Error()}
	}

	resp, err := h.LLM.Chat(ctx, h.VisionModel, []llmclient.Message{
		{Role: "system", Content: "Describe the image and propose short lowercase tags. Respond as JSON: {\"description\":string,\"tags\":[string],\"location\":string}."},
		{Role: "user", Content: in.Caption, ImagePath: in.ImageRef},
	})
	if err != nil {
		return err
	}

	var out imageTagOutput
	if err := json.Unmarshal([]byte(llmclient.StripJSONFence(resp.Content)), &out); err != nil {
		return &SchemaError{Msg: err.Error()}
	}
	if len(out.Tags) == 0 {
		return &SchemaError{Msg: "image_tag response missing tags"}
	}

	tagInputs := make([]store.TagInput, 0, len(out.Tags))
	for _, t := range out.Tags {
		tagInputs = append(tagInputs, store.TagInput{Tag: t, Status: store.TagSuggested})
	}
	if err := h.Store.UpsertTags(ctx, in.MemoryID, tagInputs, "llm_worker"); err != nil {
		return err
	}

	if in.Caption == "" && out.Description != "" {
		content := out.Description
		if _, err := h.Store.UpdateMemory(ctx, in.MemoryID, store.MemoryPatch{Content: &content}); err != nil {
			return err
		}
	}

	h.notify(ctx, userID, "llm_image_tag_result", out)
	return nil
}

// --- intent_classify ---

type intentClassifyInput struct {
	MemoryID  string `json:"memory_id"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

type intentClassifyOutput struct {
	Intent    string          `json:"intent"`
	Extracted json.RawMessage `json:"extracted,omitempty"`
	Tags      []string        `json:"tags,omitempty"`
}

var validIntents = map[string]bool{
	"reminder": true, "task": true, "search": true, "general_note": true, "ambiguous": true,
}

// IntentClassify calls the text model to route a captured note and forwards
// the classification to the gateway for dialogue handling.
func (h *Handlers) IntentClassify(ctx context.Context, userID int64, payload json.RawMessage) error {
	var in intentClassifyInput
	if err := json.Unmarshal(payload, &in); err != nil {
		return &SchemaError{Msg: err.Error()}
	}

	resp, err := h.LLM.Chat(ctx, h.TextModel, []llmclient.Message{
		{Role: "system", Content: "Classify the user's intent as reminder, task, search, general_note, or ambiguous. Respond as JSON."},
		{Role: "user", Content: in.Text},
	})
	if err != nil {
		return err
	}

	var out intentClassifyOutput
	if err := json.Unmarshal([]byte(llmclient.StripJSONFence(resp.Content)), &out); err != nil {
		return &SchemaError{Msg: err.Error()}
	}
	if !validIntents[out.Intent] {
		return &SchemaError{Msg: "unknown intent " + out.Intent}
	}

	stale := false
	var extracted struct {
		When string `json:"when"`
	}
	if len(out.Extracted) > 0 {
		_ = json.Unmarshal(out.Extracted, &extracted)
		if extracted.When != "" {
			if t, err := time.Parse(time.RFC3339, extracted.When); err == nil && t.Before(time.Now()) {
				stale = true
			}
		}
	}

	h.notify(ctx, userID, "llm_intent_result", map[string]any{
		"memory_id": in.MemoryID,
		"intent":    out.Intent,
		"extracted": out.Extracted,
		"tags":      out.Tags,
		"stale":     stale,
	})
	return nil
}

// --- followup ---

type followupInput struct {
	OriginalText string `json:"original_text"`
	Context      string `json:"context,omitempty"`
}

type followupOutput struct {
	Question string `json:"question"`
}

// Followup asks the text model for a clarifying question and forwards it
// to the gateway verbatim.
func (h *Handlers) Followup(ctx context.Context, userID int64, payload json.RawMessage) error {
	var in followupInput
	if err := json.Unmarshal(payload, &in); err != nil {
		return &SchemaError{Msg: err.Error()}
	}

	resp, err := h.LLM.Chat(ctx, h.TextModel, []llmclient.Message{
		{Role: "system", Content: "Write one short clarifying question about the user's note. Respond as JSON: {\"question\":string}."},
		{Role: "user", Content: in.OriginalText + "\n" + in.Context},
	})
	if err != nil {
		return err
	}

	var out followupOutput
	if err := json.Unmarshal([]byte(llmclient.StripJSONFence(resp.Content)), &out); err != nil {
		return &SchemaError{Msg: err.Error()}
	}
	if out.Question == "" {
		return &SchemaError{Msg: "followup response missing question"}
	}

	h.notify(ctx, userID, "llm_followup_result", out)
	return nil
}

// --- task_match ---

type taskMatchInput struct {
	MemoryID string `json:"memory_id"`
	Content  string `json:"content"`
}

type taskMatchOutput struct {
	TaskID     string  `json:"task_id,omitempty"`
	Confidence float64 `json:"confidence"`
}

// taskMatchConfidenceThreshold gates which matches are surfaced to the user.
const taskMatchConfidenceThreshold = 0.7

// TaskMatch asks the text model whether a new memory matches one of the
// user's open tasks, forwarding only confident matches.
func (h *Handlers) TaskMatch(ctx context.Context, userID int64, payload json.RawMessage) error {
	var in taskMatchInput
	if err := json.Unmarshal(payload, &in); err != nil {
		return &SchemaError{Msg: err.Error()}
	}

	openTasks, err := h.Store.ListTasks(ctx, userID)
	if err != nil {
		return err
	}
	var candidates []map[string]string
	for _, t := range openTasks {
		if t.State == store.TaskNotDone {
			candidates = append(candidates, map[string]string{"id": t.ID, "description": t.Description})
		}
	}
	candidatesJSON, _ := json.Marshal(candidates)

	resp, err := h.LLM.Chat(ctx, h.TextModel, []llmclient.Message{
		{Role: "system", Content: "Given a memory and a list of open tasks, decide whether it refers to one of them. Respond as JSON: {\"task_id\":string,\"confidence\":number}."},
		{Role: "user", Content: fmt.Sprintf("memory: %s\ntasks: %s", in.Content, candidatesJSON)},
	})
	if err != nil {
		return err
	}

	var out taskMatchOutput
	if err := json.Unmarshal([]byte(llmclient.StripJSONFence(resp.Content)), &out); err != nil {
		return &SchemaError{Msg: err.Error()}
	}

	if out.Confidence > taskMatchConfidenceThreshold {
		h.notify(ctx, userID, "llm_task_match_result", out)
	}
	return nil
}

// --- email_extract ---

type emailExtractInput struct {
	EmailID string `json:"email_id"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type extractedEvent struct {
	Description string  `json:"description"`
	EventTime   string  `json:"event_time"`
	Confidence  float64 `json:"confidence"`
}

type emailExtractOutput struct {
	Events []extractedEvent `json:"events"`
}

// emailEventConfidenceThreshold gates which extracted events become pending
// Event rows.
const emailEventConfidenceThreshold = 0.7

// EmailExtract asks the text model to pull calendar-worthy events out of an
// email and creates a pending Event for each confident hit.
func (h *Handlers) EmailExtract(ctx context.Context, userID int64, payload json.RawMessage) error {
	var in emailExtractInput
	if err := json.Unmarshal(payload, &in); err != nil {
		return &SchemaError{Msg: err.Error()}
	}

	resp, err := h.LLM.Chat(ctx, h.TextModel, []llmclient.Message{
		{Role: "system", Content: "Extract calendar events from this email. Respond as JSON: {\"events\":[{\"description\":string,\"event_time\":RFC3339,\"confidence\":number}]}."},
		{Role: "user", Content: in.Subject + "\n" + in.Body},
	})
	if err != nil {
		return err
	}

	var out emailExtractOutput
	if err := json.Unmarshal([]byte(llmclient.StripJSONFence(resp.Content)), &out); err != nil {
		return &SchemaError{Msg: err.Error()}
	}

	for _, ev := range out.Events {
		if ev.Confidence <= emailEventConfidenceThreshold {
			continue
		}
		eventTime, err := time.Parse(time.RFC3339, ev.EventTime)
		if err != nil {
			return &SchemaError{Msg: "invalid event_time: " + err.Error()}
		}
		detail := in.EmailID
		created := &store.Event{
			OwnerUserID:  userID,
			Description:  ev.Description,
			EventTime:    eventTime,
			SourceType:   store.EventSourceEmail,
			SourceDetail: &detail,
			Status:       store.EventPending,
		}
		if err := h.Store.CreateEvent(ctx, created); err != nil {
			return err
		}
		h.notify(ctx, userID, "event_confirmation", created)
	}
	return nil
}
