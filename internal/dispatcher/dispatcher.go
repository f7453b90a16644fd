// Package dispatcher is the one chokepoint that both inserts an LLMJob row
// and publishes the matching stream entry, atomically from the caller's
// point of view.
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/bearmemori/bearmemori/internal/apperr"
	"github.com/bearmemori/bearmemori/internal/metrics"
	"github.com/bearmemori/bearmemori/internal/store"
	"github.com/bearmemori/bearmemori/internal/streambus"
)

// streamForJobType mirrors the stream table in the stream bus adapter
// section of the specification.
var streamForJobType = map[store.JobType]string{
	store.JobImageTag:       "llm:image_tag",
	store.JobIntentClassify: "llm:intent",
	store.JobFollowup:       "llm:followup",
	store.JobTaskMatch:      "llm:task_match",
	store.JobEmailExtract:   "llm:email_extract",
}

// AllStreams lists every stream the dispatcher or scheduler may publish to.
// EnsureGroups does not read it; it walks streamForJobType and adds
// notify:telegram itself.
var AllStreams = []string{
	"llm:image_tag", "llm:intent", "llm:followup", "llm:task_match",
	"llm:email_extract", "notify:telegram",
}

// Dispatcher enqueues LLM jobs: one store row plus one stream publish.
type Dispatcher struct {
	store store.Store
	bus   streambus.Bus
	log   *slog.Logger
}

// New constructs a Dispatcher.
func New(st store.Store, bus streambus.Bus, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{store: st, bus: bus, log: log}
}

// Enqueue inserts a queued LLMJob row and publishes its payload to the
// job-type's stream. If the publish fails, the row is left queued — the
// worker can still pick it up via a manual requeue or a future
// administrative sweep; enqueue still returns success since the
// authoritative record (the row) was written.
func (d *Dispatcher) Enqueue(ctx context.Context, jobType store.JobType, payload map[string]any, userID *int64) (string, error) {
	stream, ok := streamForJobType[jobType]
	if !ok {
		return "", apperr.Validation(fmt.Sprintf("unknown job_type %q", jobType))
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", apperr.Validation("invalid job payload")
	}

	job := &store.LLMJob{JobType: jobType, Payload: string(raw), UserID: userID, Status: store.JobQueued}
	if err := d.store.CreateJob(ctx, job); err != nil {
		return "", err
	}

	streamPayload := map[string]string{
		"job_id":     job.ID,
		"job_type":   string(jobType),
		"payload":    string(raw),
		"created_at": job.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if userID != nil {
		streamPayload["user_id"] = fmt.Sprintf("%d", *userID)
	}

	if _, err := d.bus.Publish(ctx, stream, streamPayload); err != nil {
		d.log.Warn("stream publish failed, job left queued for pickup", "job_id", job.ID, "stream", stream, "error", err)
		return job.ID, nil
	}

	metrics.JobsEnqueued.WithLabelValues(string(jobType)).Inc()
	return job.ID, nil
}

// EnsureGroups idempotently creates the consumer groups every stream needs
// on startup: the llm-worker group on each LLM job stream, and the
// telegram group on the notification stream.
func EnsureGroups(ctx context.Context, bus streambus.Bus) error {
	for jobType, stream := range streamForJobType {
		if err := bus.CreateGroup(ctx, stream, "llm-worker"); err != nil {
			return fmt.Errorf("dispatcher: create group for %s (%s): %w", stream, jobType, err)
		}
	}
	if err := bus.CreateGroup(ctx, "notify:telegram", "telegram"); err != nil {
		return fmt.Errorf("dispatcher: create group for notify:telegram: %w", err)
	}
	return nil
}
