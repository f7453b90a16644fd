// Package worker consumes LLM job streams, serializes per-user processing,
// calls the appropriate handler, and applies the two-family retry policy —
// the async half of BearMemori's pipeline, grounded on the teacher's
// semaphore-guarded extraction flow generalized from "one extraction at a
// time" to N concurrent in-flight jobs: each message gets its own goroutine
// bounded by a pool-wide semaphore, and per-user FIFO comes from the user
// lock each goroutine acquires, not from the stream's single reader
// goroutine serializing everyone sharing it.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bearmemori/bearmemori/internal/metrics"
	"github.com/bearmemori/bearmemori/internal/store"
	"github.com/bearmemori/bearmemori/internal/streambus"
)

// streamJobTypes pairs each LLM stream with the job_type it carries.
var streamJobTypes = map[string]store.JobType{
	"llm:image_tag":     store.JobImageTag,
	"llm:intent":        store.JobIntentClassify,
	"llm:followup":      store.JobFollowup,
	"llm:task_match":    store.JobTaskMatch,
	"llm:email_extract": store.JobEmailExtract,
}

const consumerGroup = "llm-worker"

// defaultMaxConcurrency bounds in-flight handleMessage goroutines across all
// streams when Pool.MaxConcurrency is left unset.
const defaultMaxConcurrency = 16

// Pool runs one consumer loop per LLM stream.
type Pool struct {
	Bus                  streambus.Bus
	Store                store.Store
	Handlers             *Handlers
	Locks                *UserLocks
	Log                  *slog.Logger
	ConsumerName         string
	StaleAfter           time.Duration
	UnavailableHorizon   time.Duration
	BlockDuration        time.Duration
	// MaxRetries overrides MaxBoundedAttempts (LLM_MAX_RETRIES, default 5)
	// for the invalid_response family. Zero means "use the default".
	MaxRetries int
	// MaxConcurrency bounds the number of handleMessage goroutines running
	// at once across every stream. Zero means defaultMaxConcurrency.
	MaxConcurrency int

	mu       sync.Mutex
	attempts map[string]int  // job_id -> invalid_response attempt count
	paused   map[string]bool // stream -> queue_paused flag, set on first unavailable occurrence

	sem chan struct{}
	wg  sync.WaitGroup
}

// NewPool constructs a worker pool with sane defaults for durations left
// unset.
func NewPool(bus streambus.Bus, st store.Store, handlers *Handlers, log *slog.Logger) *Pool {
	if log == nil {
		log = slog.Default()
	}
	return &Pool{
		Bus:                bus,
		Store:              st,
		Handlers:           handlers,
		Locks:              NewUserLocks(),
		Log:                log,
		ConsumerName:       "worker-1",
		StaleAfter:         5 * time.Minute,
		UnavailableHorizon: 14 * 24 * time.Hour,
		BlockDuration:      5 * time.Second,
		attempts:           make(map[string]int),
		paused:             make(map[string]bool),
	}
}

// Run starts one goroutine per stream and blocks until ctx is canceled or
// any consumer returns a fatal error. It waits for every in-flight
// handleMessage goroutine to finish (or the handler to notice ctx is done)
// before returning, so shutdown doesn't abandon a job mid-write.
func (p *Pool) Run(ctx context.Context) error {
	maxConcurrency := p.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = defaultMaxConcurrency
	}
	p.sem = make(chan struct{}, maxConcurrency)

	g, ctx := errgroup.WithContext(ctx)
	for stream := range streamJobTypes {
		stream := stream
		g.Go(func() error {
			return p.consumeLoop(ctx, stream)
		})
	}
	err := g.Wait()
	p.wg.Wait()
	return err
}

// consumeLoop only ever does two things: pull a batch and hand each message
// off to its own goroutine. It never calls a handler directly, so one user's
// slow LLM call or backoff sleep can't block another user's message sharing
// the same stream — the semaphore bounds total concurrency, and each
// goroutine's own per-user lock (acquired inside handleMessage) is what
// keeps one user's jobs in order.
func (p *Pool) consumeLoop(ctx context.Context, stream string) error {
	jobType := streamJobTypes[stream]
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msgs, err := p.Bus.Consume(ctx, stream, consumerGroup, p.ConsumerName, 10, p.BlockDuration)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.Log.Error("stream consume failed", "stream", stream, "error", err)
			time.Sleep(time.Second)
			continue
		}

		for _, m := range msgs {
			m := m
			select {
			case p.sem <- struct{}{}:
			case <-ctx.Done():
				return nil
			}
			p.wg.Add(1)
			go func() {
				defer p.wg.Done()
				defer func() { <-p.sem }()
				p.handleMessage(ctx, stream, jobType, m)
			}()
		}
	}
}

func (p *Pool) handleMessage(ctx context.Context, stream string, jobType store.JobType, msg streambus.Message) {
	if IsStale(msg.ID, time.Now(), p.StaleAfter) {
		p.Log.Warn("discarding stale message", "stream", stream, "message_id", msg.ID)
		_ = p.Bus.Ack(ctx, stream, consumerGroup, msg.ID)
		return
	}

	jobID := msg.Payload["job_id"]
	job, err := p.Store.GetJob(ctx, jobID)
	if err != nil {
		p.Log.Error("job lookup failed, acking and dropping", "job_id", jobID, "error", err)
		_ = p.Bus.Ack(ctx, stream, consumerGroup, msg.ID)
		return
	}
	if job.Status == store.JobCompleted || job.Status == store.JobFailed {
		_ = p.Bus.Ack(ctx, stream, consumerGroup, msg.ID)
		return
	}

	userID := int64(0)
	if raw, ok := msg.Payload["user_id"]; ok {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
			userID = v
		}
	}

	release := p.Locks.Acquire(userID)
	defer release()

	processing := store.JobProcessing
	if _, err := p.Store.UpdateJob(ctx, job.ID, store.JobPatch{Status: &processing}); err != nil {
		p.Log.Error("mark job processing failed", "job_id", job.ID, "error", err)
		return
	}

	handlerErr := p.dispatch(ctx, jobType, userID, []byte(job.Payload))
	if handlerErr == nil {
		completed := store.JobCompleted
		_, _ = p.Store.UpdateJob(ctx, job.ID, store.JobPatch{Status: &completed})
		metrics.JobsCompleted.WithLabelValues(string(jobType), "completed").Inc()
		_ = p.Bus.Ack(ctx, stream, consumerGroup, msg.ID)
		p.clearPaused(stream)
		p.clearAttempts(job.ID)
		return
	}

	p.handleFailure(ctx, stream, jobType, job, msg, handlerErr)
}

func (p *Pool) dispatch(ctx context.Context, jobType store.JobType, userID int64, payload json.RawMessage) error {
	switch jobType {
	case store.JobImageTag:
		return p.Handlers.ImageTag(ctx, userID, payload)
	case store.JobIntentClassify:
		return p.Handlers.IntentClassify(ctx, userID, payload)
	case store.JobFollowup:
		return p.Handlers.Followup(ctx, userID, payload)
	case store.JobTaskMatch:
		return p.Handlers.TaskMatch(ctx, userID, payload)
	case store.JobEmailExtract:
		return p.Handlers.EmailExtract(ctx, userID, payload)
	default:
		return fmt.Errorf("worker: unknown job_type %q", jobType)
	}
}

func (p *Pool) handleFailure(ctx context.Context, stream string, jobType store.JobType, job *store.LLMJob, msg streambus.Message, handlerErr error) {
	family := Classify(handlerErr)
	metrics.JobRetries.WithLabelValues(string(jobType), string(family)).Inc()

	switch family {
	case FamilyInvalidResponse:
		attempt := p.incrAttempt(job.ID)
		if attempt > p.maxBoundedAttempts() {
			p.failJob(ctx, stream, jobType, job, msg, "llm_failure", handlerErr)
			return
		}
		p.Log.Warn("invalid_response retry scheduled", "job_id", job.ID, "attempt", attempt, "error", handlerErr)
		// The sleep runs on this message's own goroutine, not the stream's
		// shared consumer goroutine (consumeLoop never calls a handler
		// inline), so it only delays this job's own per-user lock holder.
		time.Sleep(BackoffFor(attempt))
		// Not acked: the entry stays in this consumer's pending-entries
		// list and Consume reclaims and redelivers it (RedisBus via
		// XAUTOCLAIM, MemBus by keeping it in the group's delivered set)
		// once the job row is back to queued below.
		p.requeueForRetry(ctx, job.ID)

	case FamilyUnavailable:
		if time.Since(job.CreatedAt) > p.UnavailableHorizon {
			p.failJob(ctx, stream, jobType, job, msg, "llm_expiry", handlerErr)
			p.clearPaused(stream)
			return
		}
		p.Log.Warn("unavailable, leaving unacked for redelivery", "job_id", job.ID, "error", handlerErr)
		if p.setPaused(stream) && job.UserID != nil {
			p.Handlers.notify(ctx, *job.UserID, "llm_failure", map[string]string{"job_id": job.ID, "reason": handlerErr.Error(), "stream": stream})
		}
		p.requeueForRetry(ctx, job.ID)
		// No ack: Consume reclaims and redelivers this entry once it has
		// sat pending past the bus's reclaim threshold.
	}
}

// setPaused marks stream as queue_paused and reports whether this call was
// the transition (i.e. the stream was not already paused), so the caller
// only publishes llm_failure on the first occurrence.
func (p *Pool) setPaused(stream string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paused[stream] {
		return false
	}
	p.paused[stream] = true
	metrics.QueuePaused.WithLabelValues(stream).Set(1)
	return true
}

func (p *Pool) clearPaused(stream string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paused[stream] {
		delete(p.paused, stream)
		metrics.QueuePaused.WithLabelValues(stream).Set(0)
	}
}

// maxBoundedAttempts returns the configured LLM_MAX_RETRIES value, or the
// package default schedule length if unset.
func (p *Pool) maxBoundedAttempts() int {
	if p.MaxRetries > 0 {
		return p.MaxRetries
	}
	return MaxBoundedAttempts
}

func (p *Pool) requeueForRetry(ctx context.Context, jobID string) {
	queued := store.JobQueued
	if _, err := p.Store.UpdateJob(ctx, jobID, store.JobPatch{Status: &queued}); err != nil {
		p.Log.Error("requeue job failed", "job_id", jobID, "error", err)
	}
}

func (p *Pool) failJob(ctx context.Context, stream string, jobType store.JobType, job *store.LLMJob, msg streambus.Message, notifyType string, cause error) {
	failed := store.JobFailed
	msgText := cause.Error()
	if _, err := p.Store.UpdateJob(ctx, job.ID, store.JobPatch{Status: &failed, ErrorMessage: &msgText}); err != nil {
		p.Log.Error("mark job failed failed", "job_id", job.ID, "error", err)
	}
	metrics.JobsCompleted.WithLabelValues(string(jobType), "failed").Inc()

	if job.UserID != nil {
		p.Handlers.notify(ctx, *job.UserID, notifyType, map[string]string{"job_id": job.ID, "reason": msgText})
	}
	_ = p.Bus.Ack(ctx, stream, consumerGroup, msg.ID)
	p.clearAttempts(job.ID)
}

func (p *Pool) incrAttempt(jobID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts[jobID]++
	return p.attempts[jobID]
}

func (p *Pool) clearAttempts(jobID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.attempts, jobID)
}
