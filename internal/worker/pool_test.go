package worker

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bearmemori/bearmemori/internal/llmclient"
	"github.com/bearmemori/bearmemori/internal/store"
	"github.com/bearmemori/bearmemori/internal/streambus"
)

type fakeLLM struct {
	response string
	err      error
}

func (f *fakeLLM) Chat(ctx context.Context, model string, messages []llmclient.Message) (*llmclient.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &llmclient.Response{Content: f.response}, nil
}

func newTestPool(t *testing.T, llm llmclient.Client) (*Pool, *streambus.MemBus, store.Store) {
	t.Helper()
	dir := t.TempDir()
	st, err := store.NewSQLiteStore(filepath.Join(dir, "worker.db"), nil)
	require.NoError(t, err)
	require.NoError(t, st.Init(context.Background()))
	t.Cleanup(func() { st.Close() })

	bus := streambus.NewMemBus()
	require.NoError(t, bus.CreateGroup(context.Background(), "llm:followup", consumerGroup))

	handlers := &Handlers{Store: st, Bus: bus, LLM: llm, VisionModel: "vision", TextModel: "text", Log: nil}
	handlers.Log = discardLogger()

	pool := NewPool(bus, st, handlers, discardLogger())
	pool.BlockDuration = 10 * time.Millisecond
	return pool, bus, st
}

func TestHandleMessageDiscardsStale(t *testing.T) {
	pool, bus, st := newTestPool(t, &fakeLLM{})
	ctx := context.Background()

	job := &store.LLMJob{JobType: store.JobFollowup, Payload: `{"original_text":"hi"}`, Status: store.JobQueued}
	require.NoError(t, st.CreateJob(ctx, job))

	staleID := timeID(time.Now().Add(-10 * time.Minute))
	msg := streambus.Message{ID: staleID, Payload: map[string]string{"job_id": job.ID}}

	pool.handleMessage(ctx, "llm:followup", store.JobFollowup, msg)

	refetched, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, store.JobQueued, refetched.Status)
	require.True(t, bus.Acked("llm:followup", consumerGroup, staleID))
}

func TestHandleMessageSuccessCompletesJob(t *testing.T) {
	out, _ := json.Marshal(map[string]string{"question": "When?"})
	pool, _, st := newTestPool(t, &fakeLLM{response: string(out)})
	ctx := context.Background()

	job := &store.LLMJob{JobType: store.JobFollowup, Payload: `{"original_text":"hi"}`, UserID: int64ptr(1), Status: store.JobQueued}
	require.NoError(t, st.CreateJob(ctx, job))

	msg := streambus.Message{ID: timeID(time.Now()), Payload: map[string]string{"job_id": job.ID, "user_id": "1"}}
	pool.handleMessage(ctx, "llm:followup", store.JobFollowup, msg)

	refetched, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, store.JobCompleted, refetched.Status)
}

// sequencedLLM returns each entry in errs/responses in turn, one per Chat
// call, for simulating a provider that recovers after an outage.
type sequencedLLM struct {
	calls     int
	errs      []error
	responses []string
}

func (f *sequencedLLM) Chat(ctx context.Context, model string, messages []llmclient.Message) (*llmclient.Response, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	return &llmclient.Response{Content: f.responses[i]}, nil
}

// TestLLMUnavailableThenRecovers covers spec.md §8 scenario 4: a transport
// failure classifies as the unavailable family, leaves the job queued and
// the stream message unacked rather than failing it outright, and a
// subsequent attempt against the same job succeeds once the provider
// recovers. The retry is driven through the bus's own redelivery (Consume
// handed the still-pending entry back out) rather than replaying the same
// in-memory Message value by hand, so this exercises the actual path a
// crashed or backed-off consumer relies on.
func TestLLMUnavailableThenRecovers(t *testing.T) {
	out, _ := json.Marshal(map[string]string{"question": "When?"})
	llm := &sequencedLLM{
		errs:      []error{context.DeadlineExceeded, nil},
		responses: []string{"", string(out)},
	}
	pool, bus, st := newTestPool(t, llm)
	ctx := context.Background()

	job := &store.LLMJob{JobType: store.JobFollowup, Payload: `{"original_text":"hi"}`, UserID: int64ptr(1), Status: store.JobQueued}
	require.NoError(t, st.CreateJob(ctx, job))

	msgID, err := bus.Publish(ctx, "llm:followup", map[string]string{"job_id": job.ID, "user_id": "1"})
	require.NoError(t, err)

	msgs, err := bus.Consume(ctx, "llm:followup", consumerGroup, pool.ConsumerName, 10, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, msgID, msgs[0].ID)

	pool.handleMessage(ctx, "llm:followup", store.JobFollowup, msgs[0])

	afterFirst, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, store.JobQueued, afterFirst.Status)
	require.False(t, bus.Acked("llm:followup", consumerGroup, msgID))

	// Nothing acked the first delivery, so it comes back out of the
	// group's pending-entries list on the next Consume instead of being
	// gone for good.
	redelivered, err := bus.Consume(ctx, "llm:followup", consumerGroup, pool.ConsumerName, 10, 0)
	require.NoError(t, err)
	require.Len(t, redelivered, 1)
	require.Equal(t, msgID, redelivered[0].ID)

	pool.handleMessage(ctx, "llm:followup", store.JobFollowup, redelivered[0])

	afterSecond, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, store.JobCompleted, afterSecond.Status)
	require.True(t, bus.Acked("llm:followup", consumerGroup, msgID))
}

// alwaysUnavailableLLM simulates a provider outage that never recovers
// within the test's window.
type alwaysUnavailableLLM struct{}

func (f *alwaysUnavailableLLM) Chat(ctx context.Context, model string, messages []llmclient.Message) (*llmclient.Response, error) {
	return nil, context.DeadlineExceeded
}

// TestUnavailablePublishesLLMFailureOnlyOnce covers spec.md §4.D: the
// unavailable family sets a queue_paused flag on first occurrence and
// publishes llm_failure then, not on every subsequent retry of the same
// stream.
func TestUnavailablePublishesLLMFailureOnlyOnce(t *testing.T) {
	pool, bus, st := newTestPool(t, &alwaysUnavailableLLM{})
	ctx := context.Background()
	require.NoError(t, bus.CreateGroup(ctx, "notify:telegram", "telegram"))

	job1 := &store.LLMJob{JobType: store.JobFollowup, Payload: `{"original_text":"one"}`, UserID: int64ptr(1), Status: store.JobQueued}
	require.NoError(t, st.CreateJob(ctx, job1))
	job2 := &store.LLMJob{JobType: store.JobFollowup, Payload: `{"original_text":"two"}`, UserID: int64ptr(2), Status: store.JobQueued}
	require.NoError(t, st.CreateJob(ctx, job2))

	msg1 := streambus.Message{ID: timeID(time.Now()), Payload: map[string]string{"job_id": job1.ID, "user_id": "1"}}
	msg2 := streambus.Message{ID: timeID(time.Now()), Payload: map[string]string{"job_id": job2.ID, "user_id": "2"}}

	pool.handleMessage(ctx, "llm:followup", store.JobFollowup, msg1)
	pool.handleMessage(ctx, "llm:followup", store.JobFollowup, msg2)

	notifications, err := bus.Consume(ctx, "notify:telegram", "telegram", "test", 10, 0)
	require.NoError(t, err)
	require.Len(t, notifications, 1)
	require.Equal(t, "llm_failure", notifications[0].Payload["message_type"])
}

func int64ptr(v int64) *int64 { return &v }

func timeID(t time.Time) string {
	return timeIDFmt(t)
}
