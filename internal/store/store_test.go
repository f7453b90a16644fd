package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	s, err := NewSQLiteStore(filepath.Join(dir, "test.db"), nil)
	require.NoError(t, err)
	require.NoError(t, s.Init(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndGetMemory(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	content := "remember the milk"
	m := &Memory{OwnerUserID: 1, Content: &content, Status: MemoryConfirmed}
	require.NoError(t, s.CreateMemory(ctx, m))
	require.NotEmpty(t, m.ID)

	fetched, err := s.GetMemory(ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, content, *fetched.Content)
	require.Nil(t, fetched.PendingExpiresAt)
}

func TestPendingMemoryRequiresExpiry(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	m := &Memory{OwnerUserID: 1, Status: MemoryPending}
	err := s.CreateMemory(ctx, m)
	require.Error(t, err)
}

func TestPendingMemoryExpiryLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	expiry := time.Now().UTC().Add(-time.Second)
	mediaType := "image"
	m := &Memory{OwnerUserID: 1, MediaType: &mediaType, Status: MemoryPending, PendingExpiresAt: &expiry}
	require.NoError(t, s.CreateMemory(ctx, m))

	expired, err := s.ListExpiredPendingMemories(ctx, time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, expired, 1)
	require.Equal(t, m.ID, expired[0].ID)

	require.NoError(t, s.DeleteMemory(ctx, m.ID, "system", ActionExpired))
	_, err = s.GetMemory(ctx, m.ID)
	require.Error(t, err)
}

func TestUpdateMemoryRejectsPendingTransitionWithoutExpiry(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	content := "already confirmed"
	m := &Memory{OwnerUserID: 1, Content: &content, Status: MemoryConfirmed}
	require.NoError(t, s.CreateMemory(ctx, m))

	pending := MemoryPending
	_, err := s.UpdateMemory(ctx, m.ID, MemoryPatch{Status: &pending})
	require.Error(t, err)

	fetched, err := s.GetMemory(ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, MemoryConfirmed, fetched.Status)
}

func TestUpdateMemoryAcceptsPendingTransitionWithExpiry(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	content := "already confirmed"
	m := &Memory{OwnerUserID: 1, Content: &content, Status: MemoryConfirmed}
	require.NoError(t, s.CreateMemory(ctx, m))

	pending := MemoryPending
	expiry := time.Now().UTC().Add(24 * time.Hour)
	updated, err := s.UpdateMemory(ctx, m.ID, MemoryPatch{Status: &pending, PendingExpiresAt: &expiry})
	require.NoError(t, err)
	require.Equal(t, MemoryPending, updated.Status)
	require.NotNil(t, updated.PendingExpiresAt)

	sweepable, err := s.ListExpiredPendingMemories(ctx, expiry.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, sweepable, 1)
	require.Equal(t, m.ID, sweepable[0].ID)
}

func TestSearchExcludesPendingAndSuggestedOnly(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	confirmedContent := "trip to lisbon next summer"
	confirmed := &Memory{OwnerUserID: 1, Content: &confirmedContent, Status: MemoryConfirmed}
	require.NoError(t, s.CreateMemory(ctx, confirmed))
	require.NoError(t, s.UpsertTags(ctx, confirmed.ID, []TagInput{{Tag: "travel", Status: TagConfirmed}}, "user:1"))

	pendingExpiry := time.Now().Add(24 * time.Hour)
	mediaType := "image"
	pendingContent := "lisbon trip photos"
	pending := &Memory{OwnerUserID: 1, Content: &pendingContent, MediaType: &mediaType, Status: MemoryPending, PendingExpiresAt: &pendingExpiry}
	require.NoError(t, s.CreateMemory(ctx, pending))

	otherContent := "weekend plans"
	suggestedOnly := &Memory{OwnerUserID: 1, Content: &otherContent, Status: MemoryConfirmed}
	require.NoError(t, s.CreateMemory(ctx, suggestedOnly))
	require.NoError(t, s.UpsertTags(ctx, suggestedOnly.ID, []TagInput{{Tag: "lisbon", Status: TagSuggested}}, "llm_worker"))

	results, err := s.Search(ctx, "lisbon trip", SearchFilters{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, confirmed.ID, results[0].MemoryID)
}

func TestSearchPinBoost(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a := "lisbon travel guide"
	memA := &Memory{OwnerUserID: 1, Content: &a, Status: MemoryConfirmed}
	require.NoError(t, s.CreateMemory(ctx, memA))

	b := "lisbon travel guide pinned"
	memB := &Memory{OwnerUserID: 1, Content: &b, Status: MemoryConfirmed, IsPinned: true}
	require.NoError(t, s.CreateMemory(ctx, memB))

	results, err := s.Search(ctx, "lisbon travel", SearchFilters{})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Equal(t, memB.ID, results[0].MemoryID)
	require.True(t, results[0].IsPinned)
}

func TestTaskRecurrenceSpawnsChild(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	recur := int64(60)
	due := time.Now().Add(time.Hour)
	task := &Task{OwnerUserID: 1, Description: "water plants", DueAt: &due, RecurrenceMinutes: &recur}
	require.NoError(t, s.CreateTask(ctx, task))

	done := TaskDone
	_, err := s.UpdateTask(ctx, task.ID, TaskPatch{State: &done})
	require.NoError(t, err)

	tasks, err := s.ListTasks(ctx, 1)
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	var child *Task
	for _, tk := range tasks {
		if tk.ID != task.ID {
			child = tk
		}
	}
	require.NotNil(t, child)
	require.Equal(t, TaskNotDone, child.State)
	require.Equal(t, due.Add(60*time.Minute).Unix(), child.DueAt.Unix())
}

func TestReminderRecurrenceSpawnsChild(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	recur := int64(1440)
	fireAt := time.Now().Add(-time.Minute)
	r := &Reminder{OwnerUserID: 1, FireAt: fireAt, RecurrenceMinutes: &recur}
	require.NoError(t, s.CreateReminder(ctx, r))

	child, err := s.FireReminder(ctx, r.ID)
	require.NoError(t, err)
	require.NotNil(t, child)
	require.Equal(t, fireAt.Add(1440*time.Minute).Unix(), child.FireAt.Unix())
	require.False(t, child.Fired)

	fired, err := s.GetReminder(ctx, r.ID)
	require.NoError(t, err)
	require.True(t, fired.Fired)
}

func TestEventConfirmCreatesLinkedReminder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	eventTime := time.Now().Add(48 * time.Hour)
	e := &Event{OwnerUserID: 1, Description: "dentist", EventTime: eventTime, SourceType: EventSourceManual}
	require.NoError(t, s.CreateEvent(ctx, e))

	confirmed := EventConfirmed
	updated, err := s.UpdateEvent(ctx, e.ID, EventPatch{Status: &confirmed})
	require.NoError(t, err)
	require.NotNil(t, updated.ReminderID)

	reminder, err := s.GetReminder(ctx, *updated.ReminderID)
	require.NoError(t, err)
	require.Equal(t, eventTime.Unix(), reminder.FireAt.Unix())
}

func TestAuditRecordedOnCreate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	content := "buy groceries"
	m := &Memory{OwnerUserID: 42, Content: &content, Status: MemoryConfirmed}
	require.NoError(t, s.CreateMemory(ctx, m))

	logs, err := s.ListAudit(ctx, "memory", m.ID, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, ActionCreated, logs[0].Action)
}

func TestSuggestedTagExpiry(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	content := "photo of a sunset"
	m := &Memory{OwnerUserID: 1, Content: &content, Status: MemoryConfirmed}
	require.NoError(t, s.CreateMemory(ctx, m))
	require.NoError(t, s.UpsertTags(ctx, m.ID, []TagInput{{Tag: "sunset", Status: TagSuggested}}, "llm_worker"))

	expired, err := s.ListExpiredSuggestedTags(ctx, time.Now().Add(8*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, expired, 1)
	require.Equal(t, "sunset", expired[0].Tag)
}
