package scheduler

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bearmemori/bearmemori/internal/store"
	"github.com/bearmemori/bearmemori/internal/streambus"
)

func newTestScheduler(t *testing.T) (*Scheduler, store.Store, *streambus.MemBus) {
	t.Helper()
	dir := t.TempDir()
	st, err := store.NewSQLiteStore(filepath.Join(dir, "sched.db"), nil)
	require.NoError(t, err)
	require.NoError(t, st.Init(context.Background()))
	t.Cleanup(func() { st.Close() })

	bus := streambus.NewMemBus()
	require.NoError(t, bus.CreateGroup(context.Background(), "notify:telegram", "telegram"))

	s := New(st, bus, 30*time.Second, 7*24*time.Hour, 24*time.Hour, discardLogger())
	return s, st, bus
}

func TestFireDueRemindersMarksFiredAndNotifies(t *testing.T) {
	s, st, bus := newTestScheduler(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertUser(ctx, &store.User{UserID: 1, DisplayName: "a", IsAllowed: true}))
	text := "take pills"
	r := &store.Reminder{OwnerUserID: 1, FireAt: time.Now().Add(-time.Minute), Text: &text}
	require.NoError(t, st.CreateReminder(ctx, r))

	s.fireDueReminders(ctx)

	refetched, err := st.GetReminder(ctx, r.ID)
	require.NoError(t, err)
	require.True(t, refetched.Fired)

	msgs, err := bus.Consume(ctx, "notify:telegram", "telegram", "c1", 10, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "reminder", msgs[0].Payload["message_type"])
}

func TestFireDueRemindersSpawnsRecurringChild(t *testing.T) {
	s, st, _ := newTestScheduler(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertUser(ctx, &store.User{UserID: 1, DisplayName: "a", IsAllowed: true}))
	every := int64(60)
	r := &store.Reminder{OwnerUserID: 1, FireAt: time.Now().Add(-time.Minute), RecurrenceMinutes: &every}
	require.NoError(t, st.CreateReminder(ctx, r))

	s.fireDueReminders(ctx)

	all, err := st.ListReminders(ctx, 1)
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestExpirePendingMemoriesDeletesExpired(t *testing.T) {
	s, st, _ := newTestScheduler(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertUser(ctx, &store.User{UserID: 1, DisplayName: "a", IsAllowed: true}))
	content := "a photo"
	expiry := time.Now().Add(-time.Hour)
	m := &store.Memory{OwnerUserID: 1, Content: &content, Status: store.MemoryPending, PendingExpiresAt: &expiry}
	require.NoError(t, st.CreateMemory(ctx, m))

	s.expirePendingMemories(ctx)

	_, err := st.GetMemory(ctx, m.ID)
	require.Error(t, err)
}

func TestExpireSuggestedTagsRemovesExpired(t *testing.T) {
	s, st, _ := newTestScheduler(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertUser(ctx, &store.User{UserID: 1, DisplayName: "a", IsAllowed: true}))
	content := "beach day"
	m := &store.Memory{OwnerUserID: 1, Content: &content, Status: store.MemoryConfirmed}
	require.NoError(t, st.CreateMemory(ctx, m))
	require.NoError(t, st.UpsertTags(ctx, m.ID, []store.TagInput{{Tag: "beach", Status: store.TagSuggested}}, "llm_worker"))

	s.SuggestedTagTTL = -time.Hour // force immediate expiry
	s.expireSuggestedTags(ctx)

	tags, err := st.ListTags(ctx, m.ID)
	require.NoError(t, err)
	require.Empty(t, tags)
}

func TestRepromptStaleEventsResetsPendingSince(t *testing.T) {
	s, st, bus := newTestScheduler(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertUser(ctx, &store.User{UserID: 1, DisplayName: "a", IsAllowed: true}))
	e := &store.Event{OwnerUserID: 1, Description: "dentist", EventTime: time.Now().Add(24 * time.Hour), SourceType: store.EventSourceManual, Status: store.EventPending}
	require.NoError(t, st.CreateEvent(ctx, e))
	stale := time.Now().Add(-48 * time.Hour)
	require.NoError(t, st.ResetPendingSince(ctx, e.ID, stale))

	s.repromptStaleEvents(ctx)

	refetched, err := st.GetEvent(ctx, e.ID)
	require.NoError(t, err)
	require.True(t, refetched.PendingSince.After(stale))

	msgs, err := bus.Consume(ctx, "notify:telegram", "telegram", "c1", 10, 0)
	require.NoError(t, err)
	require.NotEmpty(t, msgs)
}

func TestTickSkipsWhenAlreadyTicking(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	s.ticking = true
	s.Tick(context.Background())
	require.True(t, s.ticking) // unchanged: tick returned early without clearing it
}
