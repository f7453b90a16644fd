package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bearmemori/bearmemori/internal/dispatcher"
	"github.com/bearmemori/bearmemori/internal/scheduler"
	"github.com/bearmemori/bearmemori/internal/store"
	"github.com/bearmemori/bearmemori/internal/streambus"
)

func newTestServer(t *testing.T) (*httptest.Server, store.Store, *streambus.MemBus) {
	t.Helper()
	dir := t.TempDir()
	st, err := store.NewSQLiteStore(filepath.Join(dir, "httpapi.db"), nil)
	require.NoError(t, err)
	require.NoError(t, st.Init(context.Background()))
	t.Cleanup(func() { st.Close() })

	bus := streambus.NewMemBus()
	disp := dispatcher.New(st, bus, nil)

	srv := httptest.NewServer(New(st, disp, nil).Handler())
	t.Cleanup(srv.Close)
	return srv, st, bus
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

// TestImageCaptureHappyPath covers spec.md §8 scenario 1: a pending image
// memory is tagged by the worker (simulated directly via the store, since
// the LLM call itself is out of this package's scope), confirmed by the
// user, and becomes searchable.
func TestImageCaptureHappyPath(t *testing.T) {
	srv, st, _ := newTestServer(t)
	ctx := context.Background()

	mediaType := "image"
	resp, created := doJSON(t, http.MethodPost, srv.URL+"/memories", map[string]any{
		"owner_user_id": 42,
		"media_type":    mediaType,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, "pending", created["status"])
	memoryID := created["id"].(string)

	require.NoError(t, st.UpsertTags(ctx, memoryID, []store.TagInput{
		{Tag: "receipt", Status: store.TagSuggested},
		{Tag: "butter", Status: store.TagSuggested},
	}, "llm_worker"))

	resp, _ = doJSON(t, http.MethodPatch, srv.URL+"/memories/"+memoryID, map[string]any{
		"status": "confirmed",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, st.UpsertTags(ctx, memoryID, []store.TagInput{
		{Tag: "receipt", Status: store.TagConfirmed},
		{Tag: "butter", Status: store.TagConfirmed},
	}, "user:42"))

	resp, err := http.Get(srv.URL + "/search?q=butter&owner=42")
	require.NoError(t, err)
	defer resp.Body.Close()
	var results []store.SearchResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&results))
	require.Len(t, results, 1)
	require.Equal(t, memoryID, results[0].MemoryID)
}

// TestImageExpiryRemovesFromSearch covers spec.md §8 scenario 2: an
// unconfirmed image memory is hard-deleted by the housekeeping scheduler
// once its pending_expires_at has passed, and search no longer returns it.
func TestImageExpiryRemovesFromSearch(t *testing.T) {
	srv, st, bus := newTestServer(t)
	ctx := context.Background()

	mediaType := "image"
	content := "butter receipt"
	expiry := time.Now().UTC().Add(-time.Second)
	m := &store.Memory{
		OwnerUserID:      42,
		MediaType:        &mediaType,
		Content:          &content,
		Status:           store.MemoryPending,
		PendingExpiresAt: &expiry,
	}
	require.NoError(t, st.CreateMemory(ctx, m))

	sched := scheduler.New(st, bus, 30*time.Second, 7*24*time.Hour, 24*time.Hour, nil)
	sched.Tick(ctx)

	resp, err := http.Get(fmt.Sprintf("%s/memories/%s", srv.URL, m.ID))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	entries, err := st.ListAudit(ctx, "memory", m.ID, 10)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	require.Equal(t, store.ActionExpired, entries[0].Action)

	searchResp, err := http.Get(srv.URL + "/search?q=butter&owner=42")
	require.NoError(t, err)
	defer searchResp.Body.Close()
	var results []store.SearchResult
	require.NoError(t, json.NewDecoder(searchResp.Body).Decode(&results))
	require.Empty(t, results)
}

// TestPatchMemoryBackToPendingDerivesExpiry covers the §3 invariant that a
// pending memory always carries a non-null pending_expires_at, including on
// a PATCH-driven transition into pending rather than only at creation.
func TestPatchMemoryBackToPendingDerivesExpiry(t *testing.T) {
	srv, st, _ := newTestServer(t)
	ctx := context.Background()

	content := "already confirmed"
	resp, created := doJSON(t, http.MethodPost, srv.URL+"/memories", map[string]any{
		"owner_user_id": 42,
		"content":       content,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, "confirmed", created["status"])
	memoryID := created["id"].(string)

	resp, patched := doJSON(t, http.MethodPatch, srv.URL+"/memories/"+memoryID, map[string]any{
		"status": "pending",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "pending", patched["status"])
	require.NotEmpty(t, patched["pending_expires_at"])

	expired, err := st.ListExpiredPendingMemories(ctx, time.Now().UTC().Add(8*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, expired, 1)
	require.Equal(t, memoryID, expired[0].ID)
}

// TestEventConfirmCreatesLinkedReminder covers spec.md §8 scenario 5: PATCH
// to confirmed on a pending event auto-creates a reminder at event_time.
func TestEventConfirmCreatesLinkedReminder(t *testing.T) {
	srv, st, _ := newTestServer(t)
	ctx := context.Background()

	eventTime := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	resp, created := doJSON(t, http.MethodPost, srv.URL+"/events", map[string]any{
		"owner_user_id": 42,
		"description":   "dentist",
		"event_time":    eventTime.Format(time.RFC3339),
		"source_type":   "email",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	eventID := created["id"].(string)

	resp, patched := doJSON(t, http.MethodPatch, srv.URL+"/events/"+eventID, map[string]any{
		"status": "confirmed",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	reminderID, _ := patched["reminder_id"].(string)
	require.NotEmpty(t, reminderID)

	rem, err := st.GetReminder(ctx, reminderID)
	require.NoError(t, err)
	require.True(t, rem.FireAt.Equal(eventTime))
}

// TestStaleEventRepromptAdvancesPendingSince covers spec.md §8 scenario 6:
// the housekeeping scheduler re-prompts a pending event older than the
// requeue window and advances pending_since.
func TestStaleEventRepromptAdvancesPendingSince(t *testing.T) {
	srv, st, bus := newTestServer(t)
	ctx := context.Background()

	resp, created := doJSON(t, http.MethodPost, srv.URL+"/events", map[string]any{
		"owner_user_id": 42,
		"description":   "flight confirmation",
		"event_time":    time.Now().UTC().Add(30 * 24 * time.Hour).Format(time.RFC3339),
		"source_type":   "email",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	eventID := created["id"].(string)

	stale := time.Now().UTC().Add(-25 * time.Hour)
	require.NoError(t, st.ResetPendingSince(ctx, eventID, stale))

	sched := scheduler.New(st, bus, 30*time.Second, 7*24*time.Hour, 24*time.Hour, nil)
	sched.Tick(ctx)

	refetched, err := st.GetEvent(ctx, eventID)
	require.NoError(t, err)
	require.True(t, refetched.PendingSince.After(stale))

	resp, rejected := doJSON(t, http.MethodPatch, srv.URL+"/events/"+eventID, map[string]any{
		"status": "rejected",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "rejected", rejected["status"])
	require.Nil(t, rejected["reminder_id"])
}
