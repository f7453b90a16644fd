// Package scheduler runs the housekeeping loop: one cron-driven tick every
// interval, running four fixed-order tasks, each isolated so a failure in
// one cannot starve the others. Grounded on the teacher's cron-based
// Scheduler wrapper, collapsed from user-defined jobs to one fixed tick.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/bearmemori/bearmemori/internal/metrics"
	"github.com/bearmemori/bearmemori/internal/store"
	"github.com/bearmemori/bearmemori/internal/streambus"
)

// Scheduler owns the 30-second (by default) housekeeping tick.
type Scheduler struct {
	Store            store.Store
	Bus              streambus.Bus
	Interval         time.Duration
	SuggestedTagTTL  time.Duration
	EventRequeueAfter time.Duration
	Log              *slog.Logger

	cron      *cron.Cron
	mu        sync.Mutex
	ticking   bool
}

// New constructs a Scheduler.
func New(st store.Store, bus streambus.Bus, interval, suggestedTagTTL, eventRequeueAfter time.Duration, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		Store:             st,
		Bus:               bus,
		Interval:          interval,
		SuggestedTagTTL:   suggestedTagTTL,
		EventRequeueAfter: eventRequeueAfter,
		Log:               log,
		cron:              cron.New(cron.WithSeconds()),
	}
}

// Start registers the tick and blocks until ctx is canceled.
func (s *Scheduler) Start(ctx context.Context) error {
	spec := fmt.Sprintf("@every %s", s.Interval)
	_, err := s.cron.AddFunc(spec, func() { s.Tick(ctx) })
	if err != nil {
		return fmt.Errorf("scheduler: register tick: %w", err)
	}

	s.cron.Start()
	<-ctx.Done()
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	return nil
}

// Tick runs the four housekeeping tasks in fixed order, skipping entirely
// if the previous tick is still running so ticks never overlap. Exported so
// callers needing a deterministic, on-demand housekeeping pass (tests, an
// administrative endpoint) don't have to wait on the cron schedule.
func (s *Scheduler) Tick(ctx context.Context) {
	s.mu.Lock()
	if s.ticking {
		s.mu.Unlock()
		s.Log.Warn("scheduler tick skipped, previous tick still running")
		return
	}
	s.ticking = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.ticking = false
		s.mu.Unlock()
	}()

	start := time.Now()
	s.runIsolated("fire_due_reminders", func() { s.fireDueReminders(ctx) })
	s.runIsolated("expire_pending_memories", func() { s.expirePendingMemories(ctx) })
	s.runIsolated("expire_suggested_tags", func() { s.expireSuggestedTags(ctx) })
	s.runIsolated("reprompt_stale_events", func() { s.repromptStaleEvents(ctx) })
	metrics.SchedulerTickDuration.Observe(time.Since(start).Seconds())
}

// runIsolated recovers from a panic in task and logs it, so one task's
// failure cannot prevent the others in the same tick from running.
func (s *Scheduler) runIsolated(name string, task func()) {
	defer func() {
		if r := recover(); r != nil {
			metrics.SchedulerTaskErrors.WithLabelValues(name).Inc()
			s.Log.Error("housekeeping task panicked", "task", name, "panic", r)
		}
	}()
	task()
}

func (s *Scheduler) fireDueReminders(ctx context.Context) {
	now := time.Now().UTC()
	due, err := s.Store.ListDueReminders(ctx, now)
	if err != nil {
		s.Log.Error("list due reminders failed", "error", err)
		return
	}

	for _, r := range due {
		child, err := s.Store.FireReminder(ctx, r.ID)
		if err != nil {
			s.Log.Error("fire reminder failed", "reminder_id", r.ID, "error", err)
			continue
		}

		text := ""
		if r.Text != nil {
			text = *r.Text
		}
		_, err = s.Bus.Publish(ctx, "notify:telegram", map[string]string{
			"user_id":      fmt.Sprintf("%d", r.OwnerUserID),
			"message_type": "reminder",
			"content":      text,
		})
		if err != nil {
			s.Log.Warn("publish reminder notification failed", "reminder_id", r.ID, "error", err)
		}
		if child != nil {
			s.Log.Info("spawned recurring reminder", "parent_id", r.ID, "child_id", child.ID)
		}
	}
}

func (s *Scheduler) expirePendingMemories(ctx context.Context) {
	now := time.Now().UTC()
	expired, err := s.Store.ListExpiredPendingMemories(ctx, now)
	if err != nil {
		s.Log.Error("list expired memories failed", "error", err)
		return
	}

	for _, m := range expired {
		if err := s.Store.DeleteMemory(ctx, m.ID, "system", store.ActionExpired); err != nil {
			s.Log.Error("expire memory failed", "memory_id", m.ID, "error", err)
			continue
		}
		if m.MediaLocalPath != nil {
			deleteImageBestEffort(*m.MediaLocalPath, s.Log)
		}
	}
}

func (s *Scheduler) expireSuggestedTags(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.SuggestedTagTTL)
	expired, err := s.Store.ListExpiredSuggestedTags(ctx, cutoff)
	if err != nil {
		s.Log.Error("list expired tags failed", "error", err)
		return
	}

	for _, t := range expired {
		if err := s.Store.RemoveTag(ctx, t.MemoryID, t.Tag, "system"); err != nil {
			s.Log.Error("expire tag failed", "memory_id", t.MemoryID, "tag", t.Tag, "error", err)
		}
	}
}

func (s *Scheduler) repromptStaleEvents(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.EventRequeueAfter)
	stale, err := s.Store.ListStalePendingEvents(ctx, cutoff)
	if err != nil {
		s.Log.Error("list stale events failed", "error", err)
		return
	}

	now := time.Now().UTC()
	for _, e := range stale {
		_, err := s.Bus.Publish(ctx, "notify:telegram", map[string]string{
			"user_id":      fmt.Sprintf("%d", e.OwnerUserID),
			"message_type": "event_confirmation",
			"content":      e.Description,
		})
		if err != nil {
			s.Log.Warn("publish re-prompt failed", "event_id", e.ID, "error", err)
		}
		if err := s.Store.ResetPendingSince(ctx, e.ID, now); err != nil {
			s.Log.Error("reset pending_since failed", "event_id", e.ID, "error", err)
		}
	}
}
