package store

import (
	"context"
	"time"
)

// Store is the durable, single-writer record store every other component
// depends on. One method per entity operation, mirroring the shape the
// teacher repo used for its own Store interface.
type Store interface {
	Init(ctx context.Context) error
	Close() error

	UpsertUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, userID int64) (*User, error)

	GetSettings(ctx context.Context, userID int64) (*UserSettings, error)
	PutSettings(ctx context.Context, s *UserSettings) error

	CreateMemory(ctx context.Context, m *Memory) error
	GetMemory(ctx context.Context, id string) (*Memory, error)
	UpdateMemory(ctx context.Context, id string, patch MemoryPatch) (*Memory, error)
	DeleteMemory(ctx context.Context, id string, actor string, reason AuditAction) error
	ListExpiredPendingMemories(ctx context.Context, asOf time.Time) ([]*Memory, error)

	UpsertTags(ctx context.Context, memoryID string, tags []TagInput, actor string) error
	RemoveTag(ctx context.Context, memoryID, tag string, actor string) error
	ListTags(ctx context.Context, memoryID string) ([]MemoryTag, error)
	ListExpiredSuggestedTags(ctx context.Context, asOf time.Time) ([]MemoryTag, error)

	CreateTask(ctx context.Context, t *Task) error
	GetTask(ctx context.Context, id string) (*Task, error)
	ListTasks(ctx context.Context, ownerUserID int64) ([]*Task, error)
	UpdateTask(ctx context.Context, id string, patch TaskPatch) (*Task, error)
	DeleteTask(ctx context.Context, id string, actor string) error

	CreateReminder(ctx context.Context, r *Reminder) error
	GetReminder(ctx context.Context, id string) (*Reminder, error)
	ListReminders(ctx context.Context, ownerUserID int64) ([]*Reminder, error)
	UpdateReminder(ctx context.Context, id string, patch ReminderPatch) (*Reminder, error)
	DeleteReminder(ctx context.Context, id string, actor string) error
	ListDueReminders(ctx context.Context, asOf time.Time) ([]*Reminder, error)
	FireReminder(ctx context.Context, id string) (child *Reminder, err error)

	CreateEvent(ctx context.Context, e *Event) error
	GetEvent(ctx context.Context, id string) (*Event, error)
	ListEvents(ctx context.Context, ownerUserID int64) ([]*Event, error)
	UpdateEvent(ctx context.Context, id string, patch EventPatch) (*Event, error)
	DeleteEvent(ctx context.Context, id string, actor string) error
	ListStalePendingEvents(ctx context.Context, olderThan time.Time) ([]*Event, error)
	ResetPendingSince(ctx context.Context, id string, at time.Time) error

	CreateJob(ctx context.Context, j *LLMJob) error
	GetJob(ctx context.Context, id string) (*LLMJob, error)
	UpdateJob(ctx context.Context, id string, patch JobPatch) (*LLMJob, error)

	AppendAudit(ctx context.Context, a *AuditLog) error
	ListAudit(ctx context.Context, entityType, entityID string, limit int) ([]*AuditLog, error)

	Search(ctx context.Context, rawQuery string, filters SearchFilters) ([]SearchResult, error)

	Ping(ctx context.Context) error
}

// MemoryPatch carries optional field updates for UpdateMemory; nil fields
// are left untouched.
type MemoryPatch struct {
	Content        *string
	Status         *MemoryStatus
	IsPinned       *bool
	MediaLocalPath *string
	// PendingExpiresAt re-derives the pending expiry on a transition into
	// MemoryPending. Ignored for any other status. If the transition leaves
	// the memory pending with no expiry (neither supplied here nor already
	// set), UpdateMemory rejects the patch — mirroring CreateMemory's
	// invariant that pending always carries a non-null expiry.
	PendingExpiresAt *time.Time
}

// TagInput is one tag to upsert via UpsertTags.
type TagInput struct {
	Tag    string
	Status TagStatus
}

// TaskPatch carries optional field updates for UpdateTask.
type TaskPatch struct {
	Description       *string
	State             *TaskState
	DueAt             *time.Time
	RecurrenceMinutes **int64
}

// ReminderPatch carries optional field updates for UpdateReminder.
type ReminderPatch struct {
	FireAt            *time.Time
	RecurrenceMinutes **int64
	Text              *string
	Fired             *bool
}

// EventPatch carries optional field updates for UpdateEvent.
type EventPatch struct {
	Description *string
	EventTime   *time.Time
	Status      *EventStatus
}

// JobPatch carries optional field updates for UpdateJob.
type JobPatch struct {
	Status       *JobStatus
	Result       *string
	ErrorMessage *string
}
