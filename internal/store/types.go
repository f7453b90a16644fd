package store

import "time"

// User is a chat-platform-assigned identity allowed to use the core.
type User struct {
	UserID      int64     `json:"user_id"`
	DisplayName string    `json:"display_name"`
	IsAllowed   bool      `json:"is_allowed"`
	CreatedAt   time.Time `json:"created_at"`
}

// UserSettings holds per-user preferences, 1-1 with User.
type UserSettings struct {
	UserID    int64     `json:"user_id"`
	Timezone  string    `json:"timezone"`
	Language  string    `json:"language"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MemoryStatus is the lifecycle state of a Memory.
type MemoryStatus string

const (
	MemoryPending   MemoryStatus = "pending"
	MemoryConfirmed MemoryStatus = "confirmed"
)

// Memory is a stored capture (text or image) owned by a user.
type Memory struct {
	ID               string       `json:"id"`
	OwnerUserID      int64        `json:"owner_user_id"`
	SourceChatID     *int64       `json:"source_chat_id,omitempty"`
	SourceMessageID  *int64       `json:"source_message_id,omitempty"`
	Content          *string      `json:"content,omitempty"`
	MediaType        *string      `json:"media_type,omitempty"`
	MediaFileID      *string      `json:"media_file_id,omitempty"`
	MediaLocalPath   *string      `json:"media_local_path,omitempty"`
	Status           MemoryStatus `json:"status"`
	PendingExpiresAt *time.Time   `json:"pending_expires_at,omitempty"`
	IsPinned         bool         `json:"is_pinned"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// TagStatus is the confirmation state of a MemoryTag.
type TagStatus string

const (
	TagConfirmed TagStatus = "confirmed"
	TagSuggested TagStatus = "suggested"
)

// MemoryTag associates a tag string with a memory.
type MemoryTag struct {
	MemoryID     string     `json:"memory_id"`
	Tag          string     `json:"tag"`
	Status       TagStatus  `json:"status"`
	SuggestedAt  *time.Time `json:"suggested_at,omitempty"`
	ConfirmedAt  *time.Time `json:"confirmed_at,omitempty"`
}

// TaskState is the completion state of a Task.
type TaskState string

const (
	TaskNotDone TaskState = "NOT_DONE"
	TaskDone    TaskState = "DONE"
)

// Task is a user-visible to-do item, optionally spawned from a Memory.
type Task struct {
	ID                 string     `json:"id"`
	MemoryID           *string    `json:"memory_id,omitempty"`
	OwnerUserID        int64      `json:"owner_user_id"`
	Description        string     `json:"description"`
	State              TaskState  `json:"state"`
	DueAt              *time.Time `json:"due_at,omitempty"`
	RecurrenceMinutes  *int64     `json:"recurrence_minutes,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Reminder fires a notification to the owning user at FireAt.
type Reminder struct {
	ID                string     `json:"id"`
	MemoryID          *string    `json:"memory_id,omitempty"`
	OwnerUserID       int64      `json:"owner_user_id"`
	FireAt            time.Time  `json:"fire_at"`
	RecurrenceMinutes *int64     `json:"recurrence_minutes,omitempty"`
	Fired             bool       `json:"fired"`
	Text              *string    `json:"text,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// EventStatus is the confirmation state of an Event.
type EventStatus string

const (
	EventPending   EventStatus = "pending"
	EventConfirmed EventStatus = "confirmed"
	EventRejected  EventStatus = "rejected"
)

// EventSourceType records where an Event originated.
type EventSourceType string

const (
	EventSourceEmail  EventSourceType = "email"
	EventSourceManual EventSourceType = "manual"
)

// Event is a calendar-like occurrence, possibly extracted from email.
type Event struct {
	ID           string          `json:"id"`
	MemoryID     *string         `json:"memory_id,omitempty"`
	OwnerUserID  int64           `json:"owner_user_id"`
	Description  string          `json:"description"`
	EventTime    time.Time       `json:"event_time"`
	SourceType   EventSourceType `json:"source_type"`
	SourceDetail *string         `json:"source_detail,omitempty"`
	Status       EventStatus     `json:"status"`
	PendingSince *time.Time      `json:"pending_since,omitempty"`
	ReminderID   *string         `json:"reminder_id,omitempty"`
	ConfirmedAt  *time.Time      `json:"confirmed_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// AuditAction names the kind of state transition an AuditLog row records.
type AuditAction string

const (
	ActionCreated   AuditAction = "created"
	ActionConfirmed AuditAction = "confirmed"
	ActionDeleted   AuditAction = "deleted"
	ActionExpired   AuditAction = "expired"
	ActionFired     AuditAction = "fired"
	ActionUpdated   AuditAction = "updated"
	ActionRejected  AuditAction = "rejected"
	ActionRequeued  AuditAction = "requeued"
)

// AuditLog is an append-only record of a single entity state transition.
type AuditLog struct {
	ID         int64       `json:"id"`
	EntityType string      `json:"entity_type"`
	EntityID   string      `json:"entity_id"`
	Action     AuditAction `json:"action"`
	Actor      string      `json:"actor"`
	Detail     *string     `json:"detail,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

// JobType enumerates the LLM job kinds the worker pipeline understands.
type JobType string

const (
	JobImageTag       JobType = "image_tag"
	JobIntentClassify JobType = "intent_classify"
	JobFollowup       JobType = "followup"
	JobTaskMatch      JobType = "task_match"
	JobEmailExtract   JobType = "email_extract"
)

// JobStatus is the state-machine position of an LLMJob.
type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// LLMJob is a persisted record of one asynchronous inference task.
type LLMJob struct {
	ID           string    `json:"id"`
	JobType      JobType   `json:"job_type"`
	Payload      string    `json:"payload"`
	UserID       *int64    `json:"user_id,omitempty"`
	Status       JobStatus `json:"status"`
	Result       *string   `json:"result,omitempty"`
	ErrorMessage *string   `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SearchResult is one hit returned by the search engine.
type SearchResult struct {
	MemoryID  string    `json:"memory_id"`
	Snippet   string    `json:"snippet"`
	MediaType *string   `json:"media_type,omitempty"`
	Tags      []string  `json:"tags"`
	CreatedAt time.Time `json:"created_at"`
	IsPinned  bool      `json:"is_pinned"`
}

// SearchFilters narrows a search beyond the free-text query.
type SearchFilters struct {
	OwnerUserID *int64
	Pinned      *bool
	MediaType   *string
	From        *time.Time
	To          *time.Time
}
