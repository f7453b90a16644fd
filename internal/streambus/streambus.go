// Package streambus provides durable named streams with consumer groups —
// the substrate the job dispatcher publishes to and the worker pipeline
// consumes from.
package streambus

import (
	"context"
	"time"
)

// Message is one entry read back from a stream.
type Message struct {
	ID      string
	Payload map[string]string
}

// Bus is the stream transport contract. The exact stream names
// (llm:image_tag, llm:intent, llm:followup, llm:task_match,
// llm:email_extract, notify:telegram) and their consumer groups are defined
// by callers, not by this package.
type Bus interface {
	// CreateGroup idempotently ensures a consumer group exists on stream,
	// creating the stream itself if necessary.
	CreateGroup(ctx context.Context, stream, group string) error

	// Publish appends payload to stream and returns the assigned message ID.
	Publish(ctx context.Context, stream string, payload map[string]string) (string, error)

	// Consume reads up to count messages for consumer within group: entries
	// handed out earlier and still unacked come back first, then new entries,
	// blocking up to block for new entries.
	Consume(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]Message, error)

	// Ack acknowledges successful processing of a message.
	Ack(ctx context.Context, stream, group, messageID string) error

	Close() error
}
