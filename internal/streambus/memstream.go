package streambus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// MemBus is an in-process fake of Bus for tests that don't need a live
// Redis, mirroring the teacher's pattern of pairing every store-like
// interface with both a real and an in-memory implementation.
type MemBus struct {
	mu      sync.Mutex
	streams map[string]*memStream
	seq     atomic.Int64
}

type memStream struct {
	groups map[string]*memGroup
}

type memGroup struct {
	pending []Message
	// delivered holds messages handed out by Consume but not yet Acked —
	// the fake's analog of a Redis consumer group's pending entries list
	// (PEL). Consume redelivers these before handing out new entries, so a
	// message a handler fails to ack comes back on the next Consume call
	// instead of vanishing.
	delivered map[string]Message
	acked     map[string]bool
}

// NewMemBus constructs an empty in-memory bus.
func NewMemBus() *MemBus {
	return &MemBus{streams: make(map[string]*memStream)}
}

func (b *MemBus) stream(name string) *memStream {
	s, ok := b.streams[name]
	if !ok {
		s = &memStream{groups: make(map[string]*memGroup)}
		b.streams[name] = s
	}
	return s
}

// CreateGroup registers a consumer group on a stream; idempotent.
func (b *MemBus) CreateGroup(ctx context.Context, stream, group string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.stream(stream)
	if _, ok := s.groups[group]; !ok {
		s.groups[group] = newMemGroup()
	}
	return nil
}

func newMemGroup() *memGroup {
	return &memGroup{acked: make(map[string]bool), delivered: make(map[string]Message)}
}

// Publish appends payload to every existing consumer group on the stream.
func (b *MemBus) Publish(ctx context.Context, stream string, payload map[string]string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := fmt.Sprintf("%d-%d", time.Now().UnixMilli(), b.seq.Add(1))
	copied := make(map[string]string, len(payload))
	for k, v := range payload {
		copied[k] = v
	}
	msg := Message{ID: id, Payload: copied}

	s := b.stream(stream)
	for _, g := range s.groups {
		g.pending = append(g.pending, msg)
	}
	return id, nil
}

// Consume returns up to count messages for the group: first any entries
// still outstanding in this group's pending-entries list (redelivery of
// whatever a prior Consume call handed out and nothing acked), then new
// entries off the stream — the fake's analog of interleaving a Redis id
// "0" claim pass with the usual ">" read.
func (b *MemBus) Consume(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.stream(stream)
	g, ok := s.groups[group]
	if !ok {
		g = newMemGroup()
		s.groups[group] = g
	}

	var out []Message
	for _, m := range g.delivered {
		if int64(len(out)) >= count {
			break
		}
		out = append(out, m)
	}

	var remaining []Message
	for _, m := range g.pending {
		if int64(len(out)) < count {
			out = append(out, m)
			g.delivered[m.ID] = m
		} else {
			remaining = append(remaining, m)
		}
	}
	g.pending = remaining
	return out, nil
}

// Ack marks a message ID as acknowledged and clears it from the group's
// pending-entries list, the only thing that stops Consume from redelivering
// it.
func (b *MemBus) Ack(ctx context.Context, stream, group, messageID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.stream(stream)
	if g, ok := s.groups[group]; ok {
		g.acked[messageID] = true
		delete(g.delivered, messageID)
	}
	return nil
}

// Acked reports whether a message has been acknowledged (test helper).
func (b *MemBus) Acked(stream, group, messageID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.streams[stream]
	if !ok {
		return false
	}
	g, ok := s.groups[group]
	if !ok {
		return false
	}
	return g.acked[messageID]
}

// Close is a no-op for the in-memory fake.
func (b *MemBus) Close() error { return nil }
