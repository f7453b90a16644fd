package streambus

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBus implements Bus over Redis streams via XADD/XREADGROUP/XACK,
// exactly the primitives the specification's stream contract maps onto.
type RedisBus struct {
	client *redis.Client

	// ReclaimIdle is the minimum time a message may sit unacked in the
	// group's pending-entries list before Consume reclaims it via
	// XAUTOCLAIM. It trades off two failure modes: too low reclaims an
	// entry another goroutine is still actively processing (the worker's
	// retry policy leaves a failed message unacked rather than acking it
	// immediately); too high delays the next retry attempt. Defaults to
	// 30s, above the longest single bounded-retry backoff (16s).
	ReclaimIdle time.Duration
}

// NewRedisBus connects to a Redis instance at url (e.g. redis://host:6379/0).
func NewRedisBus(url string) (*RedisBus, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &RedisBus{client: redis.NewClient(opts), ReclaimIdle: 30 * time.Second}, nil
}

// CreateGroup creates the consumer group, and the stream itself via
// MKSTREAM if it doesn't yet exist. BUSYGROUP ("already exists") is
// swallowed as success, matching the idempotent contract.
func (b *RedisBus) CreateGroup(ctx context.Context, stream, group string) error {
	err := b.client.XGroupCreateMkStream(ctx, stream, group, "$").Err()
	if err != nil && strings.Contains(err.Error(), "BUSYGROUP") {
		return nil
	}
	return err
}

// Publish appends payload as an XADD entry.
func (b *RedisBus) Publish(ctx context.Context, stream string, payload map[string]string) (string, error) {
	values := make(map[string]any, len(payload))
	for k, v := range payload {
		values[k] = v
	}
	id, err := b.client.XAdd(ctx, &redis.XAddArgs{Stream: stream, Values: values}).Result()
	if err != nil {
		return "", err
	}
	return id, nil
}

// Consume first reclaims any of the group's pending entries that have sat
// unacked for at least ReclaimIdle (XAUTOCLAIM — entries the
// worker's retry policy deliberately left unacked so they'd come back),
// then tops up the batch with new entries via XREADGROUP's ">" id.
// NoAck stays false: an entry only leaves the group's pending-entries list
// on an explicit XAck, which is exactly how the retry policy lets a failed
// job come back around.
func (b *RedisBus) Consume(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]Message, error) {
	out, err := b.reclaimPending(ctx, stream, group, consumer, count)
	if err != nil {
		return nil, err
	}
	if int64(len(out)) >= count {
		return out, nil
	}

	res, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    count - int64(len(out)),
		Block:    block,
		NoAck:    false,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return out, nil
		}
		return nil, err
	}

	for _, s := range res {
		for _, entry := range s.Messages {
			out = append(out, messageFromEntry(entry))
		}
	}
	return out, nil
}

// reclaimPending claims entries idle for at least ReclaimIdle from the
// group's pending-entries list and assigns them to consumer. XAUTOCLAIM is
// not scoped by consumer name: an idle entry held by another consumer in
// the same group is claimed too, with only the MinIdle gate keeping
// in-flight work from being taken.
func (b *RedisBus) reclaimPending(ctx context.Context, stream, group, consumer string, count int64) ([]Message, error) {
	entries, _, err := b.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   stream,
		Group:    group,
		Consumer: consumer,
		MinIdle:  b.ReclaimIdle,
		Start:    "0-0",
		Count:    count,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	out := make([]Message, 0, len(entries))
	for _, entry := range entries {
		out = append(out, messageFromEntry(entry))
	}
	return out, nil
}

func messageFromEntry(entry redis.XMessage) Message {
	payload := make(map[string]string, len(entry.Values))
	for k, v := range entry.Values {
		if sv, ok := v.(string); ok {
			payload[k] = sv
		}
	}
	return Message{ID: entry.ID, Payload: payload}
}

// Ack acknowledges a message, removing it from the group's pending list.
func (b *RedisBus) Ack(ctx context.Context, stream, group, messageID string) error {
	return b.client.XAck(ctx, stream, group, messageID).Err()
}

// Close releases the underlying Redis connection pool.
func (b *RedisBus) Close() error {
	return b.client.Close()
}
