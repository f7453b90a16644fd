package streambus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemBusRedeliversUnackedEntry(t *testing.T) {
	bus := NewMemBus()
	ctx := context.Background()
	require.NoError(t, bus.CreateGroup(ctx, "stream", "group"))

	id, err := bus.Publish(ctx, "stream", map[string]string{"k": "v"})
	require.NoError(t, err)

	first, err := bus.Consume(ctx, "stream", "group", "consumer", 10, 0)
	require.NoError(t, err)
	require.Len(t, first, 1)
	require.Equal(t, id, first[0].ID)

	// Not acked: the entry must come back, not vanish.
	second, err := bus.Consume(ctx, "stream", "group", "consumer", 10, 0)
	require.NoError(t, err)
	require.Len(t, second, 1)
	require.Equal(t, id, second[0].ID)

	require.NoError(t, bus.Ack(ctx, "stream", "group", id))

	third, err := bus.Consume(ctx, "stream", "group", "consumer", 10, 0)
	require.NoError(t, err)
	require.Empty(t, third)
	require.True(t, bus.Acked("stream", "group", id))
}

func TestMemBusConsumeRespectsCount(t *testing.T) {
	bus := NewMemBus()
	ctx := context.Background()
	require.NoError(t, bus.CreateGroup(ctx, "stream", "group"))

	for i := 0; i < 3; i++ {
		_, err := bus.Publish(ctx, "stream", map[string]string{"i": time.Now().String()})
		require.NoError(t, err)
	}

	first, err := bus.Consume(ctx, "stream", "group", "consumer", 2, 0)
	require.NoError(t, err)
	require.Len(t, first, 2)

	rest, err := bus.Consume(ctx, "stream", "group", "consumer", 2, 0)
	require.NoError(t, err)
	require.Len(t, rest, 1)
}
