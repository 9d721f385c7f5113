//go:build integration

package outbox

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

func TestRedisStreamSink(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	url, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	sink := NewRedisStreamSink(client, "test:outbox", 100)
	msgs := []json.RawMessage{json.RawMessage(`{"x":1}`)}
	require.NoError(t, sink.Emit(ctx, &Envelope{
		ID:        "env-1",
		Sender:    "carl",
		Messages:  msgs,
		Digest:    Digest(msgs),
		Timestamp: time.Now(),
	}))

	entries, err := client.XRange(ctx, "test:outbox", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "carl", entries[0].Values["sender"])
	assert.Equal(t, `[{"x":1}]`, entries[0].Values["msgs"])
}
