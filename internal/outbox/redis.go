// ABOUTME: Redis stream outbox sink
// ABOUTME: XADD per envelope with approximate MAXLEN trimming

package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultStream is used when no stream name is configured.
const DefaultStream = "whitelist:outbox"

// RedisStreamSink appends envelopes to a Redis stream.
type RedisStreamSink struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedisStreamSink returns a sink writing to stream. maxLen <= 0 disables trimming.
func NewRedisStreamSink(client *redis.Client, stream string, maxLen int64) *RedisStreamSink {
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisStreamSink{
		client: client,
		stream: stream,
		maxLen: maxLen,
	}
}

// Emit adds one stream entry with fields id, sender, digest and msgs (JSON array).
func (s *RedisStreamSink) Emit(ctx context.Context, env *Envelope) error {
	msgs, err := json.Marshal(env.Messages)
	if err != nil {
		return fmt.Errorf("marshaling messages: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"id":     env.ID,
			"sender": env.Sender,
			"digest": env.Digest,
			"ts":     env.Timestamp.UTC().UnixMilli(),
			"msgs":   string(msgs),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}

	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("appending to stream %s: %w", s.stream, err)
	}
	return nil
}

// Close is a no-op; the client lifecycle is managed by the caller.
func (s *RedisStreamSink) Close() error { return nil }
