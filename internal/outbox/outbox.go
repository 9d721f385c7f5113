// ABOUTME: Outbox sinks that deliver actions re-emitted by execute
// ABOUTME: Log, Redis stream and in-memory implementations share one Envelope format

package outbox

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"
)

// Envelope is one execute call's worth of forwarded actions.
type Envelope struct {
	ID        string            `json:"id"`
	Sender    string            `json:"sender"`
	Messages  []json.RawMessage `json:"msgs"`
	Digest    string            `json:"digest"`
	Timestamp time.Time         `json:"ts"`
}

// Sink delivers envelopes downstream.
type Sink interface {
	Emit(ctx context.Context, env *Envelope) error
	Close() error
}

// Digest is the hex BLAKE2b-256 of msgs, each prefixed by its length so
// that different splits of the same bytes hash differently.
func Digest(msgs []json.RawMessage) string {
	h, _ := blake2b.New256(nil)
	var n [8]byte
	for _, m := range msgs {
		binary.BigEndian.PutUint64(n[:], uint64(len(m)))
		h.Write(n[:])
		h.Write(m)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// LogSink writes each envelope to a structured logger.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink returns a LogSink. A nil logger uses slog.Default().
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger.With("component", "outbox")}
}

// Emit logs the envelope at Info.
func (s *LogSink) Emit(ctx context.Context, env *Envelope) error {
	s.logger.InfoContext(ctx, "actions forwarded",
		"id", env.ID,
		"sender", env.Sender,
		"count", len(env.Messages),
		"digest", env.Digest,
	)
	return nil
}

// Close is a no-op.
func (s *LogSink) Close() error { return nil }

// MemorySink keeps envelopes in memory for tests.
type MemorySink struct {
	mu        sync.Mutex
	envelopes []*Envelope
}

// NewMemorySink returns an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Emit appends env.
func (s *MemorySink) Emit(ctx context.Context, env *Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.envelopes = append(s.envelopes, env)
	return nil
}

// Envelopes returns a copy of everything emitted so far.
func (s *MemorySink) Envelopes() []*Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.envelopes)
}

// Close is a no-op.
func (s *MemorySink) Close() error { return nil }
