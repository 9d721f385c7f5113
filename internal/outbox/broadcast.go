// ABOUTME: In-memory fan-out sink that streams envelopes to live subscribers
// ABOUTME: Tee combines it with the durable sink so every execute reaches both

package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// subscriberBufferSize is the channel buffer for each subscriber.
const subscriberBufferSize = 64

// AllSenders subscribes to envelopes from every sender.
const AllSenders = ""

// Broadcaster is a Sink that fans envelopes out to subscribers keyed by
// sender. Slow subscribers drop envelopes rather than block Emit.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan *Envelope // sender -> subID -> ch
	closed      bool
	logger      *slog.Logger
}

// NewBroadcaster creates a broadcaster. Pass nil logger for default.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]map[string]chan *Envelope),
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers for envelopes from sender, or from everyone with
// AllSenders. The channel is closed when ctx ends or the broadcaster closes.
func (b *Broadcaster) Subscribe(ctx context.Context, sender string) (<-chan *Envelope, string) {
	subID := uuid.New().String()
	ch := make(chan *Envelope, subscriberBufferSize)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, subID
	}
	if _, ok := b.subscribers[sender]; !ok {
		b.subscribers[sender] = make(map[string]chan *Envelope)
	}
	b.subscribers[sender][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "sender", sender, "sub_id", subID)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(sender, subID)
	}()

	return ch, subID
}

// Emit delivers env to subscribers of env.Sender and of AllSenders.
func (b *Broadcaster) Emit(_ context.Context, env *Envelope) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	keys := []string{AllSenders}
	if env.Sender != AllSenders {
		keys = append(keys, env.Sender)
	}
	for _, key := range keys {
		for _, ch := range b.subscribers[key] {
			select {
			case ch <- env:
			default:
				b.logger.Debug("dropped envelope for slow subscriber",
					"sender", key,
					"envelope", env.ID)
			}
		}
	}
	return nil
}

// Subscribers returns the number of live subscriptions.
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, subs := range b.subscribers {
		n += len(subs)
	}
	return n
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(sender, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[sender]
	if !ok {
		return
	}
	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)
	if len(subs) == 0 {
		delete(b.subscribers, sender)
	}

	b.logger.Debug("subscriber removed", "sender", sender, "sub_id", subID)
}

// Close closes every subscriber channel. Later subscriptions are closed immediately.
func (b *Broadcaster) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sender, subs := range b.subscribers {
		for _, ch := range subs {
			close(ch)
		}
		delete(b.subscribers, sender)
	}
	b.closed = true
	return nil
}

// tee emits to several sinks in order.
type tee []Sink

// Tee returns a Sink that emits to each sink in order, stopping at the first
// error. Close closes all of them.
func Tee(sinks ...Sink) Sink {
	return tee(sinks)
}

func (t tee) Emit(ctx context.Context, env *Envelope) error {
	for i, s := range t {
		if err := s.Emit(ctx, env); err != nil {
			return fmt.Errorf("sink %d: %w", i, err)
		}
	}
	return nil
}

func (t tee) Close() error {
	var errs []error
	for _, s := range t {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}
