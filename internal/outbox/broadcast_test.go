package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan *Envelope) *Envelope {
	t.Helper()
	select {
	case env := <-ch:
		return env
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for envelope")
		return nil
	}
}

func TestBroadcaster_SenderAndAllSubscribers(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()
	ctx := t.Context()

	alice, _ := b.Subscribe(ctx, "alice")
	carl, _ := b.Subscribe(ctx, "carl")
	all, _ := b.Subscribe(ctx, AllSenders)

	require.NoError(t, b.Emit(ctx, &Envelope{ID: "e1", Sender: "alice"}))

	assert.Equal(t, "e1", receive(t, alice).ID)
	assert.Equal(t, "e1", receive(t, all).ID)
	select {
	case env := <-carl:
		t.Fatalf("carl received %v", env)
	default:
	}
}

func TestBroadcaster_ContextCancelUnsubscribes(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := b.Subscribe(ctx, "alice")
	assert.Equal(t, 1, b.Subscribers())

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel should be closed")
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
	assert.Equal(t, 0, b.Subscribers())
}

func TestBroadcaster_SlowSubscriberDrops(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ch, _ := b.Subscribe(t.Context(), AllSenders)
	for i := 0; i < subscriberBufferSize+10; i++ {
		require.NoError(t, b.Emit(t.Context(), &Envelope{Sender: "alice"}))
	}
	assert.Len(t, ch, subscriberBufferSize)
}

func TestBroadcaster_CloseAndConcurrentEmit(t *testing.T) {
	b := NewBroadcaster(nil)
	ctx := t.Context()
	chans := make([]<-chan *Envelope, 0, 4)
	for i := 0; i < 4; i++ {
		ch, _ := b.Subscribe(ctx, AllSenders)
		chans = append(chans, ch)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = b.Emit(ctx, &Envelope{Sender: "alice"})
		}()
	}
	wg.Wait()
	require.NoError(t, b.Close())

	for _, ch := range chans {
		for range ch {
		}
	}
	late, _ := b.Subscribe(ctx, AllSenders)
	_, ok := <-late
	assert.False(t, ok)
}

type failingSink struct{ MemorySink }

func (f *failingSink) Emit(context.Context, *Envelope) error { return errors.New("down") }

func TestTee(t *testing.T) {
	first, second := NewMemorySink(), NewMemorySink()
	s := Tee(first, second)

	require.NoError(t, s.Emit(t.Context(), &Envelope{ID: "e1"}))
	assert.Len(t, first.Envelopes(), 1)
	assert.Len(t, second.Envelopes(), 1)

	third := NewMemorySink()
	err := Tee(&failingSink{}, third).Emit(t.Context(), &Envelope{ID: "e2"})
	assert.ErrorContains(t, err, "down")
	assert.Empty(t, third.Envelopes())

	assert.NoError(t, s.Close())
}
