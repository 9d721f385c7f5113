// ABOUTME: Replay guard for execute requests keyed by sender and request id
// ABOUTME: TTL plus size-bounded LRU with a background sweeper

package replay

import (
	"container/list"
	"errors"
	"sync"
	"time"
)

// ErrReplayed is returned when a sender reuses a request id inside the TTL.
var ErrReplayed = errors.New("request id already used")

// Defaults used when Options leaves a field zero.
const (
	DefaultTTL           = 10 * time.Minute
	DefaultMaxEntries    = 10000
	DefaultSweepInterval = time.Minute
)

// Options configures a Guard.
type Options struct {
	TTL           time.Duration
	MaxEntries    int
	SweepInterval time.Duration
}

type claim struct {
	at      time.Time
	element *list.Element
}

// Guard remembers recently claimed (sender, request id) pairs.
// The oldest claim is evicted when MaxEntries is reached.
type Guard struct {
	mu      sync.Mutex
	claims  map[string]*claim
	order   *list.List // keys, oldest at front
	ttl     time.Duration
	max     int
	now     func() time.Time
	done    chan struct{}
	stopped sync.WaitGroup
	closed  bool
}

// New creates a Guard and starts its sweeper. Call Close to stop it.
func New(opts Options) *Guard {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}

	g := &Guard{
		claims: make(map[string]*claim),
		order:  list.New(),
		ttl:    opts.TTL,
		max:    opts.MaxEntries,
		now:    time.Now,
		done:   make(chan struct{}),
	}
	g.stopped.Add(1)
	go g.sweep(opts.SweepInterval)
	return g
}

func key(sender, requestID string) string {
	return sender + "\x00" + requestID
}

// Claim records (sender, requestID). It returns ErrReplayed if the pair was
// claimed within the TTL. An empty requestID is never tracked.
func (g *Guard) Claim(sender, requestID string) error {
	if requestID == "" {
		return nil
	}
	k := key(sender, requestID)

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if c, ok := g.claims[k]; ok {
		if now.Sub(c.at) < g.ttl {
			return ErrReplayed
		}
		c.at = now
		g.order.MoveToBack(c.element)
		return nil
	}

	if len(g.claims) >= g.max {
		g.evictOldestLocked()
	}
	g.claims[k] = &claim{at: now, element: g.order.PushBack(k)}
	return nil
}

// Release forgets a claim so the request can be retried, e.g. after the
// request failed before taking effect.
func (g *Guard) Release(sender, requestID string) {
	if requestID == "" {
		return
	}
	k := key(sender, requestID)

	g.mu.Lock()
	defer g.mu.Unlock()

	if c, ok := g.claims[k]; ok {
		g.order.Remove(c.element)
		delete(g.claims, k)
	}
}

// Len returns the number of tracked claims, expired or not.
func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.claims)
}

func (g *Guard) evictOldestLocked() {
	front := g.order.Front()
	if front == nil {
		return
	}
	k, _ := front.Value.(string)
	g.order.Remove(front)
	delete(g.claims, k)
}

func (g *Guard) sweep(interval time.Duration) {
	defer g.stopped.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.expire()
		case <-g.done:
			return
		}
	}
}

// expire drops every claim older than the TTL. The list is in claim order,
// so it stops at the first live entry.
func (g *Guard) expire() {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	for e := g.order.Front(); e != nil; {
		k, _ := e.Value.(string)
		c := g.claims[k]
		if now.Sub(c.at) < g.ttl {
			return
		}
		next := e.Next()
		g.order.Remove(e)
		delete(g.claims, k)
		e = next
	}
}

// Close stops the sweeper and waits for it to exit. Safe to call more than once.
func (g *Guard) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	close(g.done)
	g.mu.Unlock()

	g.stopped.Wait()
}
