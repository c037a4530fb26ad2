package server

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/danmuck/gesk/internal/ingest"
	"github.com/danmuck/gesk/internal/sink"
)

const (
	DefaultTailSize   = 256
	subscriberBacklog = 64
)

// Tail is an ingest sink that keeps the most recent entries for /records and
// fans new ones out to websocket subscribers.
type Tail struct {
	mu     sync.RWMutex
	ring   []sink.Message
	next   int
	full   bool
	subs   map[*Subscriber]struct{}
	closed bool

	dropped atomic.Uint64
}

// Subscriber receives JSON-encoded messages. A slow subscriber loses messages
// rather than stalling ingestion.
type Subscriber struct {
	C  <-chan []byte
	ch chan []byte
}

func NewTail(size int) *Tail {
	if size <= 0 {
		size = DefaultTailSize
	}
	return &Tail{
		ring: make([]sink.Message, size),
		subs: make(map[*Subscriber]struct{}),
	}
}

func (t *Tail) Name() string {
	return "tail"
}

func (t *Tail) Write(e ingest.Entry) error {
	msg := sink.NewMessage(e)
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.ring[t.next] = msg
	t.next = (t.next + 1) % len(t.ring)
	if t.next == 0 {
		t.full = true
	}
	for sub := range t.subs {
		select {
		case sub.ch <- data:
		default:
			t.dropped.Add(1)
		}
	}
	return nil
}

// Recent returns up to limit entries, oldest first. limit <= 0 means all.
func (t *Tail) Recent(limit int) []sink.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.recentLocked(limit)
}

func (t *Tail) recentLocked(limit int) []sink.Message {
	n := t.next
	start := 0
	if t.full {
		n = len(t.ring)
		start = t.next
	}
	if limit > 0 && limit < n {
		start = (start + n - limit) % len(t.ring)
		n = limit
	}
	out := make([]sink.Message, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, t.ring[(start+i)%len(t.ring)])
	}
	return out
}

func (t *Tail) Subscribe() *Subscriber {
	_, sub := t.SubscribeFrom(0)
	return sub
}

// SubscribeFrom returns the last backlog entries together with a subscription
// that starts right after them.
func (t *Tail) SubscribeFrom(backlog int) ([]sink.Message, *Subscriber) {
	ch := make(chan []byte, subscriberBacklog)
	sub := &Subscriber{C: ch, ch: ch}
	t.mu.Lock()
	defer t.mu.Unlock()
	var recent []sink.Message
	if backlog > 0 {
		recent = t.recentLocked(backlog)
	}
	if t.closed {
		close(ch)
		return recent, sub
	}
	t.subs[sub] = struct{}{}
	return recent, sub
}

func (t *Tail) Unsubscribe(sub *Subscriber) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.subs[sub]; ok {
		delete(t.subs, sub)
		close(sub.ch)
	}
}

func (t *Tail) Subscribers() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subs)
}

// Dropped counts messages a full subscriber buffer refused.
func (t *Tail) Dropped() uint64 {
	return t.dropped.Load()
}

// Close ends every subscription. Later writes still fill the ring.
func (t *Tail) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for sub := range t.subs {
		delete(t.subs, sub)
		close(sub.ch)
	}
	t.closed = true
	return nil
}
