package stream

import (
	"context"
	"errors"
	"iter"
	"sync"
	"sync/atomic"

	"github.com/your-org/attendance/internal/observability"
)

var ErrClosed = errors.New("stream closed")

// Broadcaster fans out encoded chunks from the single frame producer to any
// number of viewers. A viewer that falls behind loses its oldest pending chunk,
// so Publish never blocks.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
	buffer int
}

// NewBroadcaster creates a broadcaster holding up to buffer pending chunks per viewer.
func NewBroadcaster(buffer int) *Broadcaster {
	if buffer < 1 {
		buffer = 1
	}
	return &Broadcaster{
		subs:   make(map[*Subscription]struct{}),
		buffer: buffer,
	}
}

// Subscription is one viewer's position in the stream.
type Subscription struct {
	b       *Broadcaster
	ch      chan []byte
	dropped atomic.Uint64
}

// Subscribe registers a viewer. It fails with ErrClosed once the producer has stopped.
func (b *Broadcaster) Subscribe() (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}
	s := &Subscription{b: b, ch: make(chan []byte, b.buffer)}
	b.subs[s] = struct{}{}
	observability.StreamViewers.Inc()
	return s, nil
}

// Publish delivers chunk to every viewer in publish order.
func (b *Broadcaster) Publish(chunk []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	for s := range b.subs {
		select {
		case s.ch <- chunk:
			continue
		default:
		}
		// full: drop the oldest pending chunk and retry once
		select {
		case <-s.ch:
			s.dropped.Add(1)
		default:
		}
		select {
		case s.ch <- chunk:
		default:
			s.dropped.Add(1)
		}
	}
}

// Viewers returns the number of active subscriptions.
func (b *Broadcaster) Viewers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close ends every subscription's sequence. Further Subscribe calls fail.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for s := range b.subs {
		b.removeLocked(s)
	}
}

func (b *Broadcaster) removeLocked(s *Subscription) {
	if _, ok := b.subs[s]; !ok {
		return
	}
	delete(b.subs, s)
	close(s.ch)
	observability.StreamViewers.Dec()
}

// Close unsubscribes the viewer. Safe to call more than once.
func (s *Subscription) Close() {
	s.b.mu.Lock()
	s.b.removeLocked(s)
	s.b.mu.Unlock()

	// discard what the viewer will never read
	for range s.ch {
	}
}

// Dropped reports how many chunks this viewer missed by falling behind.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Chunks yields chunks in capture order until the broadcaster closes, ctx is
// done or the consumer stops. The sequence cannot be restarted: the
// subscription is closed when iteration ends.
func (s *Subscription) Chunks(ctx context.Context) iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		defer s.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case chunk, ok := <-s.ch:
				if !ok || !yield(chunk) {
					return
				}
			}
		}
	}
}
