// Package eventbus fans out collaboration events to live subscribers
// without ever blocking the publisher, per spec §4.1.
package eventbus

import (
	"sync"
	"sync/atomic"

	"github.com/Gliksbot/gliksbot/collab"
)

// DefaultCapacity is the default bounded queue size per subscriber.
const DefaultCapacity = 1024

// Bus is an in-process publish/subscribe fan-out of SlotEvents. Publish
// never blocks: a subscriber whose queue is full has its oldest
// undelivered event dropped and its drop counter incremented.
type Bus struct {
	capacity int

	mu          sync.Mutex
	subscribers map[*subscriber]struct{}
	drops       atomic.Int64
}

var _ collab.EventBus = (*Bus)(nil)

// New constructs a Bus with the given per-subscriber queue capacity.
// A capacity <= 0 uses DefaultCapacity.
func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus{
		capacity:    capacity,
		subscribers: make(map[*subscriber]struct{}),
	}
}

type subscriber struct {
	mu     sync.Mutex
	buf    []collab.SlotEvent
	notify chan struct{}
	drops  atomic.Int64
	closed atomic.Bool
}

// Publish enqueues event to every live subscriber. It never blocks the
// caller and never returns an error: publish failure is not a condition
// this bus models (spec §4.1 "publish never errors").
func (b *Bus) Publish(event collab.SlotEvent) {
	cloned := collab.CloneSlotEvent(event)

	b.mu.Lock()
	subs := make([]*subscriber, 0, len(b.subscribers))
	for s := range b.subscribers {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		s.push(cloned, b.capacity, &b.drops)
	}
}

func (s *subscriber) push(event collab.SlotEvent, capacity int, busDrops *atomic.Int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return
	}
	if len(s.buf) >= capacity {
		s.buf = s.buf[1:]
		s.drops.Add(1)
		busDrops.Add(1)
	}
	s.buf = append(s.buf, event)
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Subscribe registers a new subscriber and returns a channel of events in
// publish order as observed by that subscriber, plus a cancel function.
// Callers wishing to filter by slot or session do so on the receiving end.
func (b *Bus) Subscribe() collab.Subscription {
	sub := &subscriber{
		notify: make(chan struct{}, 1),
	}

	b.mu.Lock()
	b.subscribers[sub] = struct{}{}
	b.mu.Unlock()

	out := make(chan collab.SlotEvent)
	done := make(chan struct{})

	go func() {
		defer close(out)
		for {
			sub.mu.Lock()
			if len(sub.buf) > 0 {
				event := sub.buf[0]
				sub.buf = sub.buf[1:]
				sub.mu.Unlock()
				select {
				case out <- event:
					continue
				case <-done:
					return
				}
			}
			sub.mu.Unlock()

			select {
			case <-sub.notify:
				continue
			case <-done:
				return
			}
		}
	}()

	cancel := func() {
		b.mu.Lock()
		delete(b.subscribers, sub)
		b.mu.Unlock()
		sub.closed.Store(true)
		close(done)
	}

	return collab.Subscription{Events: out, Cancel: cancel}
}

// Drops returns the total number of events dropped across all subscribers
// since the bus was created.
func (b *Bus) Drops() int64 {
	return b.drops.Load()
}

// SubscriberCount reports the number of live subscribers. The Bus does
// not cap how many subscribers may register.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}
