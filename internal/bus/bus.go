// Package bus is the in-process publish/subscribe channel the sync services
// use to fan state changes out to whatever surface is rendering them.
package bus

import (
	"strings"
	"sync"
	"time"
)

// Event kinds published by the sync engine. Thread events carry the
// counterpart id as a suffix so a subscriber can watch one conversation.
const (
	KindConversationsUpdated = "conversations.updated"
	KindThreadUpdated        = "thread.updated."
	KindCountersUpdated      = "counters.updated"
)

// Event represents a state-change notification published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// ThreadKind returns the event kind for one conversation's thread.
func ThreadKind(counterpartID string) string {
	return KindThreadUpdated + counterpartID
}

// Bus is an in-process publish/subscribe event bus with prefix filtering.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]*subscription
	next int
}

type subscription struct {
	prefix string
	ch     chan Event
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		subs: make(map[int]*subscription),
	}
}

// Publish sends an event to every subscriber whose prefix matches
// event.Kind. Slow subscribers drop events rather than blocking a mutation
// path; state is always re-readable from the owning service.
func (b *Bus) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if strings.HasPrefix(evt.Kind, sub.prefix) {
			select {
			case sub.ch <- evt:
			default:
			}
		}
	}
}

// Subscribe returns a channel receiving events whose kind starts with the
// given prefix, and an unsubscribe function.
func (b *Bus) Subscribe(prefix string, bufSize int) (<-chan Event, func()) {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = &subscription{prefix: prefix, ch: ch}
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}
