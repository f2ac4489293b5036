// Package events implements the change-notification bus the scheduler uses
// to tell observers that the queue's composition changed.
package events

import (
	"sync"
	"time"

	"github.com/xXKillerNoobYT/ticketd/internal/logging"
)

// EventType represents the type of event being published.
type EventType string

const (
	// EventQueueChanged is published after any net queue mutation: a
	// refresh delta, a successful pick, or an escalation. It carries no
	// payload; observers re-query the scheduler for details.
	EventQueueChanged EventType = "queue_changed"
)

// Event is a payload-free marker with the publication timestamp.
type Event struct {
	Type      EventType
	Timestamp time.Time
}

// Listener receives events.
type Listener func(Event)

// Bus fans events out to listeners synchronously, in registration order.
// A panicking listener is recovered and logged; it never prevents the
// remaining listeners from running nor the publisher from returning.
type Bus struct {
	mu        sync.Mutex
	listeners []*entry
	nextID    int
	logger    *logging.Logger
}

type entry struct {
	id int
	fn Listener
}

func NewBus(logger *logging.Logger) *Bus {
	return &Bus{logger: logger}
}

// Subscribe registers a listener and returns an unsubscribe function.
// Unsubscribing twice is a no-op.
func (b *Bus) Subscribe(fn Listener) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := &entry{id: b.nextID, fn: fn}
	b.nextID++
	b.listeners = append(b.listeners, e)

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, cur := range b.listeners {
			if cur.id == e.id {
				b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers the event to every listener registered at call time.
func (b *Bus) Publish(eventType EventType) {
	b.mu.Lock()
	snapshot := make([]*entry, len(b.listeners))
	copy(snapshot, b.listeners)
	b.mu.Unlock()

	event := Event{Type: eventType, Timestamp: time.Now().UTC()}
	for _, e := range snapshot {
		b.deliver(e, event)
	}
}

func (b *Bus) deliver(e *entry, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Errorf("listener_panic event=%s recovered=%v", event.Type, r)
		}
	}()
	e.fn(event)
}

// Len reports the number of registered listeners.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners)
}
