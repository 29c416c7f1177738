//
//
package feed

import (
	"sync"
	"time"
)

// EventBuffer keeps the most recent events, bounded by count and age.
type EventBuffer struct {
	mu        sync.RWMutex
	events    []Event
	capacity  int
	retention time.Duration
}

// NewEventBuffer creates a buffer holding at most capacity events no older
// than retention. A zero retention keeps events until they are displaced.
func NewEventBuffer(capacity int, retention time.Duration) *EventBuffer {
	return &EventBuffer{
		events:    make([]Event, 0, capacity),
		capacity:  capacity,
		retention: retention,
	}
}

// Add appends an event, evicting the oldest ones beyond capacity.
func (b *EventBuffer) Add(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events = append(b.events, event)
	if over := len(b.events) - b.capacity; over > 0 {
		b.events = append(b.events[:0:0], b.events[over:]...)
	}
	b.pruneLocked(event.At)
}

// EventsAfter returns buffered events with an ID above lastID that are still
// within retention at now.
func (b *EventBuffer) EventsAfter(lastID int64, now time.Time) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var result []Event
	for _, event := range b.events {
		if event.ID <= lastID || b.expired(event, now) {
			continue
		}
		result = append(result, event)
	}
	return result
}

func (b *EventBuffer) pruneLocked(now time.Time) {
	drop := 0
	for drop < len(b.events) && b.expired(b.events[drop], now) {
		drop++
	}
	if drop > 0 {
		b.events = append(b.events[:0:0], b.events[drop:]...)
	}
}

func (b *EventBuffer) expired(event Event, now time.Time) bool {
	return b.retention > 0 && now.Sub(event.At) > b.retention
}

// Capacity returns the buffer capacity.
func (b *EventBuffer) Capacity() int {
	return b.capacity
}

// Len returns the number of buffered events.
func (b *EventBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.events)
}
