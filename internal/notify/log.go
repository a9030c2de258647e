package notify

import (
	"sync"
)

// DefaultLogCapacity bounds the event log when no capacity is configured.
const DefaultLogCapacity = 50

// EventLog is a fixed-capacity, most-recent-first log of normalized events.
// Appending beyond capacity drops the oldest entries. There is no durability:
// the log is rebuilt empty on every start.
type EventLog struct {
	mu       sync.RWMutex
	capacity int
	events   []Event
}

// NewEventLog creates a log holding at most capacity events.
func NewEventLog(capacity int) *EventLog {
	if capacity <= 0 {
		capacity = DefaultLogCapacity
	}
	return &EventLog{capacity: capacity}
}

// Append records an event as the most recent entry.
func (l *EventLog) Append(evt Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.events = append([]Event{evt}, l.events...)
	if len(l.events) > l.capacity {
		l.events = l.events[:l.capacity]
	}
}

// Recent returns up to n events, most recent first. n <= 0 returns all.
func (l *EventLog) Recent(n int) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n <= 0 || n > len(l.events) {
		n = len(l.events)
	}
	out := make([]Event, n)
	copy(out, l.events[:n])
	return out
}

// Len returns the number of retained events.
func (l *EventLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}
