// Package cache holds the process-local availability cache.  Entries are
// hints written after each committed booking, cancellation or store read;
// they are never consulted to decide whether a reservation succeeds.
package cache

import (
	"sync"
	"time"
)

// Entry is a cached available seat count and the time it was written.
type Entry struct {
	Seats     int
	UpdatedAt time.Time
}

// Availability maps event ids to their last known available seat count.
// It is safe for concurrent use and never blocks on I/O.
type Availability struct {
	mu      sync.RWMutex
	entries map[string]Entry
	now     func() time.Time
}

// NewAvailability returns an empty cache.
func NewAvailability() *Availability {
	return &Availability{entries: make(map[string]Entry), now: time.Now}
}

// Get returns the cached count for eventID.
func (a *Availability) Get(eventID string) (int, bool) {
	e, ok := a.Entry(eventID)
	return e.Seats, ok
}

// Entry returns the full cache entry for eventID.
func (a *Availability) Entry(eventID string) (Entry, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	e, ok := a.entries[eventID]
	return e, ok
}

// Set overwrites the entry for eventID.
func (a *Availability) Set(eventID string, seats int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries[eventID] = Entry{Seats: seats, UpdatedAt: a.now()}
}

// Adjust adds delta to an existing entry and returns the new value.  It is
// a no-op when eventID is not cached.
func (a *Availability) Adjust(eventID string, delta int) (int, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.entries[eventID]
	if !ok {
		return 0, false
	}
	e.Seats += delta
	e.UpdatedAt = a.now()
	a.entries[eventID] = e
	return e.Seats, true
}

// Invalidate drops the entry for eventID.
func (a *Availability) Invalidate(eventID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.entries, eventID)
}

// Clear drops every entry.
func (a *Availability) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = make(map[string]Entry)
}

// Len reports the number of cached events.
func (a *Availability) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.entries)
}
