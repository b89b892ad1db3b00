package haptics

import (
	"sync"
	"time"
)

// Mailbox holds the latest value published by one goroutine for another.
// Older values are overwritten; readers always get a copy.
type Mailbox[T any] struct {
	mu  sync.RWMutex
	val T
	at  time.Time
	set bool
}

// Publish replaces the held value, stamping it with at.
func (m *Mailbox[T]) Publish(v T, at time.Time) {
	m.mu.Lock()
	m.val = v
	m.at = at
	m.set = true
	m.mu.Unlock()
}

// Load returns the latest value, its stamp, and whether anything was ever
// published.
func (m *Mailbox[T]) Load() (T, time.Time, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.val, m.at, m.set
}

// Fresh returns the latest value only if it is at most maxAge old at now.
func (m *Mailbox[T]) Fresh(now time.Time, maxAge time.Duration) (T, bool) {
	v, at, ok := m.Load()
	if !ok || now.Sub(at) > maxAge {
		var zero T
		return zero, false
	}
	return v, true
}
