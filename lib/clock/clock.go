package clock

import (
	"sync"
	"sync/atomic"
	"time"
)

// Clock supplies the ledger time at which a registration is recorded.
// Implementations must be monotonic and must never return 0, which is reserved as the "absent" marker.
type Clock interface {
	Now() uint64
}

// --------------------------------------------------------------------------
// System Clock
// --------------------------------------------------------------------------

type systemClock struct {
	mu   sync.Mutex
	last uint64
}

// System returns a clock reading unix seconds. Readings never go backwards even if the wall
// clock does, and are never 0.
func System() Clock {
	return &systemClock{}
}

func (c *systemClock) Now() uint64 {
	now := uint64(max(time.Now().Unix(), 1))

	c.mu.Lock()
	defer c.mu.Unlock()
	if now < c.last {
		now = c.last
	}
	c.last = now
	return now
}

// --------------------------------------------------------------------------
// Manual Clock
// --------------------------------------------------------------------------

// Manual is a clock controlled by the caller.
type Manual struct {
	now atomic.Uint64
}

// NewManual returns a manual clock starting at start.
func NewManual(start uint64) *Manual {
	m := &Manual{}
	m.now.Store(start)
	return m
}

func (m *Manual) Now() uint64 {
	return m.now.Load()
}

// Set moves the clock to t. Moving backwards is allowed, the stores clamp it.
func (m *Manual) Set(t uint64) {
	m.now.Store(t)
}

// Advance moves the clock forward by d and returns the new time.
func (m *Manual) Advance(d uint64) uint64 {
	return m.now.Add(d)
}
