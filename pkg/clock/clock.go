package clock

import (
	"sync"
	"time"
)

// Clock abstracts wall time so cool-down and expiry logic can be tested
// without sleeping.
type Clock interface {
	Now() time.Time
}

// System reads real wall-clock time.
type System struct{}

func (System) Now() time.Time { return time.Now() }

// Manual is a clock advanced explicitly by tests.
type Manual struct {
	mu sync.Mutex
	t  time.Time
}

// NewManual creates a manual clock frozen at t.
func NewManual(t time.Time) *Manual {
	return &Manual{t: t}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t
}

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.t = m.t.Add(d)
}

// Set jumps the clock to t.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.t = t
}
