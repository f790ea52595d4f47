package clock

import (
	"sync"
	"time"
)

// Clock is the time source used to stamp and expire pool entries.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

// System is the computer clock.
var System Clock = systemClock{}

// Manual is a clock that only moves when told to.
type Manual struct {
	now  time.Time
	lock sync.Mutex
}

// NewManual creates a manual clock starting at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now gets the current time of the clock.
func (m *Manual) Now() time.Time {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.now
}

// Advance moves the clock forward.
func (m *Manual) Advance(d time.Duration) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.now = m.now.Add(d)
}
