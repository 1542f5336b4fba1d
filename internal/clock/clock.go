// Package clock supplies naive wall-clock time.
//
// All scheduling comparisons use naive times: the wall clock of the configured
// zone, carried in a time.Time whose location is UTC.
package clock

import (
	"sync"
	"time"

	"github.com/event-reminder/backend/internal/storage/models"
)

// Clock returns the current naive wall-clock time.
type Clock interface {
	Now() time.Time
}

// Wall reads the system clock in a fixed zone.
type Wall struct {
	loc *time.Location
}

// NewWall creates a clock reading wall time in loc.
func NewWall(loc *time.Location) *Wall {
	if loc == nil {
		loc = time.UTC
	}
	return &Wall{loc: loc}
}

// Now returns the current wall time in the clock's zone, truncated to seconds.
func (w *Wall) Now() time.Time {
	return models.NaiveTime(time.Now().In(w.loc))
}

// Fixed is a manually advanced clock.
type Fixed struct {
	mu  sync.Mutex
	now time.Time
}

// NewFixed creates a clock stopped at now.
func NewFixed(now time.Time) *Fixed {
	return &Fixed{now: now}
}

// Now returns the clock's current time.
func (f *Fixed) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Set moves the clock to t.
func (f *Fixed) Set(t time.Time) {
	f.mu.Lock()
	f.now = t
	f.mu.Unlock()
}

// Advance moves the clock forward by d.
func (f *Fixed) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}
