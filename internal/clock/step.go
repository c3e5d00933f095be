package clock

import (
	"sync"
	"time"
)

// Step is a manually advanced clock for tests that exercise TTLs and sweeps.
type Step struct {
	mu  sync.Mutex
	now time.Time
}

func NewStep(start time.Time) *Step {
	return &Step{now: start.UTC()}
}

func (s *Step) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *Step) Advance(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = s.now.Add(d)
}
