package worker

import "time"

// Policy bounds how often a ticket is retried after a transient failure.
// Attempt numbering starts at 1.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// Delay returns how long to wait before the given attempt, doubling from
// BaseDelay. The first attempt runs immediately.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	d := p.BaseDelay
	for i := 2; i < attempt; i++ {
		d *= 2
	}
	return d
}

// Exhausted reports whether the attempt limit has been reached.
func (p Policy) Exhausted(attempt int) bool {
	return attempt >= p.MaxAttempts
}
