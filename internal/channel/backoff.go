package channel

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// DefaultInitialBackoff is the delay after the first failure.
	DefaultInitialBackoff = 5 * time.Second
	// DefaultMaxBackoff caps the delay between attempts.
	DefaultMaxBackoff = 300 * time.Second

	backoffMultiplier = 2
)

// Backoff is the reconnect policy: exponential, without jitter, without a
// total time limit.
type Backoff struct {
	b        *backoff.ExponentialBackOff
	initial  time.Duration
	max      time.Duration
	next     time.Duration
	failures int
}

// NewBackoff returns a policy starting at initial and capped at max.
// Non-positive values select the defaults.
func NewBackoff(initial, max time.Duration) *Backoff {
	if initial <= 0 {
		initial = DefaultInitialBackoff
	}
	if max <= 0 {
		max = DefaultMaxBackoff
	}
	if max < initial {
		max = initial
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.Multiplier = backoffMultiplier
	b.RandomizationFactor = 0
	b.MaxInterval = max
	b.MaxElapsedTime = 0
	b.Reset()

	return &Backoff{b: b, initial: initial, max: max, next: initial}
}

// Next records a failure and returns the delay before the next attempt.
func (p *Backoff) Next() time.Duration {
	d := p.b.NextBackOff()
	p.failures++

	p.next = d * backoffMultiplier
	if p.next > p.max {
		p.next = p.max
	}
	return d
}

// Peek returns the delay Next would return, without recording a failure.
func (p *Backoff) Peek() time.Duration {
	return p.next
}

// Reset clears the failure count.
func (p *Backoff) Reset() {
	p.b.Reset()
	p.failures = 0
	p.next = p.initial
}

// Failures returns the number of consecutive failures since the last Reset.
func (p *Backoff) Failures() int {
	return p.failures
}
