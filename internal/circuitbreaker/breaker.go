// Package circuitbreaker shields the single downstream trigger endpoint.
// After threshold consecutive failures the breaker opens; once the cooldown
// elapses a single half-open probe is allowed through.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

type state int

const (
	stateClosed state = iota
	stateOpen
	stateHalfOpen
)

type Breaker struct {
	mu                  sync.Mutex
	state               state
	consecutiveFailures int
	openedAt            time.Time
	threshold           int
	cooldown            time.Duration
	clock               func() time.Time
}

func New(threshold int, cooldown time.Duration) *Breaker {
	return &Breaker{
		threshold: threshold,
		cooldown:  cooldown,
		clock:     time.Now,
	}
}

// WithClock overrides the time source. For tests.
func (b *Breaker) WithClock(clock func() time.Time) *Breaker {
	b.clock = clock
	return b
}

// Allow reports whether a delivery attempt may proceed. While half-open,
// only the first probe passes until its outcome is recorded.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case stateOpen:
		if b.clock().Sub(b.openedAt) >= b.cooldown {
			b.state = stateHalfOpen
			return nil
		}
		return ErrCircuitOpen
	case stateHalfOpen:
		return ErrCircuitOpen
	default:
		return nil
	}
}

func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = stateClosed
	b.consecutiveFailures = 0
}

func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveFailures++
	if b.consecutiveFailures >= b.threshold {
		b.state = stateOpen
		b.openedAt = b.clock()
	}
}
