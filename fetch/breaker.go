package fetch

import (
	"sync"
	"time"
)

const defaultCooldown = 30 * time.Second

// BreakerState is the state of a Breaker.
type BreakerState int

const (
	// BreakerClosed lets every call through.
	BreakerClosed BreakerState = iota
	// BreakerOpen rejects calls until the cooldown has passed.
	BreakerOpen
	// BreakerHalfOpen lets a single probe call through.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker stops calling a failing backend. After threshold consecutive
// failures it opens; once the cooldown has passed one probe is let through,
// and its outcome closes or re-opens the breaker.
//
// Contract:
// - Concurrency: safe for concurrent use.
type Breaker struct {
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
	probing  bool
}

// NewBreaker creates a closed Breaker. A non-positive threshold means 1; a
// non-positive cooldown means 30s.
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 1
	}
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	return &Breaker{threshold: threshold, cooldown: cooldown, now: time.Now}
}

// Allow reports whether a call may start. It returns ErrBreakerOpen when
// the breaker is open, or half-open with its probe already running.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.currentLocked() {
	case BreakerOpen:
		return ErrBreakerOpen
	case BreakerHalfOpen:
		if b.probing {
			return ErrBreakerOpen
		}
		b.probing = true
	}
	return nil
}

// Record reports the outcome of a call that Allow let through.
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerHalfOpen {
		b.probing = false
		if err != nil {
			b.open()
			return
		}
		b.state, b.failures = BreakerClosed, 0
		return
	}

	if err == nil {
		b.failures = 0
		return
	}
	b.failures++
	if b.failures >= b.threshold {
		b.open()
	}
}

// State returns the current state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentLocked()
}

// Failures returns the consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

func (b *Breaker) open() {
	b.state = BreakerOpen
	b.openedAt = b.now()
}

func (b *Breaker) currentLocked() BreakerState {
	if b.state == BreakerOpen && b.now().Sub(b.openedAt) >= b.cooldown {
		b.state = BreakerHalfOpen
		b.probing = false
	}
	return b.state
}
