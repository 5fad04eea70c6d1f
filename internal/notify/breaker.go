package notify

import (
	"errors"
	"sync"
	"time"
)

// BreakerState is the state of a circuit breaker
type BreakerState int

const (
	// BreakerClosed lets calls through
	BreakerClosed BreakerState = iota
	// BreakerOpen rejects calls until the cooldown elapses
	BreakerOpen
	// BreakerHalfOpen lets one trial call through
	BreakerHalfOpen
)

// String returns the string representation of BreakerState
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrBreakerOpen indicates the breaker is rejecting calls
var ErrBreakerOpen = errors.New("circuit breaker is open")

// Breaker stops calls to a failing dependency after a run of failures and
// retries it after a cooldown
type Breaker struct {
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	mu          sync.Mutex
	state       BreakerState
	failures    int
	lastFailure time.Time
}

// NewBreaker creates a closed breaker that opens after threshold consecutive failures
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 1
	}
	return &Breaker{
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
		state:     BreakerClosed,
	}
}

// Do runs fn unless the breaker is open and records the outcome
func (b *Breaker) Do(fn func() error) error {
	if !b.allow() {
		return ErrBreakerOpen
	}

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.failures++
		b.lastFailure = b.now()
		if b.state == BreakerHalfOpen || b.failures >= b.threshold {
			b.state = BreakerOpen
		}
		return err
	}
	b.failures = 0
	b.state = BreakerClosed
	return nil
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshLocked()
	return b.state != BreakerOpen
}

// refreshLocked moves an open breaker to half-open once the cooldown elapsed (must hold lock)
func (b *Breaker) refreshLocked() {
	if b.state == BreakerOpen && b.now().Sub(b.lastFailure) >= b.cooldown {
		b.state = BreakerHalfOpen
	}
}

// State returns the current state
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshLocked()
	return b.state
}
