// Package circuit implements a minimal consecutive-failure circuit breaker.
//
// The gateway records the outcome of every transport attempt. After N
// consecutive failures the breaker opens and Allow reports false until M
// consecutive successes close it again. Probing while open is permitted at
// most once per cooldown interval so a recovered backend is noticed without
// hammering it.
package circuit

import (
	"sync"
	"time"
)

// State of the breaker.
type State int

const (
	StateClosed State = iota
	StateOpen
)

func (s State) String() string {
	if s == StateOpen {
		return "open"
	}
	return "closed"
}

// Breaker tracks consecutive transport failures.
type Breaker struct {
	mu               sync.Mutex
	name             string
	state            State
	failureCount     int
	successCount     int
	failureThreshold int
	successThreshold int
	cooldown         time.Duration
	lastAttempt      time.Time
	now              func() time.Time
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithFailureThreshold sets how many consecutive failures open the breaker.
func WithFailureThreshold(n int) Option {
	return func(b *Breaker) { b.failureThreshold = n }
}

// WithSuccessThreshold sets how many consecutive successes close an open breaker.
func WithSuccessThreshold(n int) Option {
	return func(b *Breaker) { b.successThreshold = n }
}

// WithCooldown sets the minimum interval between probe attempts while open.
func WithCooldown(d time.Duration) Option {
	return func(b *Breaker) { b.cooldown = d }
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

// New constructs a closed Breaker with sensible defaults (5 failures to open,
// 2 successes to close, 30s probe cooldown).
func New(name string, opts ...Option) *Breaker {
	b := &Breaker{
		name:             name,
		state:            StateClosed,
		failureThreshold: 5,
		successThreshold: 2,
		cooldown:         30 * time.Second,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Breaker) Name() string { return b.name }

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) IsOpen() bool {
	return b.State() == StateOpen
}

// Allow reports whether a request may proceed. While open, it admits a single
// probe per cooldown interval.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateClosed {
		b.lastAttempt = b.now()
		return true
	}
	if b.now().Sub(b.lastAttempt) >= b.cooldown {
		b.lastAttempt = b.now()
		return true
	}
	return false
}

// RecordSuccess notes a successful attempt. Returns true when this success
// closed a previously open breaker.
func (b *Breaker) RecordSuccess() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen {
		b.successCount++
		if b.successCount >= b.successThreshold {
			b.state = StateClosed
			b.failureCount = 0
			b.successCount = 0
			return true
		}
		return false
	}
	b.failureCount = 0
	return false
}

// RecordFailure notes a failed attempt. Returns true when this failure opened
// the breaker.
func (b *Breaker) RecordFailure() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.successCount = 0
	if b.state == StateOpen {
		return false
	}
	b.failureCount++
	if b.failureCount >= b.failureThreshold {
		b.state = StateOpen
		return true
	}
	return false
}

// Reset forces the breaker closed and clears all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failureCount = 0
	b.successCount = 0
}
