package circuit

import (
	"sync"
	"time"
)

// Breaker prevents repeated calls against a backend that is known to be down.
// When the backend is unhealthy the circuit opens and callers short-circuit
// without attempting the call until the cooldown expires.
type Breaker struct {
	mu sync.RWMutex

	threshold int           // failures to trigger open
	cooldown  time.Duration // how long to stay open

	failures  int       // consecutive failures
	openUntil time.Time // when to transition from open to half-open
	isOpen    bool

	now func() time.Time
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithClock injects a clock for tests.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		if now != nil {
			b.now = now
		}
	}
}

// New creates a circuit breaker.
// threshold: number of consecutive failures to open the circuit
// cooldown: how long to stay open before trying again
func New(threshold int, cooldown time.Duration, opts ...Option) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = time.Minute
	}
	b := &Breaker{
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Allow returns true if the circuit is closed (healthy) or half-open (testing).
func (b *Breaker) Allow() bool {
	b.mu.RLock()
	if !b.isOpen {
		b.mu.RUnlock()
		return true
	}

	expired := b.now().After(b.openUntil)
	b.mu.RUnlock()

	if expired {
		// Transition to half-open - allow one request through
		b.mu.Lock()
		defer b.mu.Unlock()

		// Double-check after acquiring write lock
		if b.isOpen && b.now().After(b.openUntil) {
			b.isOpen = false
			b.failures = 0
		}
		return !b.isOpen
	}

	return false
}

// RecordSuccess records a successful operation, closing the circuit.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.isOpen = false
}

// RecordFailure records a failed operation, potentially opening the circuit.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	if b.failures >= b.threshold {
		b.isOpen = true
		b.openUntil = b.now().Add(b.cooldown)
	}
}

// Trip opens the circuit immediately, regardless of the failure count.
// Used when a single response is authoritative about backend health.
func (b *Breaker) Trip() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = b.threshold
	b.isOpen = true
	b.openUntil = b.now().Add(b.cooldown)
}

// IsOpen reports whether the circuit is currently open.
func (b *Breaker) IsOpen() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.isOpen
}
