// Package circuitbreaker guards calls to a flaky backend. After enough
// consecutive failures the circuit opens and calls fail fast, so the
// Primary-then-Secondary fallback chain switches over without burning a
// timeout on every request.
package circuitbreaker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// State of the breaker.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Breaker tracks consecutive failures against one backend. Closed passes
// everything through; Open fails fast until the cooldown elapses; HalfOpen
// lets a few probe calls through before deciding.
type Breaker struct {
	name        string
	maxFailures uint32
	cooldown    time.Duration
	probeQuota  uint32

	mu              sync.Mutex
	state           State
	failures        uint32
	probeCalls      uint32
	probeSuccesses  uint32
	lastFailureTime time.Time

	logger *logrus.Logger
}

// New creates a breaker. maxFailures consecutive failures open it; after
// cooldown it half-opens and probes the backend again.
func New(name string, maxFailures uint32, cooldown time.Duration, logger *logrus.Logger) *Breaker {
	if logger == nil {
		logger = logrus.New()
	}
	return &Breaker{
		name:        name,
		maxFailures: maxFailures,
		cooldown:    cooldown,
		probeQuota:  3,
		state:       StateClosed,
		logger:      logger,
	}
}

// Execute runs fn if the breaker allows it, folding the outcome into the
// breaker state. An open breaker returns *OpenError without calling fn.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if !b.allow() {
		return &OpenError{Name: b.name}
	}

	if err := fn(ctx); err != nil {
		b.onFailure()
		return err
	}
	b.onSuccess()
	return nil
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(b.lastFailureTime) < b.cooldown {
			return false
		}
		b.state = StateHalfOpen
		b.probeCalls = 0
		b.probeSuccesses = 0
		b.logger.WithField("breaker", b.name).Info("Circuit breaker half-open, probing backend")
		fallthrough
	case StateHalfOpen:
		if b.probeCalls >= b.probeQuota {
			return false
		}
		b.probeCalls++
		return true
	default:
		return false
	}
}

func (b *Breaker) onSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.probeSuccesses++
		if b.probeSuccesses >= b.probeQuota {
			b.state = StateClosed
			b.failures = 0
			b.logger.WithField("breaker", b.name).Info("Circuit breaker closed after recovery")
		}
	}
}

func (b *Breaker) onFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailureTime = time.Now()

	switch b.state {
	case StateClosed:
		if b.failures >= b.maxFailures {
			b.trip()
		}
	case StateHalfOpen:
		b.trip()
	}
}

// caller holds the lock
func (b *Breaker) trip() {
	b.state = StateOpen
	b.logger.WithFields(logrus.Fields{
		"breaker":  b.name,
		"failures": b.failures,
	}).Warn("Circuit breaker opened")
}

// CurrentState returns the breaker state, accounting for an elapsed
// cooldown.
func (b *Breaker) CurrentState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && time.Since(b.lastFailureTime) >= b.cooldown {
		return StateHalfOpen
	}
	return b.state
}

// OpenError is returned when a call is rejected without reaching the
// backend.
type OpenError struct {
	Name string
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit breaker %q is open", e.Name)
}

// IsOpen reports whether the error is a fast-fail from an open breaker.
func IsOpen(err error) bool {
	_, ok := err.(*OpenError)
	return ok
}
