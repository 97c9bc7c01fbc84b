// Package circuitbreaker stops calling a failing dependency for a while.
// The engine puts one in front of the Redis student lock and one in front
// of the stats cache.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is the position of the breaker.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

var stateNames = [...]string{"closed", "open", "half-open"}

func (s State) String() string {
	if s < StateClosed || s > StateHalfOpen {
		return "unknown"
	}
	return stateNames[s]
}

// ErrCircuitOpen is returned without calling fn while the breaker is open or
// its single half-open trial call is in flight.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// IsUnavailable reports whether err means the breaker rejected the call.
func IsUnavailable(err error) bool { return errors.Is(err, ErrCircuitOpen) }

// Settings configures a breaker. Zero values take the defaults noted.
type Settings struct {
	Name string

	// Failures is the run of consecutive failures that opens it (5).
	Failures int

	// Recoveries is the run of half-open successes that closes it (1).
	Recoveries int

	// OpenFor is how long it rejects calls before one trial call is let through (30s).
	OpenFor time.Duration

	// OnStateChange runs with the breaker's mutex held and must not call
	// back into it.
	OnStateChange func(name string, from, to State)

	Now func() time.Time
}

// CircuitBreaker counts consecutive failures of the calls it wraps.
type CircuitBreaker struct {
	set Settings

	mu            sync.Mutex
	state         State
	run           int // failures while closed, successes while half-open
	trialInFlight bool
	openedAt      time.Time
}

func New(set Settings) *CircuitBreaker {
	if set.Failures <= 0 {
		set.Failures = 5
	}
	if set.Recoveries <= 0 {
		set.Recoveries = 1
	}
	if set.OpenFor <= 0 {
		set.OpenFor = 30 * time.Second
	}
	if set.Now == nil {
		set.Now = time.Now
	}
	return &CircuitBreaker{set: set}
}

// Execute calls fn unless the breaker rejects it, and records the outcome.
// A cancelled caller is not counted as a failure.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := fn(ctx)
	cb.record(err != nil && ctx.Err() == nil)
	return err
}

// ExecuteWithFallback is Execute with fallback handling rejections.
func (cb *CircuitBreaker) ExecuteWithFallback(ctx context.Context, fn func(context.Context) error, fallback func(error) error) error {
	err := cb.Execute(ctx, fn)
	if IsUnavailable(err) {
		return fallback(err)
	}
	return err
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && cb.set.Now().Sub(cb.openedAt) >= cb.set.OpenFor {
		cb.moveTo(StateHalfOpen)
	}
	switch {
	case cb.state == StateOpen, cb.state == StateHalfOpen && cb.trialInFlight:
		return ErrCircuitOpen
	case cb.state == StateHalfOpen:
		cb.trialInFlight = true
	}
	return nil
}

func (cb *CircuitBreaker) record(failed bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.trialInFlight = false
	switch {
	case failed && cb.state == StateHalfOpen:
		cb.trip()
	case failed:
		cb.run++
		if cb.run >= cb.set.Failures {
			cb.trip()
		}
	case cb.state == StateHalfOpen:
		cb.run++
		if cb.run >= cb.set.Recoveries {
			cb.moveTo(StateClosed)
		}
	default:
		cb.run = 0
	}
}

func (cb *CircuitBreaker) trip() {
	cb.openedAt = cb.set.Now()
	cb.moveTo(StateOpen)
}

// moveTo must be called with mu held.
func (cb *CircuitBreaker) moveTo(to State) {
	if cb.state == to {
		return
	}
	from := cb.state
	cb.state, cb.run, cb.trialInFlight = to, 0, false
	if cb.set.OnStateChange != nil {
		cb.set.OnStateChange(cb.set.Name, from, to)
	}
}

// State returns the current state. An open breaker whose timeout elapsed
// still reports open until the next call.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// ─────────────────────────────────────────────────────────────────────────────
// Engine breakers
// ─────────────────────────────────────────────────────────────────────────────

// RedisLockBreaker guards distributed lock acquisition.
func RedisLockBreaker(openFor time.Duration, onStateChange func(name string, from, to State)) *CircuitBreaker {
	return New(Settings{Name: "redis-lock", Failures: 3, OpenFor: openFor, OnStateChange: onStateChange})
}

// CacheBreaker guards best-effort cache reads and writes.
func CacheBreaker(onStateChange func(name string, from, to State)) *CircuitBreaker {
	return New(Settings{Name: "redis-cache", Failures: 5, Recoveries: 2, OnStateChange: onStateChange})
}
