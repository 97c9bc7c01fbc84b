// Package retry re-runs an operation with exponential backoff and jitter.
// Used around distributed lock acquisition, cache projections and
// transactional writes that may hit serialization conflicts.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// RetryableError marks an error as worth another attempt.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string { return e.Err.Error() }

func (e *RetryableError) Unwrap() error { return e.Err }

// Retryable wraps err so the default policy retries it. Nil stays nil.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// IsRetryable reports whether err carries a RetryableError.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

type config struct {
	maxAttempts  int
	initialDelay time.Duration
	maxDelay     time.Duration
	multiplier   float64
	jitter       float64
	retryIf      func(error) bool
}

// Option configures a Retrier.
type Option func(*config)

// WithMaxAttempts sets the number of attempts, the first one included.
func WithMaxAttempts(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithInitialDelay sets the delay before the second attempt.
func WithInitialDelay(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.initialDelay = d
		}
	}
}

// WithMaxDelay caps the delay between attempts.
func WithMaxDelay(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.maxDelay = d
		}
	}
}

// WithMultiplier sets the backoff growth factor (>= 1).
func WithMultiplier(m float64) Option {
	return func(c *config) {
		if m >= 1 {
			c.multiplier = m
		}
	}
}

// WithJitter sets the relative jitter in [0, 1].
func WithJitter(j float64) Option {
	return func(c *config) {
		if j >= 0 && j <= 1 {
			c.jitter = j
		}
	}
}

// WithRetryIf replaces the default policy, which retries only
// RetryableError.
func WithRetryIf(fn func(error) bool) Option {
	return func(c *config) { c.retryIf = fn }
}

// Retrier runs operations under one policy. It is safe for concurrent use.
type Retrier struct {
	cfg config
}

// New creates a Retrier. Defaults: 3 attempts, 100ms initial delay, 30s
// cap, ×2 growth, 10% jitter.
func New(opts ...Option) *Retrier {
	cfg := config{
		maxAttempts:  3,
		initialDelay: 100 * time.Millisecond,
		maxDelay:     30 * time.Second,
		multiplier:   2,
		jitter:       0.1,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Retrier{cfg: cfg}
}

// Do runs op until it succeeds, returns an error the policy does not retry,
// runs out of attempts or ctx ends. The returned error never carries the
// RetryableError wrapper.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) error {
	var last error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if last != nil {
				return unwrap(last)
			}
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		last = err

		if !r.shouldRetry(err) || attempt >= r.cfg.maxAttempts {
			return unwrap(err)
		}

		timer := time.NewTimer(r.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return unwrap(last)
		case <-timer.C:
		}
	}
}

func (r *Retrier) shouldRetry(err error) bool {
	if r.cfg.retryIf != nil {
		return r.cfg.retryIf(err)
	}
	return IsRetryable(err)
}

// delay is initial × multiplier^(attempt-1), capped, with ± jitter.
func (r *Retrier) delay(attempt int) time.Duration {
	d := float64(r.cfg.initialDelay) * math.Pow(r.cfg.multiplier, float64(attempt-1))
	d = math.Min(d, float64(r.cfg.maxDelay))
	if r.cfg.jitter > 0 {
		d += d * r.cfg.jitter * (rand.Float64()*2 - 1)
	}
	return time.Duration(math.Max(d, 0))
}

func unwrap(err error) error {
	if re, ok := err.(*RetryableError); ok {
		return re.Err
	}
	return err
}

// ─────────────────────────────────────────────────────────────────────────────
// Engine policies
// ─────────────────────────────────────────────────────────────────────────────

// LockRetrier retries a busy per-student lock. Contention lasts one
// cascade, so delays stay small.
func LockRetrier(maxAttempts int, initial time.Duration) *Retrier {
	return New(
		WithMaxAttempts(maxAttempts),
		WithInitialDelay(initial),
		WithMaxDelay(500*time.Millisecond),
		WithMultiplier(1.5),
		WithJitter(0.3),
	)
}

// DatabaseRetrier retries database work. retryIf decides which driver
// errors are transient (serialization failures, deadlocks); nil keeps the
// default of retrying only RetryableError.
func DatabaseRetrier(retryIf func(error) bool) *Retrier {
	return New(
		WithMaxAttempts(3),
		WithInitialDelay(50*time.Millisecond),
		WithMaxDelay(time.Second),
		WithMultiplier(2),
		WithJitter(0.05),
		WithRetryIf(retryIf),
	)
}

// ConflictRetrier re-runs a read-modify-write that lost an optimistic
// version check. conflict decides which errors mean "reload and try again".
func ConflictRetrier(conflict func(error) bool) *Retrier {
	return New(
		WithMaxAttempts(10),
		WithInitialDelay(2*time.Millisecond),
		WithMaxDelay(100*time.Millisecond),
		WithMultiplier(2),
		WithJitter(0.5),
		WithRetryIf(conflict),
	)
}
