package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dojo-hub/progression-engine/pkg/circuitbreaker"
	"github.com/dojo-hub/progression-engine/pkg/logger"
	"github.com/dojo-hub/progression-engine/pkg/retry"
)

// ErrLockHeld is returned by a RemoteLocker when another owner holds the key.
var ErrLockHeld = errors.New("lock: key is held by another owner")

// RemoteLocker is a distributed lock with token-checked release.
type RemoteLocker interface {
	// Acquire returns ErrLockHeld when the key is taken.
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Release(ctx context.Context, key, token string) error
}

// Config tunes the remote layer.
type Config struct {
	// TTL bounds how long a crashed holder blocks other processes.
	TTL time.Duration

	// MaxAttempts and RetryDelay drive acquisition retries while the key is held.
	MaxAttempts int
	RetryDelay  time.Duration

	// BreakerTimeout is how long the breaker stays open before probing Redis again.
	BreakerTimeout time.Duration
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		TTL:            10 * time.Second,
		MaxAttempts:    20,
		RetryDelay:     25 * time.Millisecond,
		BreakerTimeout: 15 * time.Second,
	}
}

// Layered takes the local keyed mutex first and then, when configured, the
// remote lock. If the remote store is unreachable or the breaker is open the
// local lock alone is kept and a warning is logged. A key still held by
// another process after all retries is an error.
type Layered struct {
	local   *KeyedMutex
	remote  RemoteLocker
	ttl     time.Duration
	retrier *retry.Retrier
	breaker *circuitbreaker.CircuitBreaker
	log     *logger.Logger
}

// NewLayered creates a Layered locker. remote may be nil.
func NewLayered(remote RemoteLocker, cfg Config, log *logger.Logger) *Layered {
	def := DefaultConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = def.BreakerTimeout
	}
	if log == nil {
		log = logger.Nop()
	}
	log = log.With(logger.Component("student_lock"))

	return &Layered{
		local:   NewKeyedMutex(),
		remote:  remote,
		ttl:     cfg.TTL,
		retrier: retry.LockRetrier(cfg.MaxAttempts, cfg.RetryDelay),
		breaker: circuitbreaker.RedisLockBreaker(cfg.BreakerTimeout, func(name string, from, to circuitbreaker.State) {
			log.Warn("lock breaker state changed",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		}),
		log: log,
	}
}

// Lock implements the engine's Locker.
func (l *Layered) Lock(ctx context.Context, key string) (func(), error) {
	unlockLocal, err := l.local.Lock(ctx, key)
	if err != nil {
		return nil, err
	}
	if l.remote == nil {
		return unlockLocal, nil
	}

	var token string
	var held error
	err = l.breaker.ExecuteWithFallback(ctx, func(ctx context.Context) error {
		err := l.retrier.Do(ctx, func(ctx context.Context) error {
			t, err := l.remote.Acquire(ctx, key, l.ttl)
			if errors.Is(err, ErrLockHeld) {
				return retry.Retryable(err)
			}
			token = t
			return err
		})
		// Contention is not a Redis failure and must not trip the breaker.
		if errors.Is(err, ErrLockHeld) {
			held = err
			return nil
		}
		return err
	}, func(cause error) error {
		l.log.Warn("remote lock bypassed", logger.String("key", key), logger.Err(cause))
		return nil
	})

	switch {
	case held != nil:
		unlockLocal()
		return nil, fmt.Errorf("lock %s: %w", key, held)
	case err == nil:
	case ctx.Err() != nil:
		unlockLocal()
		return nil, ctx.Err()
	default:
		l.log.Warn("remote lock unavailable, using local lock only", logger.String("key", key), logger.Err(err))
	}

	if token == "" {
		return unlockLocal, nil
	}
	return func() {
		// Release with a fresh context so a cancelled request still frees the key.
		rctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := l.remote.Release(rctx, key, token); err != nil {
			l.log.Warn("remote lock release failed", logger.String("key", key), logger.Err(err))
		}
		unlockLocal()
	}, nil
}
