package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/dojo-hub/progression-engine/internal/infrastructure/lock"
)

// releaseScript deletes the key only while it still holds the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// StudentLock is a SET NX PX lock with token-checked release. It implements
// lock.RemoteLocker.
type StudentLock struct {
	cache *Cache
}

var _ lock.RemoteLocker = (*StudentLock)(nil)

// NewStudentLock creates a new StudentLock.
func NewStudentLock(cache *Cache) *StudentLock {
	return &StudentLock{cache: cache}
}

// Acquire takes lock:<key> for ttl. Returns lock.ErrLockHeld when taken.
func (l *StudentLock) Acquire(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if key == "" {
		return "", ErrCacheKeyEmpty
	}
	if ttl <= 0 {
		ttl = TTLDistributedLock
	}

	token := uuid.NewString()
	ok, err := l.cache.Client().SetNX(ctx, LockKey(key), token, ttl).Result()
	if err != nil {
		return "", fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return "", lock.ErrLockHeld
	}
	return token, nil
}

// Release frees the key if token still owns it. An expired or stolen lock is
// not an error.
func (l *StudentLock) Release(ctx context.Context, key, token string) error {
	if err := releaseScript.Run(ctx, l.cache.Client(), []string{LockKey(key)}, token).Err(); err != nil {
		return fmt.Errorf("release %s: %w", key, err)
	}
	return nil
}
