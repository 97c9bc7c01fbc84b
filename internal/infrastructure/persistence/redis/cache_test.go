package redis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "stats:student:s1", StudentStatsKey("s1"))
	assert.Equal(t, "leaderboard:org-1", LeaderboardKey("org-1"))
	assert.Equal(t, "leaderboard:all", LeaderboardKey(""))
	assert.Equal(t, "lock:student:s1", LockKey("student:s1"))
	assert.Equal(t, "lock:student:other", LockKey("other"))
	assert.Equal(t, "progression:progress.xp_awarded", PubSubChannel("progress.xp_awarded"))
}

func TestConfigOptions_Defaults(t *testing.T) {
	opts := Config{}.options()

	assert.Equal(t, "localhost:6379", opts.Addr)
	assert.Equal(t, 3, opts.MaxRetries)
	assert.Equal(t, 5*time.Second, opts.DialTimeout)
}

func TestConfigOptions_Explicit(t *testing.T) {
	opts := Config{Host: "cache", Port: 6380, DB: 2, MaxRetries: 1, DialTimeout: time.Second}.options()

	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 1, opts.MaxRetries)
	assert.Equal(t, time.Second, opts.DialTimeout)
}
