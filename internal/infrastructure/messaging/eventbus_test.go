package messaging

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dojo-hub/progression-engine/internal/domain/shared"
)

func xpEvent(org string, total int) shared.XPAwardedEvent {
	return shared.NewXPAwardedEvent("stu-1", org, 50, total, 2, "attendance", "ref-1")
}

func TestInMemoryEventBus_SyncDelivery(t *testing.T) {
	bus := NewInMemoryEventBus(DefaultInMemoryEventBusConfig())
	defer bus.Close()

	var typed, all int
	require.NoError(t, bus.Subscribe(shared.EventXPAwarded, func(shared.Event) error { typed++; return nil }))
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { all++; return nil }))

	require.NoError(t, bus.Publish(xpEvent("org", 100)))
	require.NoError(t, bus.Publish(shared.NewAchievementUnlockedEvent("stu-1", "ach-1", "First", 50)))

	assert.Equal(t, 1, typed)
	assert.Equal(t, 2, all)

	m := bus.Metrics()
	assert.Equal(t, int64(2), m.Published)
	assert.Equal(t, int64(3), m.Executions)
}

func TestInMemoryEventBus_HandlerFailuresDoNotReachPublisher(t *testing.T) {
	bus := NewInMemoryEventBus(DefaultInMemoryEventBusConfig())
	defer bus.Close()

	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { return errors.New("boom") }))
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { panic("bad handler") }))

	assert.NoError(t, bus.Publish(xpEvent("org", 100)))
	assert.Equal(t, int64(2), bus.Metrics().Failures)
}

func TestInMemoryEventBus_AsyncDelivery(t *testing.T) {
	cfg := DefaultInMemoryEventBusConfig()
	cfg.AsyncMode = true
	cfg.WorkerPoolSize = 4
	bus := NewInMemoryEventBus(cfg)

	var n int32
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { atomic.AddInt32(&n, 1); return nil }))
	for i := 0; i < 50; i++ {
		require.NoError(t, bus.Publish(xpEvent("org", i)))
	}
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&n) == 50 }, time.Second, 5*time.Millisecond)
	require.NoError(t, bus.Close())

	assert.ErrorIs(t, bus.Publish(xpEvent("org", 1)), ErrEventBusClosed)
}

type recordingRanking struct {
	mu    sync.Mutex
	calls int
	fail  int
	last  map[string]int
}

func (r *recordingRanking) Record(_ context.Context, org, student string, total int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.fail > 0 {
		r.fail--
		return errors.New("redis timeout")
	}
	if r.last == nil {
		r.last = make(map[string]int)
	}
	r.last[org+"/"+student] = total
	return nil
}

func TestRankingProjector(t *testing.T) {
	bus := NewInMemoryEventBus(DefaultInMemoryEventBusConfig())
	defer bus.Close()

	ranking := &recordingRanking{fail: 1}
	require.NoError(t, NewRankingProjector(ranking, nil).Register(bus))

	require.NoError(t, bus.Publish(xpEvent("org-a", 340)))
	assert.Equal(t, 340, ranking.last["org-a/stu-1"])
	assert.Equal(t, 2, ranking.calls, "one transient failure is retried")

	require.NoError(t, bus.Publish(xpEvent("", 500)))
	assert.Equal(t, 2, ranking.calls, "events without an organization are skipped")
}

type capturePublisher struct {
	channels []string
	messages []interface{}
}

func (c *capturePublisher) Publish(_ context.Context, channel string, msg interface{}) error {
	c.channels = append(c.channels, channel)
	c.messages = append(c.messages, msg)
	return nil
}

func TestForwarder(t *testing.T) {
	bus := NewInMemoryEventBus(DefaultInMemoryEventBusConfig())
	defer bus.Close()

	pub := &capturePublisher{}
	require.NoError(t, NewForwarder(pub, func(t string) string { return "pubsub:" + t }, nil).Register(bus))
	require.NoError(t, bus.Publish(xpEvent("org", 120)))

	require.Len(t, pub.channels, 1)
	assert.Equal(t, "pubsub:"+string(shared.EventXPAwarded), pub.channels[0])

	env, ok := pub.messages[0].(envelope)
	require.True(t, ok)
	assert.Equal(t, "stu-1", env.AggregateID)
	assert.Equal(t, string(shared.EventXPAwarded), env.Type)
}
