package messaging

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studybuddy/progress-engine/internal/domain/shared"
	"github.com/studybuddy/progress-engine/internal/infrastructure/persistence/redis"
	"github.com/studybuddy/progress-engine/pkg/circuitbreaker"
	"github.com/studybuddy/progress-engine/pkg/retry"
)

var at = time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)

func TestEventBus_DeliversTypedThenGlobal(t *testing.T) {
	bus := NewInMemoryEventBus(DefaultInMemoryEventBusConfig())
	defer bus.Close()

	var order []string
	require.NoError(t, bus.Subscribe(shared.EventBadgeEarned, func(shared.Event) error {
		order = append(order, "typed")
		return nil
	}))
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		order = append(order, "all")
		return nil
	}))

	require.NoError(t, bus.Publish(shared.NewBadgeEarnedEvent("u1", "first-quiz", "First Quiz", "d", at)))
	require.NoError(t, bus.Publish(shared.NewStreakStartedEvent("u1", 1, 1, at)))

	assert.Equal(t, []string{"typed", "all", "all"}, order)
}

func TestEventBus_SyncReturnsHandlerErrors(t *testing.T) {
	bus := NewInMemoryEventBus(DefaultInMemoryEventBusConfig())
	defer bus.Close()

	boom := errors.New("sink down")
	var delivered int
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { return boom }))
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		delivered++
		return nil
	}))
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { panic("bad handler") }))

	err := bus.Publish(shared.NewStreakResetEvent("u1", 4, 9, at))
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "bad handler")
	assert.Equal(t, 1, delivered)
}

func TestEventBus_AsyncCloseWaitsForHandlers(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: true, WorkerPoolSize: 2})

	var count int32
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&count, 1)
		return nil
	}))

	for i := 0; i < 5; i++ {
		require.NoError(t, bus.Publish(shared.NewStreakIncreasedEvent("u1", i+1, i+1, at)))
	}
	require.NoError(t, bus.Close())

	assert.Equal(t, int32(5), atomic.LoadInt32(&count))
	assert.ErrorIs(t, bus.Publish(shared.NewStreakStartedEvent("u1", 1, 1, at)), ErrEventBusClosed)
	assert.ErrorIs(t, bus.SubscribeAll(func(shared.Event) error { return nil }), ErrEventBusClosed)
}

func TestNewNotification_Messages(t *testing.T) {
	n := NewNotification(shared.NewStreakIncreasedEvent("u1", 4, 6, at))
	assert.Equal(t, "u1", n.UserID)
	assert.Equal(t, "Streak increased to 4", n.Message)
	assert.NotEmpty(t, n.ID)
	assert.Equal(t, at, n.CreatedAt)

	n = NewNotification(shared.NewBadgeEarnedEvent("u1", "fire-starter", "Fire Starter", "Reach a 5-day streak", at))
	assert.Equal(t, "Badge earned", n.Title)
	assert.Contains(t, n.Message, "Fire Starter")
	assert.Equal(t, "fire-starter", n.Fields["badge_id"])

	n = NewNotification(shared.NewReminderDueEvent("g1", "s1", "Graphs", at.Add(time.Hour), false, at))
	assert.Equal(t, "g1", n.GroupID)
	assert.Empty(t, n.UserID)
	assert.Equal(t, `"Graphs" starts soon, at 10:00`, n.Message)
}

func TestFeed_RecentNewestFirstAndCapped(t *testing.T) {
	feed := NewFeed(3)
	for i := 1; i <= 5; i++ {
		require.NoError(t, feed.Handle(shared.NewStreakIncreasedEvent("u1", i, i, at)))
	}
	require.NoError(t, feed.Handle(shared.NewReminderDueEvent("g1", "s1", "Graphs", at, true, at)))

	recent := feed.Recent(UserRecipient("u1"), 0)
	require.Len(t, recent, 3)
	assert.Equal(t, "Streak increased to 5", recent[0].Message)
	assert.Equal(t, "Streak increased to 3", recent[2].Message)

	assert.Len(t, feed.Recent(UserRecipient("u1"), 2), 2)
	assert.Len(t, feed.Recent(GroupRecipient("g1"), 10), 1)
	assert.Empty(t, feed.Recent(UserRecipient("nobody"), 10))
}

func TestFeed_ConcurrentHandle(t *testing.T) {
	feed := NewFeed(1000)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = feed.Handle(shared.NewStreakStartedEvent("u1", 1, 1, at))
		}()
	}
	wg.Wait()
	assert.Len(t, feed.Recent(UserRecipient("u1"), 0), 20)
}

func TestPubSubSink_PublishesToRecipientChannel(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()

	pub := redis.NewPublisher(client)
	sub := pub.Subscribe(context.Background(), redis.GroupChannel("g1"))
	defer sub.Close()
	_, err := sub.Receive(context.Background())
	require.NoError(t, err)

	sink := NewPubSubSink(pub, redis.UserChannel, redis.GroupChannel)
	require.NoError(t, sink.Handle(shared.NewReminderDueEvent("g1", "s1", "Graphs", at, false, at)))

	msg, err := sub.ReceiveMessage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, redis.GroupChannel("g1"), msg.Channel)
	assert.Contains(t, msg.Payload, `"type":"reminder.due"`)
}

// flakyPublisher fails its first failures calls, or every call when
// failures is 0.
type flakyPublisher struct {
	calls    int
	failures int
	err      error
}

func (p *flakyPublisher) Publish(context.Context, string, interface{}) error {
	p.calls++
	if p.failures == 0 || p.calls <= p.failures {
		return p.err
	}
	return nil
}

var fastRetry = []retry.Option{retry.WithInitialDelay(time.Millisecond), retry.WithJitter(0)}

func TestPubSubSink_RetriesTransientFailure(t *testing.T) {
	next := &flakyPublisher{failures: 1, err: errors.New("i/o timeout")}
	sink := NewPubSubSink(next, redis.UserChannel, redis.GroupChannel, fastRetry...)

	require.NoError(t, sink.Handle(shared.NewStreakStartedEvent("u1", 1, 1, at)))
	assert.Equal(t, 2, next.calls)
}

func TestGuardedPublisher_StopsCallingAfterFailures(t *testing.T) {
	next := &flakyPublisher{err: errors.New("connection refused")}
	breaker := circuitbreaker.New("pubsub", circuitbreaker.WithFailureThreshold(2), circuitbreaker.WithTimeout(time.Hour))
	sink := NewPubSubSink(NewGuardedPublisher(next, breaker), redis.UserChannel, redis.GroupChannel, fastRetry...)

	// Two attempts open the breaker; the third is rejected and not retried.
	event := shared.NewStreakStartedEvent("u1", 1, 1, at)
	assert.ErrorIs(t, sink.Handle(event), circuitbreaker.ErrCircuitOpen)
	assert.Equal(t, circuitbreaker.StateOpen, breaker.State())
	assert.Equal(t, 2, next.calls)

	assert.ErrorIs(t, sink.Handle(event), circuitbreaker.ErrCircuitOpen)
	assert.Equal(t, 2, next.calls)
}

func TestLogSink_NeverFails(t *testing.T) {
	sink := NewLogSink(nil)
	assert.NoError(t, sink.Handle(shared.NewStreakResetEvent("u1", 3, 3, at)))
}
