package router_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/eventstore"
	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/router"
	. "github.com/convey2karthikshivashankar-cloud/nexus-sub000/testutil/helper"
)

// runInBackground starts run and returns a stop func that cancels it and waits for it to return.
func runInBackground(t *testing.T, run func(ctx context.Context) error) (stop func() error) {
	ctx, cancel := context.WithCancel(TestContext(t))
	done := make(chan error, 1)

	go func() { done <- run(ctx) }()

	var once sync.Once
	var result error
	stop = func() error {
		once.Do(func() {
			cancel()
			result = <-done
		})
		return result
	}
	t.Cleanup(func() { _ = stop() })

	return stop
}

func Test_StandardConsumer_AcksHandledMessages(t *testing.T) {
	// setup
	ctx := TestContext(t)
	queue, err := router.NewMemoryQueue("projection", router.DefaultQueueConfig(), nil)
	require.NoError(t, err)

	var handled sync.Map
	consumer, err := router.NewStandardConsumer(queue, func(_ context.Context, event eventstore.Event) error {
		handled.Store(event.EventID, true)
		return nil
	}, router.WithPollInterval(5*time.Millisecond))
	require.NoError(t, err)

	// arrange
	events := []eventstore.Event{givenEvent(t, "ItemAdded", 1), givenEvent(t, "ItemAdded", 2), givenEvent(t, "ItemAdded", 3)}
	for _, event := range events {
		require.NoError(t, queue.Send(ctx, router.NewMessage(event, time.Now())))
	}

	// act
	stop := runInBackground(t, consumer.Run)

	// assert
	Eventually(t, func() bool {
		stats, err := queue.Stats(ctx)
		return err == nil && stats == router.QueueStats{}
	}, "all messages should be acked")

	for _, event := range events {
		_, ok := handled.Load(event.EventID)
		assert.True(t, ok)
	}

	assert.NoError(t, stop())
}

func Test_StandardConsumer_When_HandlerAlwaysFails_DeadLettersAfterMaxAttempts(t *testing.T) {
	// setup
	ctx := TestContext(t)
	logger, logSpy := NewSpyLogger()
	queue, err := router.NewMemoryQueue("projection", router.QueueConfig{VisibilityTimeout: time.Second, MaxAttempts: 5}, nil)
	require.NoError(t, err)

	var calls atomic.Int32
	exhausted := make(chan *eventstore.DeliveryExhaustedError, 2)

	consumer, err := router.NewStandardConsumer(queue, func(context.Context, eventstore.Event) error {
		calls.Add(1)
		return errors.New("projection store down")
	},
		router.WithPollInterval(time.Millisecond),
		router.WithRetryDelay(time.Millisecond),
		router.WithLogger(logger),
		router.WithDeadLetterObserver(func(_ context.Context, err *eventstore.DeliveryExhaustedError) {
			exhausted <- err
		}),
	)
	require.NoError(t, err)

	// arrange
	event := givenEvent(t, "ItemAdded", 1)
	require.NoError(t, queue.Send(ctx, router.NewMessage(event, time.Now())))

	// act
	stop := runInBackground(t, consumer.Run)

	// assert
	var got *eventstore.DeliveryExhaustedError
	select {
	case got = <-exhausted:
	case <-ctx.Done():
		t.Fatal("message was never dead-lettered")
	}

	require.NoError(t, stop())

	assert.Equal(t, "projection", got.Consumer)
	assert.Equal(t, event.EventID, got.EventID)
	assert.Equal(t, 5, got.Attempts)
	assert.ErrorIs(t, got, eventstore.ErrDeliveryExhausted)
	assert.Equal(t, int32(5), calls.Load())
	assert.Empty(t, exhausted, "a message is dead-lettered only once")

	deadLetters, err := queue.DeadLetters(ctx, 0)
	require.NoError(t, err)
	require.Len(t, deadLetters, 1)
	assert.Equal(t, event, deadLetters[0].Message.Event)

	stats, err := queue.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Visible+stats.InFlight)

	assert.Equal(t, 5, logSpy.CountLogs("message handler failed"))
	assert.True(t, logSpy.HasLog(slog.LevelError, "message moved to dead-letter queue"))
}

func Test_StandardConsumer_StopsReceivingAtMaxInFlight(t *testing.T) {
	// setup
	ctx := TestContext(t)
	queue, err := router.NewMemoryQueue("projection", router.DefaultQueueConfig(), nil)
	require.NoError(t, err)

	release := make(chan struct{})
	var started atomic.Int32

	consumer, err := router.NewStandardConsumer(queue, func(ctx context.Context, _ eventstore.Event) error {
		started.Add(1)
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}, router.WithMaxInFlight(2), router.WithPollInterval(time.Millisecond))
	require.NoError(t, err)

	// arrange
	for version := uint64(1); version <= 5; version++ {
		require.NoError(t, queue.Send(ctx, router.NewMessage(givenEvent(t, "ItemAdded", version), time.Now())))
	}

	// act
	stop := runInBackground(t, consumer.Run)

	// assert
	Eventually(t, func() bool { return consumer.InFlight() == 2 })
	time.Sleep(20 * time.Millisecond)

	stats, err := queue.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.InFlight, "only the in-flight ceiling is received")
	assert.Equal(t, 3, stats.Visible)
	assert.Equal(t, int32(2), started.Load())

	close(release)

	Eventually(t, func() bool {
		stats, err := queue.Stats(ctx)
		return err == nil && stats == router.QueueStats{}
	}, "remaining messages should be consumed once capacity frees up")
	assert.Equal(t, int32(5), started.Load())
	assert.NoError(t, stop())
}

func Test_StandardConsumer_When_StoppedMidDelivery_LeavesMessageForRedelivery(t *testing.T) {
	// setup
	ctx := TestContext(t)
	clock := newFakeClock()
	queue := newMemoryQueue(t, clock)

	entered := make(chan struct{})
	consumer, err := router.NewStandardConsumer(queue, func(ctx context.Context, _ eventstore.Event) error {
		close(entered)
		<-ctx.Done()
		return ctx.Err()
	}, router.WithPollInterval(time.Millisecond))
	require.NoError(t, err)

	// arrange
	require.NoError(t, queue.Send(ctx, router.NewMessage(givenEvent(t, "ItemAdded", 1), clock.Now())))

	// act
	stop := runInBackground(t, consumer.Run)
	<-entered
	require.NoError(t, stop())

	// assert
	stats, err := queue.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.InFlight)

	clock.Advance(router.DefaultVisibilityTimeout)
	delivery, err := queue.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, delivery.Attempt)
}

func Test_CriticalConsumer_SkipsEventsAtOrBelowTheCursor(t *testing.T) {
	// setup
	ctx := TestContext(t)
	log := router.NewMemoryLog()
	cursors := router.NewMemoryCursorStore()

	var mu sync.Mutex
	var seen []uint64

	consumer, err := router.NewCriticalConsumer("projection", log, cursors, func(_ context.Context, event eventstore.Event) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, event.Version)
		return nil
	})
	require.NoError(t, err)

	// arrange
	require.NoError(t, cursors.Advance(ctx, "projection", "order-1", 2))
	v1, v2, v3 := givenEvent(t, "OrderCreated", 1), givenEvent(t, "OrderCreated", 2), givenEvent(t, "OrderCancelled", 3)
	for _, event := range []eventstore.Event{v1, v2, v3, v3} {
		require.NoError(t, log.Publish(ctx, event))
	}

	// act
	stop := runInBackground(t, consumer.Run)

	// assert
	Eventually(t, func() bool {
		cursor, err := cursors.Get(ctx, "projection", "order-1")
		return err == nil && cursor == 3
	})
	log.Close()
	require.NoError(t, stop())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []uint64{3}, seen)
}

func Test_CriticalConsumer_RetriesAFailingHandlerInOrder(t *testing.T) {
	// setup
	ctx := TestContext(t)
	logger, logSpy := NewSpyLogger()
	log := router.NewMemoryLog()
	cursors := router.NewMemoryCursorStore()

	var failures atomic.Int32
	var mu sync.Mutex
	var seen []uint64

	consumer, err := router.NewCriticalConsumer("projection", log, cursors, func(_ context.Context, event eventstore.Event) error {
		if event.Version == 1 && failures.Add(1) <= 2 {
			return errors.New("transient")
		}
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, event.Version)
		return nil
	}, router.WithRetryDelay(time.Millisecond), router.WithLogger(logger))
	require.NoError(t, err)

	// arrange
	require.NoError(t, log.Publish(ctx, givenEvent(t, "OrderCreated", 1)))
	require.NoError(t, log.Publish(ctx, givenEvent(t, "OrderCancelled", 2)))

	// act
	stop := runInBackground(t, consumer.Run)

	// assert
	Eventually(t, func() bool {
		cursor, err := cursors.Get(ctx, "projection", "order-1")
		return err == nil && cursor == 2
	})
	require.NoError(t, stop())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []uint64{1, 2}, seen)
	assert.Equal(t, 2, logSpy.CountLogs("critical event handler failed, retrying"))
}

func Test_CriticalConsumer_ResumesFromTheCommittedOffset(t *testing.T) {
	// setup
	ctx := TestContext(t)
	log := router.NewMemoryLog()
	cursors := router.NewMemoryCursorStore()

	var handled atomic.Int32
	handler := func(context.Context, eventstore.Event) error {
		handled.Add(1)
		return nil
	}

	first, err := router.NewCriticalConsumer("projection", log, cursors, handler)
	require.NoError(t, err)

	// arrange
	require.NoError(t, log.Publish(ctx, givenEvent(t, "OrderCreated", 1)))
	stop := runInBackground(t, first.Run)
	Eventually(t, func() bool { return handled.Load() == 1 })
	require.NoError(t, stop())

	require.NoError(t, log.Publish(ctx, givenEvent(t, "OrderCancelled", 2)))

	// act
	second, err := router.NewCriticalConsumer("projection", log, cursors, handler)
	require.NoError(t, err)
	stop = runInBackground(t, second.Run)

	// assert
	Eventually(t, func() bool { return handled.Load() == 2 })
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(2), handled.Load())
	require.NoError(t, stop())
}

func Test_NewStandardConsumer_When_OptionIsInvalid_ReturnsError(t *testing.T) {
	queue, err := router.NewMemoryQueue("projection", router.DefaultQueueConfig(), nil)
	require.NoError(t, err)

	_, err = router.NewStandardConsumer(queue, nil, router.WithMaxInFlight(0))
	assert.ErrorIs(t, err, router.ErrInvalidMaxInFlight)

	_, err = router.NewStandardConsumer(queue, nil, router.WithPollInterval(0))
	assert.ErrorIs(t, err, router.ErrInvalidInterval)
}
