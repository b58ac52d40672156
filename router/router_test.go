package router_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/eventstore"
	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/eventstore/memengine"
	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/router"
	. "github.com/convey2karthikshivashankar-cloud/nexus-sub000/testutil/helper"
)

type failingQueue struct {
	*router.MemoryQueue
	failures int
}

func (q *failingQueue) Send(ctx context.Context, msg router.Message) error {
	if q.failures > 0 {
		q.failures--
		return errors.Join(eventstore.ErrStorageUnavailable, errors.New("redis down"))
	}

	return q.MemoryQueue.Send(ctx, msg)
}

func givenRouterFixture(t *testing.T, queueNames ...string) (*memengine.EventStore, *router.MemoryLog, *router.MemoryCursorStore, []*router.MemoryQueue) {
	t.Helper()

	store, err := memengine.NewEventStore()
	require.NoError(t, err)

	queues := make([]*router.MemoryQueue, 0, len(queueNames))
	for _, name := range queueNames {
		queue, err := router.NewMemoryQueue(name, router.DefaultQueueConfig(), nil)
		require.NoError(t, err)
		queues = append(queues, queue)
	}

	return store, router.NewMemoryLog(), router.NewMemoryCursorStore(), queues
}

func newRouter(t *testing.T, store *memengine.EventStore, log *router.MemoryLog, cursors *router.MemoryCursorStore, queues ...router.Queue) *router.Router {
	t.Helper()

	r, err := router.NewRouter(store, router.NewClassifier("OrderCreated"), log, cursors, router.WithRetryDelay(time.Millisecond))
	require.NoError(t, err)

	for _, queue := range queues {
		require.NoError(t, r.AddQueue(queue))
	}

	return r
}

func visible(t *testing.T, ctx context.Context, queue router.Queue) int {
	stats, err := queue.Stats(ctx)
	require.NoError(t, err)

	return stats.Visible
}

func Test_Router_SendsCriticalEventsToTheLog_And_FansStandardEventsOut(t *testing.T) {
	// setup
	ctx := TestContext(t)
	store, log, cursors, queues := givenRouterFixture(t, "projection", "notifications")
	r := newRouter(t, store, log, cursors, queues[0], queues[1])
	fakeClock := time.Unix(0, 0).UTC()

	// arrange
	aggregateID := GivenUniqueAggregateID(t, "order")
	committed, err := store.Append(ctx, aggregateID, 0, []eventstore.StorableEvent{
		FixtureEvent(t, "OrderCreated", `{}`, fakeClock),
		FixtureEvent(t, "ItemAdded", `{"sku":"A"}`, fakeClock),
		FixtureEvent(t, "ItemAdded", `{"sku":"B"}`, fakeClock),
	})
	require.NoError(t, err)

	// act
	stop := runInBackground(t, r.Run)

	// assert
	Eventually(t, func() bool {
		position, err := cursors.Get(ctx, "router", "$all")
		return err == nil && position == committed[2].Position
	}, "router should checkpoint the last routed position")
	require.NoError(t, stop())

	assert.Equal(t, 1, log.Len())
	assert.Equal(t, 2, visible(t, ctx, queues[0]))
	assert.Equal(t, 2, visible(t, ctx, queues[1]))

	delivery, err := queues[0].Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, committed[1].EventID, delivery.Message.ID)
}

func Test_Router_ResumesAfterTheCheckpoint(t *testing.T) {
	// setup
	ctx := TestContext(t)
	store, log, cursors, queues := givenRouterFixture(t, "projection")
	fakeClock := time.Unix(0, 0).UTC()
	aggregateID := GivenUniqueAggregateID(t, "order")

	// arrange
	first := GivenEventsWereAppended(t, ctx, store, aggregateID, FixtureEvent(t, "ItemAdded", `{}`, fakeClock))
	stop := runInBackground(t, newRouter(t, store, log, cursors, queues[0]).Run)
	Eventually(t, func() bool { return visible(t, ctx, queues[0]) == 1 })
	require.NoError(t, stop())

	fresh, err := router.NewMemoryQueue("projection", router.DefaultQueueConfig(), nil)
	require.NoError(t, err)
	second := GivenEventsWereAppended(t, ctx, store, aggregateID, FixtureEvent(t, "ItemAdded", `{}`, fakeClock))

	// act
	stop = runInBackground(t, newRouter(t, store, log, cursors, fresh).Run)

	// assert
	Eventually(t, func() bool { return visible(t, ctx, fresh) == 1 })
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, stop())

	delivery, err := fresh.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, second[0].EventID, delivery.Message.ID)
	assert.NotEqual(t, first[0].EventID, delivery.Message.ID)
	assert.Zero(t, visible(t, ctx, fresh), "the event before the checkpoint is not routed again")
}

func Test_Router_RetriesAFailedSend_WithoutDuplicating(t *testing.T) {
	// setup
	ctx := TestContext(t)
	logger, logSpy := NewSpyLogger()
	store, log, cursors, queues := givenRouterFixture(t, "projection", "notifications")
	flaky := &failingQueue{MemoryQueue: queues[1], failures: 2}

	r, err := router.NewRouter(store, router.NewClassifier(), log, cursors,
		router.WithRetryDelay(time.Millisecond), router.WithLogger(logger))
	require.NoError(t, err)
	require.NoError(t, r.AddQueue(queues[0]))
	require.NoError(t, r.AddQueue(flaky))

	// arrange
	committed := GivenEventsWereAppended(t, ctx, store, GivenUniqueAggregateID(t, "order"),
		FixtureEvent(t, "ItemAdded", `{}`, time.Unix(0, 0).UTC()))

	// act
	stop := runInBackground(t, r.Run)

	// assert
	Eventually(t, func() bool {
		position, err := cursors.Get(ctx, "router", "$all")
		return err == nil && position == committed[0].Position
	})
	require.NoError(t, stop())

	assert.Equal(t, 1, visible(t, ctx, queues[0]), "the healthy queue keeps a single copy")
	assert.Equal(t, 1, visible(t, ctx, queues[1]))
	assert.Equal(t, 2, logSpy.CountLogs("routing event failed, retrying"))
}

func Test_Router_AddQueue_RejectsDuplicateNames(t *testing.T) {
	store, log, cursors, queues := givenRouterFixture(t, "projection")
	r := newRouter(t, store, log, cursors, queues[0])

	err := r.AddQueue(queues[0])

	assert.ErrorIs(t, err, router.ErrDuplicateQueue)

	queue, ok := r.Queue("projection")
	assert.True(t, ok)
	assert.Same(t, queues[0], queue)
	assert.Len(t, r.Queues(), 1)
}

func Test_NewKafkaLog_When_BrokersAreMissing_ReturnsError(t *testing.T) {
	_, err := router.NewKafkaLog(" , ", "nexus.critical")

	assert.ErrorIs(t, err, router.ErrNoBrokers)
}
