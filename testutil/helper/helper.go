// Package helper provides arrange/act helpers shared by the package tests.
package helper

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/eventstore"
)

// DefaultTimeout bounds every test context.
const DefaultTimeout = 5 * time.Second

// GivenUniqueID returns a fresh UUIDv7.
func GivenUniqueID(t testing.TB) uuid.UUID {
	id, err := uuid.NewV7()
	assert.NoError(t, err, "error in arranging test data")

	return id
}

// GivenUniqueAggregateID returns a fresh aggregate id with a readable prefix.
func GivenUniqueAggregateID(t testing.TB, prefix string) string {
	return prefix + "-" + GivenUniqueID(t).String()
}

// TestContext returns a context bounded by DefaultTimeout that is cancelled with the test.
func TestContext(t testing.TB) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
	t.Cleanup(cancel)

	return ctx
}

// FixtureEvent builds a StorableEvent or fails the test.
func FixtureEvent(t testing.TB, eventType string, payloadJSON string, fakeClock time.Time) eventstore.StorableEvent {
	event, err := eventstore.BuildStorableEvent(
		eventType,
		fakeClock,
		[]byte(payloadJSON),
		eventstore.Metadata{CorrelationID: "test-correlation", CausationID: "test-causation"},
	)
	require.NoError(t, err, "error in arranging test data")

	return event
}

// FixtureNumberedEvents builds n events of the given type whose payload carries their index.
func FixtureNumberedEvents(t testing.TB, eventType string, n int, fakeClock time.Time) []eventstore.StorableEvent {
	events := make([]eventstore.StorableEvent, 0, n)
	for i := 0; i < n; i++ {
		fakeClock = fakeClock.Add(time.Second)
		events = append(events, FixtureEvent(t, eventType, fmt.Sprintf(`{"n":%d}`, i+1), fakeClock))
	}

	return events
}

// GivenEventsWereAppended appends the events one by one at the aggregate's current version.
func GivenEventsWereAppended(
	t testing.TB,
	ctx context.Context,
	store eventstore.AggregateStore,
	aggregateID string,
	events ...eventstore.StorableEvent,
) []eventstore.Event {

	committed := make([]eventstore.Event, 0, len(events))

	for _, event := range events {
		current, err := store.Version(ctx, aggregateID)
		require.NoError(t, err, "error in arranging test data")

		appended, err := store.Append(ctx, aggregateID, current, []eventstore.StorableEvent{event})
		require.NoError(t, err, "error in arranging test data")

		committed = append(committed, appended...)
	}

	return committed
}

// ReadAllEvents collects the full stream of one aggregate.
func ReadAllEvents(t testing.TB, ctx context.Context, store eventstore.AggregateStore, aggregateID string) []eventstore.Event {
	events, err := eventstore.Collect(store.ReadEvents(ctx, aggregateID))
	require.NoError(t, err, "error reading events")

	return events
}

// Versions extracts the versions of the given events.
func Versions(events []eventstore.Event) []uint64 {
	versions := make([]uint64, 0, len(events))
	for _, event := range events {
		versions = append(versions, event.Version)
	}

	return versions
}

// Eventually polls condition until it holds or the timeout elapses.
func Eventually(t testing.TB, condition func() bool, msgAndArgs ...any) {
	assert.Eventually(t, condition, 3*time.Second, 10*time.Millisecond, msgAndArgs...)
}
