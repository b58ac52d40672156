package memengine

import (
	"errors"
	"time"

	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/eventstore"
)

// ErrNilClock is returned when WithClock receives nil.
var ErrNilClock = errors.New("clock must not be nil")

// Option defines a functional option for configuring EventStore.
type Option func(*EventStore) error

// WithLogger sets the logger for the EventStore.
//
// Debug level: per-event details of appends
// Info level: append summaries and concurrency conflicts.
func WithLogger(logger eventstore.Logger) Option {
	return func(es *EventStore) error {
		es.logger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector for the EventStore.
func WithMetrics(collector eventstore.MetricsCollector) Option {
	return func(es *EventStore) error {
		es.metricsCollector = collector
		return nil
	}
}

// WithClock replaces time.Now, used to stamp events and to expire snapshots.
func WithClock(clock func() time.Time) Option {
	return func(es *EventStore) error {
		if clock == nil {
			return ErrNilClock
		}

		es.clock = clock

		return nil
	}
}
