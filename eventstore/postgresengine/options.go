package postgresengine

import (
	"errors"
	"time"

	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/eventstore"
)

// ErrInvalidPollInterval is returned when a change feed interval is not positive.
var ErrInvalidPollInterval = errors.New("poll interval must be positive")

// ErrInvalidGapRetention is returned when a change feed gap retention is not positive.
var ErrInvalidGapRetention = errors.New("gap retention must be positive")

// Option defines a functional option for configuring EventStore.
type Option func(*EventStore) error

// WithTableName sets the events table name.
func WithTableName(tableName string) Option {
	return func(es *EventStore) error {
		if tableName == "" {
			return eventstore.ErrEmptyTableName
		}

		es.eventTableName = tableName

		return nil
	}
}

// WithSnapshotTableName sets the snapshots table name.
func WithSnapshotTableName(tableName string) Option {
	return func(es *EventStore) error {
		if tableName == "" {
			return eventstore.ErrEmptyTableName
		}

		es.snapshotTableName = tableName

		return nil
	}
}

// WithLogger sets the logger for the EventStore.
//
// Debug level: SQL statements with execution timing
// Info level: append summaries and concurrency conflicts
// Warn level: change feed gaps that were skipped, row cleanup failures
// Error level: failures that abort an operation.
func WithLogger(logger eventstore.Logger) Option {
	return func(es *EventStore) error {
		es.logger = logger
		return nil
	}
}

// WithContextualLogger sets a context-aware logger, used for trace correlated log lines.
func WithContextualLogger(logger eventstore.ContextualLogger) Option {
	return func(es *EventStore) error {
		es.contextualLogger = logger
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

// WithTracing sets the tracing collector for the EventStore.
func WithTracing(collector eventstore.TracingCollector) Option {
	return func(es *EventStore) error {
		es.tracingCollector = collector
		return nil
	}
}

// WithPollInterval sets how often an idle change feed subscription polls for new rows.
func WithPollInterval(interval time.Duration) Option {
	return func(es *EventStore) error {
		if interval <= 0 {
			return ErrInvalidPollInterval
		}

		es.pollInterval = interval

		return nil
	}
}

// WithGapTolerance sets how long the change feed waits for a missing global position before
// moving past it.
func WithGapTolerance(tolerance time.Duration) Option {
	return func(es *EventStore) error {
		es.gapTolerance = tolerance
		return nil
	}
}

// WithGapRetention sets how long the change feed keeps re-checking positions it moved past.
// A transaction that commits within this window is still delivered, after later events.
// Values below the gap tolerance are raised to it.
func WithGapRetention(retention time.Duration) Option {
	return func(es *EventStore) error {
		if retention <= 0 {
			return ErrInvalidGapRetention
		}

		es.gapRetention = retention

		return nil
	}
}

// WithClock replaces time.Now for snapshot expiry.
func WithClock(clock func() time.Time) Option {
	return func(es *EventStore) error {
		if clock != nil {
			es.clock = clock
		}

		return nil
	}
}
