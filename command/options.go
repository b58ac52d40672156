package command

import (
	"errors"
	"time"

	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/eventstore"
)

const (
	defaultSnapshotInterval = 100
	defaultSnapshotTimeout  = 60 * time.Second
)

var (
	// ErrInvalidSnapshotInterval is returned when a snapshot interval of zero is configured.
	ErrInvalidSnapshotInterval = errors.New("snapshot interval must be positive")

	// ErrNilStore is returned when the processor is created without a store.
	ErrNilStore = errors.New("store must not be nil")

	// ErrIncompleteDecider is returned when a decider lacks InitialState, Evolve or Decide.
	ErrIncompleteDecider = errors.New("decider must define InitialState, Evolve and Decide")
)

type config struct {
	validator        Validator
	maxAttempts      int
	baseDelay        time.Duration
	jitterFactor     float64
	snapshotInterval uint64
	snapshotTTL      time.Duration
	snapshotTimeout  time.Duration
	clock            func() time.Time
	logger           eventstore.Logger
	contextualLogger eventstore.ContextualLogger
	metricsCollector eventstore.MetricsCollector
	tracingCollector eventstore.TracingCollector
}

// Option configures a Processor.
type Option func(*config) error

// WithValidator runs every produced event through validator before it is committed.
func WithValidator(validator Validator) Option {
	return func(c *config) error {
		c.validator = validator
		return nil
	}
}

// WithRetryPolicy replaces the default of 3 attempts with 10ms base delay and 30% jitter.
func WithRetryPolicy(maxAttempts int, baseDelay time.Duration, jitterFactor float64) Option {
	return func(c *config) error {
		if maxAttempts <= 0 {
			return ErrInvalidMaxAttempts
		}

		if baseDelay < 0 {
			return ErrNegativeBaseDelay
		}

		if jitterFactor < 0.0 || jitterFactor > 1.0 {
			return ErrInvalidJitterFactor
		}

		c.maxAttempts = maxAttempts
		c.baseDelay = baseDelay
		c.jitterFactor = jitterFactor

		return nil
	}
}

// WithSnapshotInterval takes a snapshot whenever a commit crosses a multiple of interval.
func WithSnapshotInterval(interval uint64) Option {
	return func(c *config) error {
		if interval == 0 {
			return ErrInvalidSnapshotInterval
		}

		c.snapshotInterval = interval

		return nil
	}
}

// WithSnapshotTTL lets written snapshots expire. Zero keeps them forever.
func WithSnapshotTTL(ttl time.Duration) Option {
	return func(c *config) error {
		c.snapshotTTL = ttl
		return nil
	}
}

// WithSnapshotTimeout bounds each background snapshot write.
func WithSnapshotTimeout(timeout time.Duration) Option {
	return func(c *config) error {
		if timeout > 0 {
			c.snapshotTimeout = timeout
		}

		return nil
	}
}

// WithClock sets the time source used for event and snapshot timestamps.
func WithClock(clock func() time.Time) Option {
	return func(c *config) error {
		c.clock = clock
		return nil
	}
}

// WithLogger sets the logger for operational messages.
func WithLogger(logger eventstore.Logger) Option {
	return func(c *config) error {
		c.logger = logger
		return nil
	}
}

// WithContextualLogger sets a context-aware logger. It wins over WithLogger.
func WithContextualLogger(logger eventstore.ContextualLogger) Option {
	return func(c *config) error {
		c.contextualLogger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(collector eventstore.MetricsCollector) Option {
	return func(c *config) error {
		c.metricsCollector = collector
		return nil
	}
}

// WithTracing sets the tracing collector.
func WithTracing(collector eventstore.TracingCollector) Option {
	return func(c *config) error {
		c.tracingCollector = collector
		return nil
	}
}
