package projection

import (
	"time"

	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/eventstore"
)

type config struct {
	clock            func() time.Time
	logger           eventstore.Logger
	contextualLogger eventstore.ContextualLogger
	metricsCollector eventstore.MetricsCollector
}

// Option configures an Engine.
type Option func(*config) error

// WithClock sets the time source used to measure rebuilds.
func WithClock(clock func() time.Time) Option {
	return func(c *config) error {
		c.clock = clock
		return nil
	}
}

// WithLogger sets the logger.
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

// WithMetrics records apply and rebuild metrics.
func WithMetrics(collector eventstore.MetricsCollector) Option {
	return func(c *config) error {
		c.metricsCollector = collector
		return nil
	}
}
