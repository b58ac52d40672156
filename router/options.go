package router

import (
	"context"
	"errors"
	"time"

	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/eventstore"
)

const (
	defaultRouterName    = "router"
	defaultMaxInFlight   = 16
	defaultPollInterval  = 100 * time.Millisecond
	defaultRetryDelay    = 500 * time.Millisecond
	defaultCheckInterval = 15 * time.Second
)

var (
	// ErrInvalidMaxInFlight is returned for a ceiling below one.
	ErrInvalidMaxInFlight = errors.New("max in-flight must be positive")

	// ErrInvalidInterval is returned for a non-positive poll, retry or check interval.
	ErrInvalidInterval = errors.New("interval must be positive")
)

// settings is shared by the router, the consumers and the monitor. Each reads the fields it needs.
type settings struct {
	name             string
	maxInFlight      int64
	pollInterval     time.Duration
	retryDelay       time.Duration
	checkInterval    time.Duration
	clock            func() time.Time
	logger           eventstore.Logger
	contextualLogger eventstore.ContextualLogger
	metrics          *Metrics
	onDeadLetter     func(ctx context.Context, err *eventstore.DeliveryExhaustedError)
	onDLQAlert       func(ctx context.Context, consumer string, stats QueueStats)
}

func defaultSettings() settings {
	return settings{
		name:          defaultRouterName,
		maxInFlight:   defaultMaxInFlight,
		pollInterval:  defaultPollInterval,
		retryDelay:    defaultRetryDelay,
		checkInterval: defaultCheckInterval,
		clock:         time.Now,
	}
}

func applyOptions(options []Option) (settings, error) {
	s := defaultSettings()
	for _, option := range options {
		if err := option(&s); err != nil {
			return settings{}, err
		}
	}

	return s, nil
}

// Option configures a Router, a consumer or a DLQMonitor.
type Option func(*settings) error

// WithName names the router checkpoint.
func WithName(name string) Option {
	return func(s *settings) error {
		if name != "" {
			s.name = name
		}
		return nil
	}
}

// WithMaxInFlight caps unsettled deliveries of a StandardConsumer. Receiving pauses at the cap.
func WithMaxInFlight(n int) Option {
	return func(s *settings) error {
		if n < 1 {
			return ErrInvalidMaxInFlight
		}
		s.maxInFlight = int64(n)
		return nil
	}
}

// WithPollInterval sets how long a consumer waits after finding its queue empty.
func WithPollInterval(interval time.Duration) Option {
	return func(s *settings) error {
		if interval <= 0 {
			return ErrInvalidInterval
		}
		s.pollInterval = interval
		return nil
	}
}

// WithRetryDelay sets the base delay between failed deliveries.
func WithRetryDelay(delay time.Duration) Option {
	return func(s *settings) error {
		if delay <= 0 {
			return ErrInvalidInterval
		}
		s.retryDelay = delay
		return nil
	}
}

// WithCheckInterval sets how often the DLQMonitor samples its queues.
func WithCheckInterval(interval time.Duration) Option {
	return func(s *settings) error {
		if interval <= 0 {
			return ErrInvalidInterval
		}
		s.checkInterval = interval
		return nil
	}
}

// WithClock sets the time source for enqueue timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *settings) error {
		s.clock = clock
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger eventstore.Logger) Option {
	return func(s *settings) error {
		s.logger = logger
		return nil
	}
}

// WithContextualLogger sets a context-aware logger. It wins over WithLogger.
func WithContextualLogger(logger eventstore.ContextualLogger) Option {
	return func(s *settings) error {
		s.contextualLogger = logger
		return nil
	}
}

// WithMetrics records the router signals.
func WithMetrics(metrics *Metrics) Option {
	return func(s *settings) error {
		s.metrics = metrics
		return nil
	}
}

// WithDeadLetterObserver is called whenever a consumer dead-letters a message.
func WithDeadLetterObserver(observer func(ctx context.Context, err *eventstore.DeliveryExhaustedError)) Option {
	return func(s *settings) error {
		s.onDeadLetter = observer
		return nil
	}
}

// WithDLQAlert is called by the DLQMonitor for every queue whose DLQ is not empty.
func WithDLQAlert(alert func(ctx context.Context, consumer string, stats QueueStats)) Option {
	return func(s *settings) error {
		s.onDLQAlert = alert
		return nil
	}
}
