package schema

import (
	"time"

	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/eventstore"
)

// Option configures a Governor.
type Option func(*Governor) error

// WithDefaultMode sets the mode used when a registration names none.
func WithDefaultMode(mode CompatibilityMode) Option {
	return func(g *Governor) error {
		parsed, err := ParseMode(string(mode))
		if err != nil {
			return err
		}

		g.defaultMode = parsed

		return nil
	}
}

// WithStrictMode makes Validate reject event types without a registered schema.
func WithStrictMode() Option {
	return func(g *Governor) error {
		g.strict = true
		return nil
	}
}

// WithLogger receives registrations (info) and audit lines for rejected payloads and schemas (warn).
func WithLogger(logger eventstore.Logger) Option {
	return func(g *Governor) error {
		g.logger = logger
		return nil
	}
}

// WithClock replaces time.Now for registration and audit timestamps.
func WithClock(clock func() time.Time) Option {
	return func(g *Governor) error {
		if clock != nil {
			g.clock = clock
		}

		return nil
	}
}
