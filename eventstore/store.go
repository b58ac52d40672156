package eventstore

import (
	"context"
	"iter"
)

const DefaultReadPageSize = 200

// AggregateStore is the durable append-only log plus snapshot store.
//
// Append is a compare-and-swap on the aggregate's highest version: it commits all events
// or none, and returns a *ConflictError when expectedVersion is stale. Appends for the same
// aggregate serialize through that check; appends for different aggregates run in parallel.
type AggregateStore interface {
	Append(ctx context.Context, aggregateID string, expectedVersion uint64, events []StorableEvent) ([]Event, error)
	ReadEvents(ctx context.Context, aggregateID string, options ...ReadOption) iter.Seq2[Event, error]
	ReadAll(ctx context.Context, fromPosition uint64) iter.Seq2[Event, error]
	Version(ctx context.Context, aggregateID string) (uint64, error)
	ReadLatestSnapshot(ctx context.Context, aggregateID string) (*Snapshot, error)
	PutSnapshot(ctx context.Context, snapshot Snapshot) error
	ChangeFeed
}

// ChangeFeed pushes committed events to internal consumers such as the event router.
type ChangeFeed interface {
	// Subscribe starts a subscription yielding events with a global position greater than fromPosition.
	Subscribe(ctx context.Context, fromPosition uint64) (Subscription, error)
}

// Subscription is a blocking pull over the change feed. Events arrive in commit order per aggregate.
type Subscription interface {
	// Next blocks until the next event is committed, ctx is done, or the subscription is closed.
	Next(ctx context.Context) (Event, error)
	Close() error
}

// ReadOptions bound a ReadEvents call. Versions are inclusive; ToVersion zero means unbounded.
type ReadOptions struct {
	FromVersion uint64
	ToVersion   uint64
	PageSize    int
}

// ReadOption configures ReadEvents.
type ReadOption func(*ReadOptions)

// FromVersion starts the read at the given version (default 1).
func FromVersion(version uint64) ReadOption {
	return func(o *ReadOptions) {
		o.FromVersion = version
	}
}

// ToVersion stops the read after the given version.
func ToVersion(version uint64) ReadOption {
	return func(o *ReadOptions) {
		o.ToVersion = version
	}
}

// WithPageSize sets how many events an engine fetches per round trip.
func WithPageSize(size int) ReadOption {
	return func(o *ReadOptions) {
		if size > 0 {
			o.PageSize = size
		}
	}
}

// BuildReadOptions applies options on top of the defaults.
func BuildReadOptions(options ...ReadOption) ReadOptions {
	opts := ReadOptions{FromVersion: 1, PageSize: DefaultReadPageSize}
	for _, option := range options {
		option(&opts)
	}

	if opts.FromVersion == 0 {
		opts.FromVersion = 1
	}

	return opts
}

// Includes reports whether a version falls into the requested range.
func (o ReadOptions) Includes(version uint64) bool {
	if version < o.FromVersion {
		return false
	}

	return o.ToVersion == 0 || version <= o.ToVersion
}

// Collect drains a sequence into a slice, stopping at the first error.
func Collect(seq iter.Seq2[Event, error]) ([]Event, error) {
	events := make([]Event, 0)

	for event, err := range seq {
		if err != nil {
			return nil, err
		}

		events = append(events, event)
	}

	return events, nil
}

// CurrentVersion is a convenience wrapper around AggregateStore.Version.
func CurrentVersion(ctx context.Context, store AggregateStore, aggregateID string) (uint64, error) {
	return store.Version(ctx, aggregateID)
}
