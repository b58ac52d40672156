package eventstore

import "context"

// ConsistencyLevel tells an engine whether a read may be served from a replica.
type ConsistencyLevel int

const (
	// StrongConsistency reads from the primary. Command processing loads aggregates this way
	// because the expected version must reflect the latest commit.
	StrongConsistency ConsistencyLevel = iota

	// EventualConsistency allows replica reads. The aggregate events query endpoint uses it.
	EventualConsistency
)

type contextKey string

// ConsistencyLevelKey is the context key used to store consistency level preferences.
const ConsistencyLevelKey contextKey = "eventstore.consistency_level"

// WithStrongConsistency marks reads issued with ctx as primary-only.
func WithStrongConsistency(ctx context.Context) context.Context {
	return context.WithValue(ctx, ConsistencyLevelKey, StrongConsistency)
}

// WithEventualConsistency marks reads issued with ctx as replica-tolerant.
//
//	ctx = eventstore.WithEventualConsistency(ctx)
//	for event, err := range store.ReadAll(ctx, 0) { ... }
func WithEventualConsistency(ctx context.Context) context.Context {
	return context.WithValue(ctx, ConsistencyLevelKey, EventualConsistency)
}

// GetConsistencyLevel returns StrongConsistency unless the context asks otherwise.
func GetConsistencyLevel(ctx context.Context) ConsistencyLevel {
	if level, ok := ctx.Value(ConsistencyLevelKey).(ConsistencyLevel); ok {
		return level
	}

	return StrongConsistency
}

func (c ConsistencyLevel) String() string {
	switch c {
	case StrongConsistency:
		return "strong"
	case EventualConsistency:
		return "eventual"
	default:
		return "unknown"
	}
}
