// Package memengine provides an in-memory implementation of eventstore.AggregateStore.
//
// Events live in a single arena (the global log in commit order) and every aggregate keeps
// an index of arena positions, which doubles as its version counter. The counter is only
// advanced through the compare-and-swap in Append while holding that aggregate's lock, so
// concurrent appends for one aggregate serialize while appends for different aggregates do not.
//
// The engine is used by unit tests, local development and as the default store of the service
// when no database is configured.
//
//	store := memengine.NewEventStore(memengine.WithLogger(logger))
//	committed, err := store.Append(ctx, "order-1", 0, events)
package memengine
