// Package eventstore provides the core abstractions of the event-sourced aggregate store.
//
// An aggregate is identified by its aggregate id and its durable state is the ordered
// sequence of its events with versions 1..N. No other representation is authoritative:
// snapshots are a loading optimization only.
//
// Key types:
//   - StorableEvent: an event that is about to be appended
//   - Event: a committed, immutable event with version, id and global position
//   - Snapshot: a cached fold of the events up to a version
//   - AggregateStore: append with compare-and-swap, reads, snapshots and the change feed
//
// Common usage pattern:
//
//	current, err := eventstore.CurrentVersion(ctx, store, aggregateID)
//	if err != nil {
//		// handle error
//	}
//
//	event, err := eventstore.BuildStorableEvent("OrderCreated", time.Now(), payload, metadata)
//	committed, err := store.Append(ctx, aggregateID, current, []eventstore.StorableEvent{event})
//	if errors.Is(err, eventstore.ErrConcurrencyConflict) {
//		// reload and decide again
//	}
//
//	for event, err := range store.ReadEvents(ctx, aggregateID) {
//		// fold
//	}
//
// The error taxonomy (ErrConcurrencyConflict, ErrValidationFailed, ErrStorageUnavailable,
// ErrPolicyViolation, ErrDeliveryExhausted) is shared by all components of the module.
package eventstore
