// Package command implements the command processor of the aggregate store.
//
// A command passes through Received, Loaded, Validated, Applied and ends Committed or Rejected:
//
//   - Load: the latest snapshot plus the events after it are folded with Decider.Evolve
//   - Validate: Decider.Decide checks the domain invariants, the optional client
//     ExpectedVersion is compared, and every produced event is run through the Validator
//   - Apply: Decide is pure, so the same state and command always yield the same events
//   - Commit: AggregateStore.Append with the loaded version as expected version
//
// A lost compare-and-swap reloads and decides again, bounded by RetryWithExponentialBackoff
// (3 attempts by default). When a commit crosses a multiple of the snapshot interval the new
// state is written as a snapshot in the background; Close drains those writes.
//
// Usage:
//
//	processor, err := command.NewProcessor(store, order.Decider(),
//		command.WithValidator(governor),
//		command.WithSnapshotInterval(50),
//		command.WithLogger(logger),
//	)
//	result, err := processor.Handle(ctx, command.Command{CommandType: "CreateOrder", Payload: payload})
//	switch {
//	case errors.Is(err, eventstore.ErrConcurrencyConflict): // 409
//	case errors.Is(err, eventstore.ErrValidationFailed):    // 400
//	}
package command
