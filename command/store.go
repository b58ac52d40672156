package command

//go:generate mockgen -source=store.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"iter"

	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/eventstore"
	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/schema"
)

// Store is the part of the AggregateStore the processor depends on.
type Store interface {
	Append(ctx context.Context, aggregateID string, expectedVersion uint64, events []eventstore.StorableEvent) ([]eventstore.Event, error)
	ReadEvents(ctx context.Context, aggregateID string, options ...eventstore.ReadOption) iter.Seq2[eventstore.Event, error]
	ReadLatestSnapshot(ctx context.Context, aggregateID string) (*eventstore.Snapshot, error)
	PutSnapshot(ctx context.Context, snapshot eventstore.Snapshot) error
}

// Validator checks produced events before they are committed. *schema.Governor satisfies it.
type Validator interface {
	Validate(event eventstore.StorableEvent) schema.ValidationResult
}
