package projection

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"time"

	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/eventstore"
)

var (
	// ErrUnknownProjection is returned for a projection name that was never registered.
	ErrUnknownProjection = errors.New("unknown projection")

	// ErrDuplicateProjection is returned when two projections share a name.
	ErrDuplicateProjection = errors.New("projection already registered")

	// ErrRecordNotFound is returned by Get when the key has no record.
	ErrRecordNotFound = errors.New("projection record not found")

	// ErrNilStore is returned when an Engine is created without a record store or event log.
	ErrNilStore = errors.New("projection store and event log are required")

	// ErrEmptyKey is returned when a projection writes a record without a key.
	ErrEmptyKey = errors.New("projection record key must not be empty")
)

// Projection maintains one read model.
//
// Apply must be deterministic: given the same view and event it makes the same changes.
// It is called at most once per event and aggregate version; the engine drops redeliveries.
type Projection interface {
	Name() string
	Handles(eventType string) bool
	Apply(view View, event eventstore.Event) error
}

// View is the write access a Projection gets while one event is applied. Changes become
// visible together with the projection's new checkpoint or not at all.
type View interface {
	// Get decodes the record stored under key into target and reports whether it exists.
	Get(key string, target any) (bool, error)
	Put(key string, value any) error
	Delete(key string) error
}

// Record is one stored read model entry.
type Record struct {
	Key       string          `json:"key"`
	Data      json.RawMessage `json:"data"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// ListOptions page through the records of a projection ordered by key.
type ListOptions struct {
	Prefix string
	Limit  int
	Offset int
}

// State is the complete content of one projection. Two states are equal when the
// projection holds the same records and has applied the same versions.
type State struct {
	Records     map[string]Record `json:"records"`
	Checkpoints map[string]uint64 `json:"checkpoints"`
}

// NewState returns an empty state.
func NewState() State {
	return State{Records: make(map[string]Record), Checkpoints: make(map[string]uint64)}
}

// Store persists projection records together with the last applied version per aggregate.
type Store interface {
	Checkpoint(ctx context.Context, projection, aggregateID string) (uint64, error)

	// Apply runs fn and commits its changes together with the projection's checkpoint for
	// event.AggregateID moved to event.Version. It reports false without calling fn when the
	// checkpoint is already at or beyond that version. A nil fn only advances the checkpoint.
	// Records written by fn carry event.Timestamp as UpdatedAt.
	Apply(ctx context.Context, projection string, event eventstore.Event, fn func(View) error) (bool, error)

	Get(ctx context.Context, projection, key string) (Record, error)
	List(ctx context.Context, projection string, options ListOptions) ([]Record, error)

	// Export returns the current state of a projection.
	Export(ctx context.Context, projection string) (State, error)

	// Replace swaps the whole state of a projection in one step.
	Replace(ctx context.Context, projection string, state State) error
}

// EventLog is the part of the AggregateStore the engine reads from.
type EventLog interface {
	ReadEvents(ctx context.Context, aggregateID string, options ...eventstore.ReadOption) iter.Seq2[eventstore.Event, error]
	ReadAll(ctx context.Context, fromPosition uint64) iter.Seq2[eventstore.Event, error]
}
