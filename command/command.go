package command

import (
	"encoding/json"

	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/eventstore"
)

// Command is a request to change one aggregate.
//
// ExpectedVersion pins the version the client decided on. When it is set the processor
// never retries, because a reload would silently change what the client saw.
type Command struct {
	CommandType     string              `json:"commandType"`
	AggregateID     string              `json:"aggregateId,omitempty"`
	ExpectedVersion *uint64             `json:"expectedVersion,omitempty"`
	Payload         json.RawMessage     `json:"payload,omitempty"`
	Metadata        eventstore.Metadata `json:"metadata,omitempty"`
}

// NewEvent is a domain event produced by Decide, before it has been serialized.
type NewEvent struct {
	EventType string
	Payload   any
}

// Decider holds the pure domain logic of one aggregate type.
//
// Evolve folds one committed event into the state. Decide checks the domain invariants
// and returns the events a command produces; it must not do any I/O so that replays are
// deterministic. A violated invariant is reported as *eventstore.ValidationError.
type Decider[S any] struct {
	AggregateType string
	InitialState  func() S
	Evolve        func(state S, event eventstore.Event) (S, error)
	Decide        func(state S, version uint64, cmd Command) ([]NewEvent, error)

	// CreatesAggregate reports whether a command type may start a new aggregate.
	// The processor assigns a UUIDv7 when such a command arrives without an aggregate id.
	CreatesAggregate func(commandType string) bool
}

// Result describes a committed command.
type Result struct {
	AggregateID string             `json:"aggregateId"`
	EventIDs    []string           `json:"eventIds"`
	Version     uint64             `json:"version"`
	Events      []eventstore.Event `json:"-"`
	Attempts    int                `json:"-"`
}

// State names the stages a command passes through. They appear in log lines only.
type State string

const (
	StateReceived  State = "received"
	StateLoaded    State = "loaded"
	StateValidated State = "validated"
	StateApplied   State = "applied"
	StateCommitted State = "committed"
	StateRejected  State = "rejected"
)
