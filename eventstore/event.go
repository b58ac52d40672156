package eventstore

import (
	"bytes"
	"encoding/json"
	"maps"
	"time"
)

// Metadata travels with every event and links it to the request that caused it.
type Metadata struct {
	CorrelationID string            `json:"correlationId,omitempty"`
	CausationID   string            `json:"causationId,omitempty"`
	UserContext   map[string]string `json:"userContext,omitempty"`
}

// Event is a committed fact. It is immutable once the store returned it.
//
// Version is contiguous per aggregate starting at 1.
// Position is the global commit position assigned by the store, ascending in commit order.
type Event struct {
	EventID     string          `json:"eventId"`
	EventType   string          `json:"eventType"`
	AggregateID string          `json:"aggregateId"`
	Version     uint64          `json:"version"`
	Timestamp   time.Time       `json:"timestamp"`
	Payload     json.RawMessage `json:"payload"`
	Metadata    Metadata        `json:"metadata"`
	Position    uint64          `json:"position"`
}

// Events is an alias type for a slice of Event.
type Events = []Event

// Clone returns a copy that shares no maps with m.
func (m Metadata) Clone() Metadata {
	m.UserContext = maps.Clone(m.UserContext)
	return m
}

// Clone returns a deep copy. Engines that keep events in memory hand out clones only.
func (e Event) Clone() Event {
	e.Payload = bytes.Clone(e.Payload)
	e.Metadata = e.Metadata.Clone()
	return e
}
