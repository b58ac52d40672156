package eventstore

import (
	"encoding/json"
	"errors"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var ErrInvalidPayloadJSON = errors.New("payload json is not valid")
var ErrInvalidMetadataJSON = errors.New("metadata json is not valid")

// StorableEvents is an alias type for a slice of StorableEvent.
type StorableEvents = []StorableEvent

// StorableEvent is the DTO handed to AggregateStore.Append.
//
// It is built on scalars to stay agnostic of how the client models its domain events.
// The store assigns the event id, version and position when it commits the event.
//
// While its properties are exported, it should only be constructed with the supplied factory methods:
//   - BuildStorableEvent
//   - BuildStorableEventWithEmptyMetadata
type StorableEvent struct {
	EventType   string
	OccurredAt  time.Time
	PayloadJSON []byte
	Metadata    Metadata
}

// BuildStorableEvent is a factory method for StorableEvent.
//
// Returns an error if the event type is empty or payloadJSON is not valid JSON.
func BuildStorableEvent(eventType string, occurredAt time.Time, payloadJSON []byte, metadata Metadata) (StorableEvent, error) {
	if eventType == "" {
		return StorableEvent{}, ErrEmptyEventType
	}

	if !json.Valid(payloadJSON) {
		return StorableEvent{}, ErrInvalidPayloadJSON
	}

	return StorableEvent{
		EventType:   eventType,
		OccurredAt:  occurredAt,
		PayloadJSON: payloadJSON,
		Metadata:    metadata,
	}, nil
}

// BuildStorableEventWithEmptyMetadata is a factory method for StorableEvent without correlation data.
func BuildStorableEventWithEmptyMetadata(eventType string, occurredAt time.Time, payloadJSON []byte) (StorableEvent, error) {
	return BuildStorableEvent(eventType, occurredAt, payloadJSON, Metadata{})
}

// MetadataJSON encodes the metadata for storage.
func (e StorableEvent) MetadataJSON() ([]byte, error) {
	metadataJSON, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(e.Metadata)
	if err != nil {
		return nil, errors.Join(ErrInvalidMetadataJSON, err)
	}

	return metadataJSON, nil
}

// DecodeMetadata is the inverse of StorableEvent.MetadataJSON, used by engines reading rows back.
func DecodeMetadata(metadataJSON []byte) (Metadata, error) {
	var metadata Metadata

	if len(metadataJSON) == 0 {
		return metadata, nil
	}

	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(metadataJSON, &metadata); err != nil {
		return Metadata{}, errors.Join(ErrInvalidMetadataJSON, err)
	}

	return metadata, nil
}
