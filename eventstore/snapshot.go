package eventstore

import (
	"encoding/json"
	"errors"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var (
	// ErrInvalidSnapshotJSON is returned when snapshot state is malformed JSON.
	ErrInvalidSnapshotJSON = errors.New("snapshot json is not valid")

	// ErrInvalidSnapshotVersion is returned when a snapshot does not cover at least one event.
	ErrInvalidSnapshotVersion = errors.New("snapshot version must be at least 1")

	// ErrSavingSnapshotFailed is returned when the snapshot save operation fails.
	ErrSavingSnapshotFailed = errors.New("saving snapshot failed")

	// ErrLoadingSnapshotFailed is returned when the snapshot load operation fails.
	ErrLoadingSnapshotFailed = errors.New("loading snapshot failed")
)

// Snapshot is a materialized fold of all events of an aggregate up to Version.
//
// replay(events[1..Version]) must equal State. A snapshot is never more authoritative than the log.
type Snapshot struct {
	AggregateID string          // Aggregate the state belongs to
	Version     uint64          // Last folded event version
	State       json.RawMessage // Serialized aggregate state
	CreatedAt   time.Time       // When the snapshot was taken
	TTL         time.Duration   // Zero means the snapshot never expires
}

// Validate ensures the snapshot can be stored.
func (s Snapshot) Validate() error {
	if s.AggregateID == "" {
		return ErrEmptyAggregateID
	}

	if s.Version == 0 {
		return ErrInvalidSnapshotVersion
	}

	if !jsoniter.ConfigFastest.Valid(s.State) {
		return ErrInvalidSnapshotJSON
	}

	return nil
}

// ExpiresAt returns the zero time for snapshots without TTL.
func (s Snapshot) ExpiresAt() time.Time {
	if s.TTL <= 0 {
		return time.Time{}
	}

	return s.CreatedAt.Add(s.TTL)
}

// IsExpired reports whether the snapshot's TTL elapsed at the given instant.
func (s Snapshot) IsExpired(now time.Time) bool {
	expiresAt := s.ExpiresAt()

	return !expiresAt.IsZero() && !now.Before(expiresAt)
}

// BuildSnapshot creates a new Snapshot with validation.
func BuildSnapshot(
	aggregateID string,
	version uint64,
	state json.RawMessage,
	ttl time.Duration,
) (Snapshot, error) {
	snapshot := Snapshot{
		AggregateID: aggregateID,
		Version:     version,
		State:       state,
		CreatedAt:   time.Now().UTC(),
		TTL:         ttl,
	}

	if err := snapshot.Validate(); err != nil {
		return Snapshot{}, err
	}

	return snapshot, nil
}
