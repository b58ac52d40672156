package memengine

import (
	"bytes"
	"context"
	"errors"
	"iter"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/eventstore"
)

const (
	logMsgEventsAppended      = "eventstore operation: events appended"
	logMsgConcurrencyConflict = "eventstore operation: concurrency conflict detected"
	logMsgSnapshotIgnored     = "eventstore operation: older snapshot ignored"
	logAttrAggregateID        = "aggregate_id"
	logAttrEventCount         = "event_count"
	logAttrExpectedVersion    = "expected_version"
	logAttrActualVersion      = "actual_version"
	logAttrVersion            = "version"
	metricAppendDuration      = "eventstore_append_duration_seconds"
	metricConcurrencyConflict = "eventstore_concurrency_conflicts_total"
	labelEngine               = "engine"
	engineName                = "memory"
)

// EventStore is the in-memory aggregate store.
type EventStore struct {
	mu        sync.RWMutex
	arena     []eventstore.Event
	index     map[string]*aggregateIndex
	snapshots map[string]eventstore.Snapshot
	committed chan struct{} // closed and replaced after every commit

	clock            func() time.Time
	logger           eventstore.Logger
	metricsCollector eventstore.MetricsCollector
}

// aggregateIndex holds the arena offsets of one aggregate; len(offsets) is its version.
// offsets is written only while holding both lock and EventStore.mu.
type aggregateIndex struct {
	lock    sync.Mutex
	offsets []int
}

// NewEventStore creates an empty in-memory EventStore.
func NewEventStore(options ...Option) (*EventStore, error) {
	es := &EventStore{
		arena:     make([]eventstore.Event, 0, 1024),
		index:     make(map[string]*aggregateIndex),
		snapshots: make(map[string]eventstore.Snapshot),
		committed: make(chan struct{}),
		clock:     time.Now,
	}

	for _, option := range options {
		if err := option(es); err != nil {
			return nil, err
		}
	}

	return es, nil
}

// Append commits events for one aggregate if its current version equals expectedVersion.
func (es *EventStore) Append(
	ctx context.Context,
	aggregateID string,
	expectedVersion uint64,
	events []eventstore.StorableEvent,
) ([]eventstore.Event, error) {

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if aggregateID == "" {
		return nil, eventstore.ErrEmptyAggregateID
	}

	if len(events) == 0 {
		return nil, eventstore.ErrNoEventsToAppend
	}

	start := es.clock()
	idx := es.aggregate(aggregateID)

	idx.lock.Lock()
	defer idx.lock.Unlock()

	actualVersion := uint64(len(idx.offsets))
	if actualVersion != expectedVersion {
		es.recordConflict(aggregateID, expectedVersion, actualVersion)

		return nil, &eventstore.ConflictError{
			AggregateID:     aggregateID,
			ExpectedVersion: expectedVersion,
			ActualVersion:   actualVersion,
		}
	}

	committed, err := es.buildEvents(aggregateID, expectedVersion, events)
	if err != nil {
		return nil, err
	}

	es.mu.Lock()
	for i := range committed {
		committed[i].Position = uint64(len(es.arena)) + 1
		idx.offsets = append(idx.offsets, len(es.arena))
		es.arena = append(es.arena, committed[i].Clone())
	}
	signal := es.committed
	es.committed = make(chan struct{})
	es.mu.Unlock()

	close(signal)

	if es.logger != nil {
		es.logger.Info(logMsgEventsAppended,
			logAttrAggregateID, aggregateID,
			logAttrEventCount, len(committed),
			logAttrVersion, committed[len(committed)-1].Version)
	}

	if es.metricsCollector != nil {
		es.metricsCollector.RecordDuration(metricAppendDuration, es.clock().Sub(start), map[string]string{labelEngine: engineName})
	}

	return committed, nil
}

func (es *EventStore) buildEvents(
	aggregateID string,
	expectedVersion uint64,
	events []eventstore.StorableEvent,
) ([]eventstore.Event, error) {

	committed := make([]eventstore.Event, 0, len(events))
	now := es.clock().UTC()

	for i, event := range events {
		if event.EventType == "" {
			return nil, eventstore.ErrEmptyEventType
		}

		eventID, err := uuid.NewV7()
		if err != nil {
			return nil, errors.Join(eventstore.ErrStorageUnavailable, err)
		}

		timestamp := event.OccurredAt
		if timestamp.IsZero() {
			timestamp = now
		}

		committed = append(committed, eventstore.Event{
			EventID:     eventID.String(),
			EventType:   event.EventType,
			AggregateID: aggregateID,
			Version:     expectedVersion + uint64(i) + 1,
			Timestamp:   timestamp.UTC(),
			Payload:     bytes.Clone(event.PayloadJSON),
			Metadata:    event.Metadata.Clone(),
		})
	}

	return committed, nil
}

func (es *EventStore) aggregate(aggregateID string) *aggregateIndex {
	es.mu.RLock()
	idx, ok := es.index[aggregateID]
	es.mu.RUnlock()

	if ok {
		return idx
	}

	es.mu.Lock()
	defer es.mu.Unlock()

	if idx, ok = es.index[aggregateID]; !ok {
		idx = &aggregateIndex{}
		es.index[aggregateID] = idx
	}

	return idx
}

func (es *EventStore) recordConflict(aggregateID string, expected, actual uint64) {
	if es.logger != nil {
		es.logger.Info(logMsgConcurrencyConflict,
			logAttrAggregateID, aggregateID,
			logAttrExpectedVersion, expected,
			logAttrActualVersion, actual)
	}

	if es.metricsCollector != nil {
		es.metricsCollector.IncrementCounter(metricConcurrencyConflict, map[string]string{labelEngine: engineName})
	}
}

// ReadEvents yields the aggregate's events in ascending version order.
// Each range over the returned sequence reads afresh, so the sequence can be restarted.
func (es *EventStore) ReadEvents(
	ctx context.Context,
	aggregateID string,
	options ...eventstore.ReadOption,
) iter.Seq2[eventstore.Event, error] {

	opts := eventstore.BuildReadOptions(options...)

	return func(yield func(eventstore.Event, error) bool) {
		next := opts.FromVersion

		for {
			if err := ctx.Err(); err != nil {
				yield(eventstore.Event{}, err)
				return
			}

			page := es.readPage(aggregateID, next, opts)
			if len(page) == 0 {
				return
			}

			for _, event := range page {
				if !yield(event, nil) {
					return
				}
			}

			next = page[len(page)-1].Version + 1
		}
	}
}

func (es *EventStore) readPage(aggregateID string, fromVersion uint64, opts eventstore.ReadOptions) []eventstore.Event {
	es.mu.RLock()
	defer es.mu.RUnlock()

	idx, ok := es.index[aggregateID]
	if !ok {
		return nil
	}

	page := make([]eventstore.Event, 0, opts.PageSize)
	for version := fromVersion; version <= uint64(len(idx.offsets)) && len(page) < opts.PageSize; version++ {
		if !opts.Includes(version) {
			break
		}

		page = append(page, es.arena[idx.offsets[version-1]].Clone())
	}

	return page
}

// ReadAll yields every event with a position greater than fromPosition in commit order.
func (es *EventStore) ReadAll(ctx context.Context, fromPosition uint64) iter.Seq2[eventstore.Event, error] {
	return func(yield func(eventstore.Event, error) bool) {
		next := fromPosition

		for {
			if err := ctx.Err(); err != nil {
				yield(eventstore.Event{}, err)
				return
			}

			es.mu.RLock()
			end := min(uint64(len(es.arena)), next+eventstore.DefaultReadPageSize)
			var page []eventstore.Event
			for _, event := range es.arena[min(next, end):end] {
				page = append(page, event.Clone())
			}
			es.mu.RUnlock()

			if len(page) == 0 {
				return
			}

			for _, event := range page {
				if !yield(event, nil) {
					return
				}
			}

			next = end
		}
	}
}

// Version returns the highest committed version of the aggregate, zero when it does not exist.
func (es *EventStore) Version(ctx context.Context, aggregateID string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	es.mu.RLock()
	defer es.mu.RUnlock()

	if idx, ok := es.index[aggregateID]; ok {
		return uint64(len(idx.offsets)), nil
	}

	return 0, nil
}

// ReadLatestSnapshot returns nil when no unexpired snapshot exists.
func (es *EventStore) ReadLatestSnapshot(ctx context.Context, aggregateID string) (*eventstore.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	es.mu.RLock()
	snapshot, ok := es.snapshots[aggregateID]
	es.mu.RUnlock()

	if !ok || snapshot.IsExpired(es.clock()) {
		return nil, nil
	}

	snapshot.State = bytes.Clone(snapshot.State)

	return &snapshot, nil
}

// PutSnapshot stores the snapshot unless a snapshot with a higher version already exists.
func (es *EventStore) PutSnapshot(ctx context.Context, snapshot eventstore.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := snapshot.Validate(); err != nil {
		return errors.Join(eventstore.ErrSavingSnapshotFailed, err)
	}

	es.mu.Lock()
	defer es.mu.Unlock()

	if existing, ok := es.snapshots[snapshot.AggregateID]; ok && existing.Version > snapshot.Version {
		if es.logger != nil {
			es.logger.Debug(logMsgSnapshotIgnored,
				logAttrAggregateID, snapshot.AggregateID,
				logAttrVersion, snapshot.Version)
		}

		return nil
	}

	snapshot.State = bytes.Clone(snapshot.State)
	es.snapshots[snapshot.AggregateID] = snapshot

	return nil
}
