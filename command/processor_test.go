package command_test

import (
	"errors"
	"iter"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/command"
	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/command/mocks"
	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/eventstore"
	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/eventstore/memengine"
	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/schema"
	. "github.com/convey2karthikshivashankar-cloud/nexus-sub000/testutil/helper"
)

type counterState struct {
	Total  int  `json:"total"`
	Count  int  `json:"count"`
	Closed bool `json:"closed"`
}

type incrementPayload struct {
	By int `json:"by"`
}

func counterDecider() command.Decider[counterState] {
	return command.Decider[counterState]{
		AggregateType: "counter",
		InitialState:  func() counterState { return counterState{} },
		Evolve: func(state counterState, event eventstore.Event) (counterState, error) {
			switch event.EventType {
			case "Incremented":
				var payload incrementPayload
				if err := jsoniter.Unmarshal(event.Payload, &payload); err != nil {
					return state, err
				}
				state.Total += payload.By
				state.Count++
			case "Closed":
				state.Closed = true
			}
			return state, nil
		},
		Decide: func(state counterState, _ uint64, cmd command.Command) ([]command.NewEvent, error) {
			switch cmd.CommandType {
			case "Increment":
				if state.Closed {
					return nil, eventstore.NewDomainViolation("counter is closed")
				}
				var payload incrementPayload
				if err := jsoniter.Unmarshal(cmd.Payload, &payload); err != nil {
					return nil, err
				}
				if payload.By <= 0 {
					return nil, eventstore.NewDomainViolation("by must be positive")
				}
				return []command.NewEvent{{EventType: "Incremented", Payload: payload}}, nil
			case "Close":
				if state.Closed {
					return nil, nil
				}
				return []command.NewEvent{{EventType: "Closed", Payload: struct{}{}}}, nil
			}
			return nil, eventstore.NewDomainViolation("unsupported command")
		},
		CreatesAggregate: func(commandType string) bool { return commandType == "Increment" },
	}
}

func increment(aggregateID string, by int) command.Command {
	return command.Command{
		CommandType: "Increment",
		AggregateID: aggregateID,
		Payload:     []byte(`{"by":` + strconv.Itoa(by) + `}`),
	}
}

func seqOf(events ...eventstore.Event) iter.Seq2[eventstore.Event, error] {
	return func(yield func(eventstore.Event, error) bool) {
		for _, event := range events {
			if !yield(event, nil) {
				return
			}
		}
	}
}

func committedEvent(aggregateID, eventType string, version uint64, payload string) eventstore.Event {
	return eventstore.Event{
		EventID:     "event-" + eventType,
		EventType:   eventType,
		AggregateID: aggregateID,
		Version:     version,
		Payload:     []byte(payload),
		Position:    version,
	}
}

func newMemoryProcessor(t *testing.T, options ...command.Option) (*command.Processor[counterState], *memengine.EventStore) {
	t.Helper()

	store, err := memengine.NewEventStore()
	require.NoError(t, err)

	processor, err := command.NewProcessor(store, counterDecider(), options...)
	require.NoError(t, err)

	return processor, store
}

func fold(t *testing.T, state counterState, events []eventstore.Event) counterState {
	t.Helper()

	var err error
	for _, event := range events {
		state, err = counterDecider().Evolve(state, event)
		require.NoError(t, err)
	}

	return state
}

func Test_Handle_When_AggregateIsNew_AssignsIDAndCommits(t *testing.T) {
	// setup
	ctx := TestContext(t)
	processor, store := newMemoryProcessor(t)

	// act
	result, err := processor.Handle(ctx, increment("", 2))

	// assert
	require.NoError(t, err)
	assert.NotEmpty(t, result.AggregateID)
	assert.Equal(t, uint64(1), result.Version)
	assert.Len(t, result.EventIDs, 1)
	assert.Equal(t, 1, result.Attempts)

	events := ReadAllEvents(t, ctx, store, result.AggregateID)
	require.Len(t, events, 1)
	assert.NotEmpty(t, events[0].Metadata.CausationID)
	assert.Equal(t, events[0].Metadata.CausationID, events[0].Metadata.CorrelationID)
	assert.JSONEq(t, `{"by":2}`, string(events[0].Payload))
}

func Test_Handle_KeepsClientCorrelationID(t *testing.T) {
	// setup
	ctx := TestContext(t)
	processor, store := newMemoryProcessor(t)

	// arrange
	cmd := increment(GivenUniqueAggregateID(t, "counter"), 1)
	cmd.Metadata = eventstore.Metadata{CorrelationID: "request-42"}

	// act
	result, err := processor.Handle(ctx, cmd)

	// assert
	require.NoError(t, err)
	events := ReadAllEvents(t, ctx, store, result.AggregateID)
	assert.Equal(t, "request-42", events[0].Metadata.CorrelationID)
	assert.NotEqual(t, "request-42", events[0].Metadata.CausationID)
}

func Test_Handle_When_AggregateIDMissingForNonCreatingCommand_ReturnsValidationError(t *testing.T) {
	// setup
	ctx := TestContext(t)
	processor, _ := newMemoryProcessor(t)

	// act
	_, err := processor.Handle(ctx, command.Command{CommandType: "Close"})

	// assert
	assert.ErrorIs(t, err, eventstore.ErrValidationFailed)
	assert.ErrorContains(t, err, "aggregateId is required")
}

func Test_Handle_When_CommandTypeMissing_ReturnsValidationError(t *testing.T) {
	// setup
	ctx := TestContext(t)
	processor, _ := newMemoryProcessor(t)

	// act
	_, err := processor.Handle(ctx, command.Command{AggregateID: "counter-1"})

	// assert
	assert.ErrorIs(t, err, eventstore.ErrValidationFailed)
	assert.ErrorIs(t, err, command.ErrEmptyCommandType)
}

func Test_Handle_When_InvariantViolated_RejectsWithoutAppending(t *testing.T) {
	// setup
	ctx := TestContext(t)
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	processor, err := command.NewProcessor(store, counterDecider())
	require.NoError(t, err)

	// arrange
	aggregateID := GivenUniqueAggregateID(t, "counter")
	store.EXPECT().ReadLatestSnapshot(gomock.Any(), aggregateID).Return(nil, nil)
	store.EXPECT().ReadEvents(gomock.Any(), aggregateID, gomock.Any()).
		Return(seqOf(committedEvent(aggregateID, "Closed", 1, `{}`)))

	// act
	result, err := processor.Handle(ctx, increment(aggregateID, 1))

	// assert
	var validationErr *eventstore.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "domain", validationErr.Source)
	assert.Equal(t, []string{"counter is closed"}, validationErr.Violations)
	assert.Equal(t, 1, result.Attempts, "validation errors must not be retried")
}

func Test_Handle_When_SchemaRejectsEvent_ReturnsValidationError(t *testing.T) {
	// setup
	ctx := TestContext(t)
	governor, err := schema.NewGovernor()
	require.NoError(t, err)

	definition, err := schema.ParseDefinition([]byte(
		`{"type":"object","required":["by"],"properties":{"by":{"type":"integer","maximum":100}}}`,
	))
	require.NoError(t, err)

	_, err = governor.RegisterSchema("Incremented", definition, schema.Backward)
	require.NoError(t, err)

	processor, store := newMemoryProcessor(t, command.WithValidator(governor))
	aggregateID := GivenUniqueAggregateID(t, "counter")

	// act
	_, err = processor.Handle(ctx, increment(aggregateID, 500))

	// assert
	var validationErr *eventstore.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "schema", validationErr.Source)
	require.NotEmpty(t, validationErr.Violations)
	assert.Contains(t, validationErr.Violations[0], "Incremented: ")

	version, err := store.Version(ctx, aggregateID)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), version, "nothing must be committed")
}

func Test_Handle_When_ValidatorRejectsSeveralEvents_ReportsAllViolations(t *testing.T) {
	// setup
	ctx := TestContext(t)
	ctrl := gomock.NewController(t)
	validator := mocks.NewMockValidator(ctrl)
	processor, _ := newMemoryProcessor(t, command.WithValidator(validator))

	// arrange
	validator.EXPECT().Validate(gomock.Any()).
		Return(schema.ValidationResult{Violations: []string{"by: too large", "by: not even"}})

	// act
	_, err := processor.Handle(ctx, increment(GivenUniqueAggregateID(t, "counter"), 3))

	// assert
	var validationErr *eventstore.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, []string{"Incremented: by: too large", "Incremented: by: not even"}, validationErr.Violations)
}

func Test_Handle_When_ConflictOnce_RetriesWithFreshRead(t *testing.T) {
	// setup
	ctx := TestContext(t)
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	processor, err := command.NewProcessor(store, counterDecider(), command.WithRetryPolicy(3, time.Millisecond, 0))
	require.NoError(t, err)

	// arrange
	aggregateID := GivenUniqueAggregateID(t, "counter")
	concurrent := committedEvent(aggregateID, "Incremented", 1, `{"by":5}`)
	ours := committedEvent(aggregateID, "Incremented", 2, `{"by":1}`)

	store.EXPECT().ReadLatestSnapshot(gomock.Any(), aggregateID).Return(nil, nil).Times(2)
	gomock.InOrder(
		store.EXPECT().ReadEvents(gomock.Any(), aggregateID, gomock.Any()).Return(seqOf()),
		store.EXPECT().Append(gomock.Any(), aggregateID, uint64(0), gomock.Any()).
			Return(nil, &eventstore.ConflictError{AggregateID: aggregateID, ExpectedVersion: 0, ActualVersion: 1}),
		store.EXPECT().ReadEvents(gomock.Any(), aggregateID, gomock.Any()).Return(seqOf(concurrent)),
		store.EXPECT().Append(gomock.Any(), aggregateID, uint64(1), gomock.Any()).
			Return([]eventstore.Event{ours}, nil),
	)

	// act
	result, err := processor.Handle(ctx, increment(aggregateID, 1))

	// assert
	require.NoError(t, err)
	assert.Equal(t, 2, result.Attempts)
	assert.Equal(t, uint64(2), result.Version)
	assert.Equal(t, []string{ours.EventID}, result.EventIDs)
}

func Test_Handle_When_StorageUnavailableOnce_Retries(t *testing.T) {
	// setup
	ctx := TestContext(t)
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	processor, err := command.NewProcessor(store, counterDecider(), command.WithRetryPolicy(3, time.Millisecond, 0))
	require.NoError(t, err)

	// arrange
	aggregateID := GivenUniqueAggregateID(t, "counter")
	store.EXPECT().ReadLatestSnapshot(gomock.Any(), aggregateID).Return(nil, nil).AnyTimes()
	store.EXPECT().ReadEvents(gomock.Any(), aggregateID, gomock.Any()).Return(seqOf()).Times(2)
	gomock.InOrder(
		store.EXPECT().Append(gomock.Any(), aggregateID, uint64(0), gomock.Any()).
			Return(nil, errors.Join(eventstore.ErrStorageUnavailable, errors.New("connection reset"))),
		store.EXPECT().Append(gomock.Any(), aggregateID, uint64(0), gomock.Any()).
			Return([]eventstore.Event{committedEvent(aggregateID, "Incremented", 1, `{"by":1}`)}, nil),
	)

	// act
	result, err := processor.Handle(ctx, increment(aggregateID, 1))

	// assert
	require.NoError(t, err)
	assert.Equal(t, 2, result.Attempts)
}

func Test_Handle_When_ConflictPersists_SurfacesConflictAfterThreeAttempts(t *testing.T) {
	// setup
	ctx := TestContext(t)
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	metrics := NewMetricsCollectorSpy()
	processor, err := command.NewProcessor(store, counterDecider(),
		command.WithRetryPolicy(3, 0, 0),
		command.WithMetrics(metrics),
	)
	require.NoError(t, err)

	// arrange
	aggregateID := GivenUniqueAggregateID(t, "counter")
	store.EXPECT().ReadLatestSnapshot(gomock.Any(), aggregateID).Return(nil, nil).Times(3)
	store.EXPECT().ReadEvents(gomock.Any(), aggregateID, gomock.Any()).Return(seqOf()).Times(3)
	store.EXPECT().Append(gomock.Any(), aggregateID, uint64(0), gomock.Any()).
		Return(nil, &eventstore.ConflictError{AggregateID: aggregateID, ExpectedVersion: 0, ActualVersion: 1}).
		Times(3)

	// act
	result, err := processor.Handle(ctx, increment(aggregateID, 1))

	// assert
	var conflictErr *eventstore.ConflictError
	require.ErrorAs(t, err, &conflictErr)
	assert.Equal(t, uint64(1), conflictErr.ActualVersion)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, 2, metrics.CountCounter("command_retries_total", map[string]string{"command_type": "Increment"}))
	assert.Equal(t, 1, metrics.CountCounter("command_max_retries_reached_total", map[string]string{"final_error_type": "concurrency_conflict"}))
	assert.Equal(t, 1, metrics.CountDurations("command_duration_seconds", map[string]string{"status": eventstore.StatusConflict}))
}

func Test_Handle_When_ExpectedVersionPinned_DoesNotRetry(t *testing.T) {
	// setup
	ctx := TestContext(t)
	processor, _ := newMemoryProcessor(t)

	// arrange
	aggregateID := GivenUniqueAggregateID(t, "counter")
	_, err := processor.Handle(ctx, increment(aggregateID, 1))
	require.NoError(t, err)
	_, err = processor.Handle(ctx, increment(aggregateID, 1))
	require.NoError(t, err)

	stale := uint64(1)
	cmd := increment(aggregateID, 1)
	cmd.ExpectedVersion = &stale

	// act
	result, err := processor.Handle(ctx, cmd)

	// assert
	var conflictErr *eventstore.ConflictError
	require.ErrorAs(t, err, &conflictErr)
	assert.Equal(t, uint64(1), conflictErr.ExpectedVersion)
	assert.Equal(t, uint64(2), conflictErr.ActualVersion)
	assert.Equal(t, 1, result.Attempts)
}

func Test_Handle_When_ExpectedVersionMatches_Commits(t *testing.T) {
	// setup
	ctx := TestContext(t)
	processor, _ := newMemoryProcessor(t)

	// arrange
	aggregateID := GivenUniqueAggregateID(t, "counter")
	_, err := processor.Handle(ctx, increment(aggregateID, 1))
	require.NoError(t, err)

	current := uint64(1)
	cmd := increment(aggregateID, 4)
	cmd.ExpectedVersion = &current

	// act
	result, err := processor.Handle(ctx, cmd)

	// assert
	require.NoError(t, err)
	assert.Equal(t, uint64(2), result.Version)
}

func Test_Handle_When_NothingDecided_ReturnsCurrentVersion(t *testing.T) {
	// setup
	ctx := TestContext(t)
	processor, _ := newMemoryProcessor(t)

	// arrange
	aggregateID := GivenUniqueAggregateID(t, "counter")
	_, err := processor.Handle(ctx, increment(aggregateID, 1))
	require.NoError(t, err)
	_, err = processor.Handle(ctx, command.Command{CommandType: "Close", AggregateID: aggregateID})
	require.NoError(t, err)

	// act
	result, err := processor.Handle(ctx, command.Command{CommandType: "Close", AggregateID: aggregateID})

	// assert
	require.NoError(t, err)
	assert.Equal(t, uint64(2), result.Version)
	assert.Empty(t, result.EventIDs)
}

func Test_Handle_ConcurrentCommandsOnOneAggregate_LoseNoUpdates(t *testing.T) {
	// setup
	ctx := TestContext(t)
	processor, store := newMemoryProcessor(t, command.WithRetryPolicy(3, time.Millisecond, 0.3))

	// arrange
	aggregateID := GivenUniqueAggregateID(t, "counter")
	_, err := processor.Handle(ctx, increment(aggregateID, 1))
	require.NoError(t, err)

	const writers = 8
	var succeeded, conflicted atomic.Int32
	var wg sync.WaitGroup

	// act
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := processor.Handle(ctx, increment(aggregateID, 1))
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, eventstore.ErrConcurrencyConflict):
				conflicted.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	// assert
	assert.Equal(t, int32(writers), succeeded.Load()+conflicted.Load())
	assert.Positive(t, succeeded.Load())

	state, version, err := processor.Load(ctx, aggregateID)
	require.NoError(t, err)
	assert.Equal(t, uint64(succeeded.Load())+1, version)
	assert.Equal(t, int(succeeded.Load())+1, state.Total)

	events := ReadAllEvents(t, ctx, store, aggregateID)
	for i, event := range events {
		assert.Equal(t, uint64(i+1), event.Version, "versions must be gapless")
	}
}

func Test_Handle_SnapshotReplay_EqualsFullReplay(t *testing.T) {
	// setup
	ctx := TestContext(t)
	processor, store := newMemoryProcessor(t, command.WithSnapshotInterval(3))

	// arrange
	aggregateID := GivenUniqueAggregateID(t, "counter")
	for by := 1; by <= 7; by++ {
		_, err := processor.Handle(ctx, increment(aggregateID, by))
		require.NoError(t, err)
	}
	require.NoError(t, processor.Close(ctx))

	// act
	snapshot, err := store.ReadLatestSnapshot(ctx, aggregateID)
	require.NoError(t, err)
	require.NotNil(t, snapshot)

	var fromSnapshot counterState
	require.NoError(t, jsoniter.Unmarshal(snapshot.State, &fromSnapshot))
	tail, err := eventstore.Collect(store.ReadEvents(ctx, aggregateID, eventstore.FromVersion(snapshot.Version+1)))
	require.NoError(t, err)

	full := fold(t, counterState{}, ReadAllEvents(t, ctx, store, aggregateID))
	resumed := fold(t, fromSnapshot, tail)

	// assert
	assert.Equal(t, uint64(6), snapshot.Version)
	assert.Equal(t, full, resumed)
	assert.Equal(t, counterState{Total: 28, Count: 7}, full)

	loaded, version, err := processor.Load(ctx, aggregateID)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), version)
	assert.Equal(t, full, loaded)
}

func Test_Load_When_SnapshotIsCorrupt_ReplaysFullStream(t *testing.T) {
	// setup
	ctx := TestContext(t)
	logger, logSpy := NewSpyLogger()
	processor, store := newMemoryProcessor(t, command.WithLogger(logger))

	// arrange
	aggregateID := GivenUniqueAggregateID(t, "counter")
	for by := 1; by <= 3; by++ {
		_, err := processor.Handle(ctx, increment(aggregateID, by))
		require.NoError(t, err)
	}
	require.NoError(t, store.PutSnapshot(ctx, eventstore.Snapshot{
		AggregateID: aggregateID,
		Version:     2,
		State:       []byte(`{"total":"not a number"}`),
		CreatedAt:   time.Now(),
	}))

	// act
	state, version, err := processor.Load(ctx, aggregateID)

	// assert
	require.NoError(t, err)
	assert.Equal(t, uint64(3), version)
	assert.Equal(t, 6, state.Total)
	assert.True(t, logSpy.HasLog(slog.LevelWarn, "snapshot could not be decoded, replaying full stream"))
}

func Test_Handle_When_SnapshotWriteFails_CommandStillSucceeds(t *testing.T) {
	// setup
	ctx := TestContext(t)
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	logger, logSpy := NewSpyLogger()
	processor, err := command.NewProcessor(store, counterDecider(),
		command.WithSnapshotInterval(1),
		command.WithLogger(logger),
	)
	require.NoError(t, err)

	// arrange
	aggregateID := GivenUniqueAggregateID(t, "counter")
	store.EXPECT().ReadLatestSnapshot(gomock.Any(), aggregateID).Return(nil, nil)
	store.EXPECT().ReadEvents(gomock.Any(), aggregateID, gomock.Any()).Return(seqOf())
	store.EXPECT().Append(gomock.Any(), aggregateID, uint64(0), gomock.Any()).
		Return([]eventstore.Event{committedEvent(aggregateID, "Incremented", 1, `{"by":1}`)}, nil)
	store.EXPECT().PutSnapshot(gomock.Any(), gomock.Any()).
		Return(errors.Join(eventstore.ErrStorageUnavailable, errors.New("disk full")))

	// act
	result, err := processor.Handle(ctx, increment(aggregateID, 1))
	require.NoError(t, processor.Close(ctx))

	// assert
	require.NoError(t, err)
	assert.Equal(t, uint64(1), result.Version)
	assert.True(t, logSpy.HasLog(slog.LevelWarn, "snapshot save failed"))
}

func Test_Handle_LogsCommittedAndRejected(t *testing.T) {
	// setup
	ctx := TestContext(t)
	logger, logSpy := NewSpyLogger()
	processor, _ := newMemoryProcessor(t, command.WithLogger(logger))
	aggregateID := GivenUniqueAggregateID(t, "counter")

	// act
	_, err := processor.Handle(ctx, increment(aggregateID, 1))
	require.NoError(t, err)
	_, err = processor.Handle(ctx, increment(aggregateID, -1))
	require.Error(t, err)

	// assert
	committed := logSpy.FindLog(slog.LevelInfo, "command committed")
	require.NotNil(t, committed)
	assert.Equal(t, aggregateID, committed["aggregate_id"])
	assert.Equal(t, "committed", committed["state"])

	rejected := logSpy.FindLog(slog.LevelInfo, "command rejected")
	require.NotNil(t, rejected)
	assert.Equal(t, "validation_failed", rejected["error_type"])
}

func Test_Handle_WithContextualLoggerAndTracing_RecordsSpanPerCommand(t *testing.T) {
	// setup
	ctx := TestContext(t)
	loggerSpy := NewContextualLoggerSpy()
	tracingSpy := NewTracingCollectorSpy()
	processor, _ := newMemoryProcessor(t, command.WithContextualLogger(loggerSpy), command.WithTracing(tracingSpy))
	aggregateID := GivenUniqueAggregateID(t, "counter")

	// act
	_, err := processor.Handle(ctx, increment(aggregateID, 2))
	require.NoError(t, err)
	_, err = processor.Handle(ctx, increment(aggregateID, 0))
	require.Error(t, err)

	// assert
	spans := tracingSpy.Spans("command.handle")
	require.Len(t, spans, 2)
	assert.True(t, spans[0].Finished)
	assert.Equal(t, eventstore.StatusSuccess, spans[0].Status)
	assert.Equal(t, aggregateID, spans[0].StartAttributes["aggregate_id"])
	assert.Equal(t, "1", spans[0].EndAttributes["version"])
	assert.Equal(t, eventstore.StatusRejected, spans[1].Status)

	committed, ok := loggerSpy.Find("info", "command committed")
	require.True(t, ok)
	version, ok := committed.Attr("version")
	require.True(t, ok)
	assert.Equal(t, uint64(1), version)
	assert.NotNil(t, committed.Context)

	_, ok = loggerSpy.Find("info", "command rejected")
	assert.True(t, ok)
	assert.NotEmpty(t, loggerSpy.Records("debug"))
}

func Test_NewProcessor_RejectsInvalidConfiguration(t *testing.T) {
	store, err := memengine.NewEventStore()
	require.NoError(t, err)

	_, err = command.NewProcessor[counterState](nil, counterDecider())
	assert.ErrorIs(t, err, command.ErrNilStore)

	_, err = command.NewProcessor(store, command.Decider[counterState]{})
	assert.ErrorIs(t, err, command.ErrIncompleteDecider)

	_, err = command.NewProcessor(store, counterDecider(), command.WithSnapshotInterval(0))
	assert.ErrorIs(t, err, command.ErrInvalidSnapshotInterval)

	_, err = command.NewProcessor(store, counterDecider(), command.WithRetryPolicy(0, 0, 0))
	assert.ErrorIs(t, err, command.ErrInvalidMaxAttempts)
}

func Test_Dispatcher_RoutesByCommandType(t *testing.T) {
	// setup
	ctx := TestContext(t)
	processor, _ := newMemoryProcessor(t)
	dispatcher := command.NewDispatcher()

	// arrange
	require.NoError(t, dispatcher.Register(processor, "Increment", "Close"))

	// act
	result, err := dispatcher.Handle(ctx, increment("", 1))
	_, unknownErr := dispatcher.Handle(ctx, command.Command{CommandType: "Reset", AggregateID: "x"})
	duplicateErr := dispatcher.Register(processor, "Close")

	// assert
	require.NoError(t, err)
	assert.Equal(t, uint64(1), result.Version)
	assert.ErrorIs(t, unknownErr, eventstore.ErrValidationFailed)
	assert.ErrorIs(t, duplicateErr, command.ErrDuplicateCommandType)
	assert.Equal(t, []string{"Close", "Increment"}, dispatcher.CommandTypes())
}

var _ command.Handler = (*command.Processor[counterState])(nil)
