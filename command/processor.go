package command

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/eventstore"
)

var (
	// ErrBuildingEventFailed is returned when a decided event cannot be turned into a StorableEvent.
	ErrBuildingEventFailed = errors.New("building storable event failed")

	// ErrEvolveFailed is returned when a committed event cannot be folded into the aggregate state.
	ErrEvolveFailed = errors.New("folding event into aggregate state failed")
)

// Processor runs commands for one aggregate type through Load, Validate, Apply and Commit.
//
// It is safe for concurrent use. Commands for the same aggregate race on the store's
// compare-and-swap; the loser reloads and decides again, up to the configured attempts.
type Processor[S any] struct {
	store     Store
	decider   Decider[S]
	cfg       config
	snapshots sync.WaitGroup
}

// NewProcessor creates a processor. The defaults are 3 attempts, 10ms base delay with 30%
// jitter, and a snapshot every 100 versions.
func NewProcessor[S any](store Store, decider Decider[S], options ...Option) (*Processor[S], error) {
	if store == nil {
		return nil, ErrNilStore
	}

	if decider.InitialState == nil || decider.Evolve == nil || decider.Decide == nil {
		return nil, ErrIncompleteDecider
	}

	cfg := config{
		maxAttempts:      defaultMaxAttempts,
		baseDelay:        defaultBaseDelay,
		jitterFactor:     defaultJitterFactor,
		snapshotInterval: defaultSnapshotInterval,
		snapshotTimeout:  defaultSnapshotTimeout,
		clock:            time.Now,
	}

	for _, option := range options {
		if err := option(&cfg); err != nil {
			return nil, err
		}
	}

	return &Processor[S]{store: store, decider: decider, cfg: cfg}, nil
}

// Handle processes one command and returns the committed events.
//
// Conflicts and storage unavailability are retried with fresh reads unless the command pins
// ExpectedVersion. Validation errors are never retried. After exhausting the attempts the
// last error is returned unchanged, so callers still see a *eventstore.ConflictError.
func (p *Processor[S]) Handle(ctx context.Context, cmd Command) (Result, error) {
	start := time.Now()

	aggregateID, err := p.aggregateIDFor(cmd)
	if err != nil {
		p.cfg.logInfo(ctx, logMsgCommandRejected,
			logAttrCommandType, cmd.CommandType,
			logAttrState, string(StateRejected),
			logAttrError, err.Error())

		return Result{}, err
	}

	metadata, err := metadataFor(cmd)
	if err != nil {
		return Result{}, err
	}

	ctx, span := p.cfg.startSpan(ctx, map[string]string{
		spanAttrCommand:   cmd.CommandType,
		spanAttrAggregate: aggregateID,
	})

	p.cfg.logDebug(ctx, logMsgCommandState,
		logAttrCommandType, cmd.CommandType,
		logAttrAggregateID, aggregateID,
		logAttrState, string(StateReceived))

	var result Result

	meta, err := RetryWithExponentialBackoff(ctx, func(ctx context.Context) error {
		attemptResult, err := p.process(ctx, cmd, aggregateID, metadata)
		if err != nil {
			return err
		}

		result = attemptResult

		return nil
	}, p.retryOptions(cmd)...)

	duration := time.Since(start)
	status := statusOf(err)

	p.cfg.recordDuration(ctx, metricCommandDuration, duration, map[string]string{
		labelCommandType: cmd.CommandType,
		labelStatus:      status,
	})

	if err != nil {
		p.cfg.logInfo(ctx, logMsgCommandRejected,
			logAttrCommandType, cmd.CommandType,
			logAttrAggregateID, aggregateID,
			logAttrState, string(StateRejected),
			logAttrAttempts, meta.Attempts,
			logAttrErrorType, meta.LastErrorType,
			logAttrError, err.Error(),
			logAttrDurationMS, toMilliseconds(duration))

		p.cfg.finishSpan(span, status, map[string]string{
			spanAttrAttempts:  strconv.Itoa(meta.Attempts),
			spanAttrErrorType: meta.LastErrorType,
		})

		return Result{AggregateID: aggregateID, Attempts: meta.Attempts}, err
	}

	result.Attempts = meta.Attempts

	p.cfg.logInfo(ctx, logMsgCommandCommitted,
		logAttrCommandType, cmd.CommandType,
		logAttrAggregateID, aggregateID,
		logAttrState, string(StateCommitted),
		logAttrVersion, result.Version,
		logAttrEventCount, len(result.Events),
		logAttrAttempts, meta.Attempts,
		logAttrDurationMS, toMilliseconds(duration))

	p.cfg.finishSpan(span, status, map[string]string{
		spanAttrVersion:    strconv.FormatUint(result.Version, 10),
		spanAttrEventCount: strconv.Itoa(len(result.Events)),
		spanAttrAttempts:   strconv.Itoa(meta.Attempts),
	})

	return result, nil
}

// Load folds the aggregate's latest snapshot and the events after it into the current state.
// It always reads with strong consistency.
func (p *Processor[S]) Load(ctx context.Context, aggregateID string) (S, uint64, error) {
	var zero S

	ctx = eventstore.WithStrongConsistency(ctx)
	state := p.decider.InitialState()
	version := uint64(0)

	snapshot, err := p.store.ReadLatestSnapshot(ctx, aggregateID)
	switch {
	case err != nil:
		if ctx.Err() != nil {
			return zero, 0, ctx.Err()
		}

		p.cfg.logWarn(ctx, logMsgSnapshotReadFail, logAttrAggregateID, aggregateID, logAttrError, err.Error())

	case snapshot != nil:
		restored := p.decider.InitialState()
		if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(snapshot.State, &restored); err != nil {
			p.cfg.logWarn(ctx, logMsgSnapshotDiscarded,
				logAttrAggregateID, aggregateID,
				logAttrVersion, snapshot.Version,
				logAttrError, err.Error())
			break
		}

		state = restored
		version = snapshot.Version
	}

	for event, err := range p.store.ReadEvents(ctx, aggregateID, eventstore.FromVersion(version+1)) {
		if err != nil {
			return zero, 0, err
		}

		state, err = p.decider.Evolve(state, event)
		if err != nil {
			return zero, 0, errors.Join(ErrEvolveFailed, fmt.Errorf("event %s version %d: %w", event.EventType, event.Version, err))
		}

		version = event.Version
	}

	return state, version, nil
}

// Close waits until every background snapshot write has finished or ctx is done.
func (p *Processor[S]) Close(ctx context.Context) error {
	done := make(chan struct{})

	go func() {
		p.snapshots.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil

	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Processor[S]) process(
	ctx context.Context,
	cmd Command,
	aggregateID string,
	metadata eventstore.Metadata,
) (Result, error) {

	state, version, err := p.Load(ctx, aggregateID)
	if err != nil {
		return Result{}, err
	}

	p.cfg.logDebug(ctx, logMsgCommandState,
		logAttrAggregateID, aggregateID,
		logAttrState, string(StateLoaded),
		logAttrVersion, version)

	if cmd.ExpectedVersion != nil && *cmd.ExpectedVersion != version {
		return Result{}, &eventstore.ConflictError{
			AggregateID:     aggregateID,
			ExpectedVersion: *cmd.ExpectedVersion,
			ActualVersion:   version,
		}
	}

	decided, err := p.decider.Decide(state, version, cmd)
	if err != nil {
		return Result{}, asValidationError(err)
	}

	if len(decided) == 0 {
		return Result{AggregateID: aggregateID, EventIDs: []string{}, Version: version}, nil
	}

	storables, err := p.buildEvents(decided, metadata)
	if err != nil {
		return Result{}, err
	}

	if err := p.validate(storables); err != nil {
		return Result{}, err
	}

	p.cfg.logDebug(ctx, logMsgCommandState, logAttrAggregateID, aggregateID, logAttrState, string(StateValidated))

	committed, err := p.store.Append(ctx, aggregateID, version, storables)
	if err != nil {
		return Result{}, err
	}

	for _, event := range committed {
		if state, err = p.decider.Evolve(state, event); err != nil {
			return Result{}, errors.Join(ErrEvolveFailed, err)
		}
	}

	p.cfg.logDebug(ctx, logMsgCommandState, logAttrAggregateID, aggregateID, logAttrState, string(StateApplied))

	newVersion := committed[len(committed)-1].Version
	p.maybeSnapshot(ctx, aggregateID, version, newVersion, state)

	eventIDs := make([]string, 0, len(committed))
	for _, event := range committed {
		eventIDs = append(eventIDs, event.EventID)
	}

	return Result{AggregateID: aggregateID, EventIDs: eventIDs, Version: newVersion, Events: committed}, nil
}

func (p *Processor[S]) aggregateIDFor(cmd Command) (string, error) {
	if cmd.CommandType == "" {
		return "", errors.Join(ErrEmptyCommandType, eventstore.NewDomainViolation("commandType is required"))
	}

	if cmd.AggregateID != "" {
		return cmd.AggregateID, nil
	}

	if p.decider.CreatesAggregate == nil || !p.decider.CreatesAggregate(cmd.CommandType) {
		return "", eventstore.NewDomainViolation(fmt.Sprintf("aggregateId is required for %s", cmd.CommandType))
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}

	return id.String(), nil
}

// metadataFor gives every command a causation id and falls back to it for the correlation id.
func metadataFor(cmd Command) (eventstore.Metadata, error) {
	metadata := cmd.Metadata

	if metadata.CausationID == "" {
		commandID, err := uuid.NewV7()
		if err != nil {
			return eventstore.Metadata{}, err
		}

		metadata.CausationID = commandID.String()
	}

	if metadata.CorrelationID == "" {
		metadata.CorrelationID = metadata.CausationID
	}

	return metadata, nil
}

// pinnedAttempts is used instead of maxAttempts when the client supplied ExpectedVersion.
const pinnedAttempts = 1

func (p *Processor[S]) retryOptions(cmd Command) []RetryOption {
	attempts := p.cfg.maxAttempts
	if cmd.ExpectedVersion != nil {
		attempts = pinnedAttempts
	}

	options := []RetryOption{
		WithBaseDelay(p.cfg.baseDelay),
		WithJitterFactor(p.cfg.jitterFactor),
		WithMaxAttempts(attempts),
	}

	if p.cfg.metricsCollector != nil {
		options = append(options, WithRetryMetrics(p.cfg.metricsCollector, cmd.CommandType))
	}

	return options
}

func (p *Processor[S]) buildEvents(decided []NewEvent, metadata eventstore.Metadata) ([]eventstore.StorableEvent, error) {
	occurredAt := p.cfg.clock().UTC()
	storables := make([]eventstore.StorableEvent, 0, len(decided))

	for _, event := range decided {
		payloadJSON, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(event.Payload)
		if err != nil {
			return nil, errors.Join(ErrBuildingEventFailed, err)
		}

		storable, err := eventstore.BuildStorableEvent(event.EventType, occurredAt, payloadJSON, metadata)
		if err != nil {
			return nil, errors.Join(ErrBuildingEventFailed, err)
		}

		storables = append(storables, storable)
	}

	return storables, nil
}

// validate collects the violations of all events so the caller sees them in one response.
func (p *Processor[S]) validate(storables []eventstore.StorableEvent) error {
	if p.cfg.validator == nil {
		return nil
	}

	var violations []string

	for _, storable := range storables {
		result := p.cfg.validator.Validate(storable)
		if result.OK {
			continue
		}

		for _, violation := range result.Violations {
			violations = append(violations, storable.EventType+": "+violation)
		}
	}

	if len(violations) == 0 {
		return nil
	}

	return &eventstore.ValidationError{Source: "schema", Violations: violations}
}

// maybeSnapshot writes a snapshot in the background when the commit crossed a multiple of
// the snapshot interval. A failed write is logged and does not affect the command.
func (p *Processor[S]) maybeSnapshot(ctx context.Context, aggregateID string, previous, current uint64, state S) {
	interval := p.cfg.snapshotInterval
	if current/interval == previous/interval {
		return
	}

	stateJSON, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(state)
	if err != nil {
		p.cfg.logWarn(ctx, logMsgSnapshotFailed, logAttrAggregateID, aggregateID, logAttrError, err.Error())
		p.cfg.incrementCounter(ctx, metricSnapshots, map[string]string{labelStatus: eventstore.StatusError})

		return
	}

	snapshot := eventstore.Snapshot{
		AggregateID: aggregateID,
		Version:     current,
		State:       stateJSON,
		CreatedAt:   p.cfg.clock().UTC(),
		TTL:         p.cfg.snapshotTTL,
	}

	p.snapshots.Add(1)

	go func() {
		defer p.snapshots.Done()

		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.snapshotTimeout)
		defer cancel()

		if err := p.store.PutSnapshot(saveCtx, snapshot); err != nil {
			p.cfg.logWarn(saveCtx, logMsgSnapshotFailed,
				logAttrAggregateID, aggregateID,
				logAttrVersion, current,
				logAttrError, err.Error())
			p.cfg.incrementCounter(saveCtx, metricSnapshots, map[string]string{labelStatus: eventstore.StatusError})

			return
		}

		p.cfg.logDebug(saveCtx, logMsgSnapshotSaved, logAttrAggregateID, aggregateID, logAttrVersion, current)
		p.cfg.incrementCounter(saveCtx, metricSnapshots, map[string]string{labelStatus: eventstore.StatusSuccess})
	}()
}

func asValidationError(err error) error {
	if errors.Is(err, eventstore.ErrValidationFailed) {
		return err
	}

	return eventstore.NewDomainViolation(err.Error())
}
