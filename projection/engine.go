package projection

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/eventstore"
)

// Engine keeps a set of projections up to date and rebuilds them on demand.
//
// Each projection tracks the last applied version per aggregate. Events at or below it are
// dropped, which makes Apply idempotent under redelivery. An event that skips versions
// triggers a catch-up read from the event log, so projections never observe a gap even
// when the standard path delivers out of order.
type Engine struct {
	log         EventLog
	store       Store
	projections map[string]Projection
	names       []string
	locks       map[string]*sync.Mutex
	cfg         config
}

// RebuildResult describes a finished rebuild.
type RebuildResult struct {
	Projection string        `json:"projection"`
	Events     int           `json:"events"`
	Records    int           `json:"records"`
	Duration   time.Duration `json:"duration"`
}

// NewEngine registers projections. Names must be unique.
func NewEngine(log EventLog, store Store, projections []Projection, options ...Option) (*Engine, error) {
	if log == nil || store == nil {
		return nil, ErrNilStore
	}

	cfg := config{clock: time.Now}
	for _, option := range options {
		if err := option(&cfg); err != nil {
			return nil, err
		}
	}

	e := &Engine{
		log:         log,
		store:       store,
		projections: make(map[string]Projection, len(projections)),
		locks:       make(map[string]*sync.Mutex, len(projections)),
		cfg:         cfg,
	}

	for _, p := range projections {
		if _, ok := e.projections[p.Name()]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateProjection, p.Name())
		}

		e.projections[p.Name()] = p
		e.locks[p.Name()] = &sync.Mutex{}
		e.names = append(e.names, p.Name())
	}

	sort.Strings(e.names)

	return e, nil
}

// Projections returns the registered projection names, sorted.
func (e *Engine) Projections() []string {
	return append([]string(nil), e.names...)
}

// Apply hands event to every projection.
func (e *Engine) Apply(ctx context.Context, event eventstore.Event) error {
	for _, name := range e.names {
		if err := e.applyTo(ctx, e.projections[name], event); err != nil {
			return fmt.Errorf("projection %s: %w", name, err)
		}
	}

	return nil
}

func (e *Engine) applyTo(ctx context.Context, p Projection, event eventstore.Event) error {
	lock := e.locks[p.Name()]
	lock.Lock()
	defer lock.Unlock()

	return e.applyLocked(ctx, e.store, p, event)
}

// applyLocked applies event to p in store, catching up first when versions are missing.
func (e *Engine) applyLocked(ctx context.Context, store Store, p Projection, event eventstore.Event) error {
	current, err := store.Checkpoint(ctx, p.Name(), event.AggregateID)
	if err != nil {
		return err
	}

	if event.Version <= current {
		e.skipped(ctx, p, event, current)
		return nil
	}

	if event.Version == current+1 {
		return e.applyOne(ctx, store, p, event)
	}

	e.cfg.logInfo(ctx, logMsgCatchUp,
		logAttrProjection, p.Name(),
		logAttrAggregateID, event.AggregateID,
		logAttrCheckpoint, current,
		logAttrVersion, event.Version)
	e.cfg.incrementCounter(ctx, metricCatchUps, map[string]string{logAttrProjection: p.Name()})

	missing := e.log.ReadEvents(ctx, event.AggregateID,
		eventstore.FromVersion(current+1),
		eventstore.ToVersion(event.Version))

	for stored, err := range missing {
		if err != nil {
			return err
		}

		if err := e.applyOne(ctx, store, p, stored); err != nil {
			return err
		}
	}

	return nil
}

func (e *Engine) applyOne(ctx context.Context, store Store, p Projection, event eventstore.Event) error {
	var fn func(View) error
	if p.Handles(event.EventType) {
		fn = func(view View) error { return p.Apply(view, event) }
	}

	applied, err := store.Apply(ctx, p.Name(), event, fn)
	if err != nil {
		return err
	}

	if !applied {
		e.skipped(ctx, p, event, event.Version)
		return nil
	}

	if fn != nil {
		e.cfg.incrementCounter(ctx, metricApplied, map[string]string{logAttrProjection: p.Name()})
		e.cfg.logDebug(ctx, logMsgApplied,
			logAttrProjection, p.Name(),
			logAttrAggregateID, event.AggregateID,
			logAttrEventType, event.EventType,
			logAttrVersion, event.Version)
	}

	return nil
}

func (e *Engine) skipped(ctx context.Context, p Projection, event eventstore.Event, checkpoint uint64) {
	e.cfg.incrementCounter(ctx, metricSkipped, map[string]string{logAttrProjection: p.Name()})
	e.cfg.logDebug(ctx, logMsgSkipped,
		logAttrProjection, p.Name(),
		logAttrAggregateID, event.AggregateID,
		logAttrVersion, event.Version,
		logAttrCheckpoint, checkpoint)
}

// Rebuild replays the whole event log into a fresh view and swaps it in. Incremental
// applies to the same projection wait until the swap is done; events committed meanwhile
// are applied afterwards on top of the rebuilt state.
func (e *Engine) Rebuild(ctx context.Context, name string) (RebuildResult, error) {
	p, ok := e.projections[name]
	if !ok {
		return RebuildResult{}, fmt.Errorf("%w: %s", ErrUnknownProjection, name)
	}

	lock := e.locks[name]
	lock.Lock()
	defer lock.Unlock()

	start := e.cfg.clock()
	e.cfg.logInfo(ctx, logMsgRebuildStarted, logAttrProjection, name)

	staging := NewMemoryStore()
	result := RebuildResult{Projection: name}

	for event, err := range e.log.ReadAll(ctx, 0) {
		if err != nil {
			return RebuildResult{}, err
		}

		if err := e.applyLocked(ctx, staging, p, event); err != nil {
			return RebuildResult{}, err
		}

		result.Events++
	}

	state, err := staging.Export(ctx, name)
	if err != nil {
		return RebuildResult{}, err
	}

	if err := e.store.Replace(ctx, name, state); err != nil {
		return RebuildResult{}, err
	}

	result.Records = len(state.Records)
	result.Duration = e.cfg.clock().Sub(start)

	e.cfg.recordDuration(ctx, metricRebuildSeconds, result.Duration, map[string]string{logAttrProjection: name})
	e.cfg.logInfo(ctx, logMsgRebuilt,
		logAttrProjection, name,
		logAttrEvents, result.Events,
		logAttrRecords, result.Records,
		logAttrDurationMS, float64(result.Duration)/float64(time.Millisecond))

	return result, nil
}

// Get returns one record of a projection.
func (e *Engine) Get(ctx context.Context, name, key string) (Record, error) {
	if _, ok := e.projections[name]; !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrUnknownProjection, name)
	}

	return e.store.Get(ctx, name, key)
}

// List returns records of a projection ordered by key.
func (e *Engine) List(ctx context.Context, name string, options ListOptions) ([]Record, error) {
	if _, ok := e.projections[name]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProjection, name)
	}

	return e.store.List(ctx, name, options)
}

// Export returns the full state of a projection.
func (e *Engine) Export(ctx context.Context, name string) (State, error) {
	if _, ok := e.projections[name]; !ok {
		return State{}, fmt.Errorf("%w: %s", ErrUnknownProjection, name)
	}

	return e.store.Export(ctx, name)
}
