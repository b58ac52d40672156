package router

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/eventstore"
)

// checkpointKey is the cursor key holding the router's change feed position.
const checkpointKey = "$all"

// ErrDuplicateQueue is returned when a queue name is registered twice.
var ErrDuplicateQueue = errors.New("queue already registered")

// Router moves committed events from the change feed onto the distribution paths.
//
// Critical events are published to the ordered CriticalLog. Standard events are copied to
// every registered consumer queue. The feed position is checkpointed after an event reached
// its path, so a restarted router may route an event twice but never skips one.
type Router struct {
	feed        eventstore.ChangeFeed
	classifier  Classifier
	critical    CriticalLog
	checkpoints CursorStore
	cfg         settings

	mu     sync.RWMutex
	queues map[string]Queue
}

// NewRouter creates a router. Queues are attached with AddQueue before Run.
func NewRouter(
	feed eventstore.ChangeFeed,
	classifier Classifier,
	critical CriticalLog,
	checkpoints CursorStore,
	options ...Option,
) (*Router, error) {
	cfg, err := applyOptions(options)
	if err != nil {
		return nil, err
	}

	return &Router{
		feed:        feed,
		classifier:  classifier,
		critical:    critical,
		checkpoints: checkpoints,
		cfg:         cfg,
		queues:      make(map[string]Queue),
	}, nil
}

// AddQueue registers a standard path consumer queue.
func (r *Router) AddQueue(queue Queue) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.queues[queue.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateQueue, queue.Name())
	}

	r.queues[queue.Name()] = queue

	return nil
}

// Queue returns the queue registered under name.
func (r *Router) Queue(name string) (Queue, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	queue, ok := r.queues[name]

	return queue, ok
}

// Queues returns all registered queues sorted by name.
func (r *Router) Queues() []Queue {
	r.mu.RLock()
	defer r.mu.RUnlock()

	queues := make([]Queue, 0, len(r.queues))
	for _, queue := range r.queues {
		queues = append(queues, queue)
	}

	sort.Slice(queues, func(i, j int) bool { return queues[i].Name() < queues[j].Name() })

	return queues
}

// Run follows the change feed from the stored checkpoint until ctx is done.
func (r *Router) Run(ctx context.Context) error {
	from, err := r.checkpoints.Get(ctx, r.cfg.name, checkpointKey)
	if err != nil {
		return err
	}

	sub, err := r.feed.Subscribe(ctx, from)
	if err != nil {
		return err
	}
	defer func() { _ = sub.Close() }()

	r.cfg.logInfo(ctx, logMsgRouterStarted, logAttrPosition, from)

	for {
		event, err := sub.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			r.cfg.logError(ctx, logMsgFeedFailed, err, logAttrPosition, from)

			return err
		}

		if !r.routeWithRetry(ctx, event) {
			return nil
		}

		if err := r.checkpoints.Advance(ctx, r.cfg.name, checkpointKey, event.Position); err != nil {
			r.cfg.logWarn(ctx, logMsgCheckpointFail, logAttrPosition, event.Position, logAttrError, err.Error())
		}

		from = event.Position
	}
}

// routeWithRetry reports false when ctx ended before the event was routed.
func (r *Router) routeWithRetry(ctx context.Context, event eventstore.Event) bool {
	for {
		err := r.Route(ctx, event)
		if err == nil {
			return true
		}

		if ctx.Err() != nil {
			return false
		}

		r.cfg.logWarn(ctx, logMsgRouteFailed,
			logAttrEventID, event.EventID,
			logAttrEventType, event.EventType,
			logAttrError, err.Error())

		if !sleep(ctx, r.cfg.retryDelay) {
			return false
		}
	}
}

// Route hands one event to its path. Sending to standard queues is idempotent per event id,
// so a partially failed Route can be repeated.
func (r *Router) Route(ctx context.Context, event eventstore.Event) error {
	path := r.classifier.Classify(event.EventType)

	switch path {
	case PathCritical:
		if err := r.critical.Publish(ctx, event); err != nil {
			return err
		}
	default:
		msg := NewMessage(event, r.cfg.clock())

		var errs []error
		for _, queue := range r.Queues() {
			if err := queue.Send(ctx, msg); err != nil {
				errs = append(errs, err)
			}
		}

		if err := errors.Join(errs...); err != nil {
			return err
		}
	}

	r.cfg.metrics.observeRouted(path)
	r.cfg.logDebug(ctx, logMsgRouted,
		logAttrPath, string(path),
		logAttrEventID, event.EventID,
		logAttrAggregateID, event.AggregateID,
		logAttrVersion, event.Version,
		logAttrPosition, event.Position)

	return nil
}
