package router

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/eventstore"
)

// settleTimeout bounds acks and nacks issued after the consumer context was cancelled.
const settleTimeout = 5 * time.Second

// Handler processes one event. It must be idempotent because every path redelivers.
type Handler func(ctx context.Context, event eventstore.Event) error

// StandardConsumer drains one queue of the standard path.
//
// At most maxInFlight deliveries are unsettled at any time; once the ceiling is reached
// the consumer stops receiving until a handler returns. On shutdown it stops receiving and
// waits for running handlers. Messages it never settled reappear after their visibility timeout.
type StandardConsumer struct {
	queue    Queue
	handler  Handler
	cfg      settings
	sem      *semaphore.Weighted
	inFlight atomic.Int64
}

// NewStandardConsumer creates a consumer for queue.
func NewStandardConsumer(queue Queue, handler Handler, options ...Option) (*StandardConsumer, error) {
	cfg, err := applyOptions(options)
	if err != nil {
		return nil, err
	}

	return &StandardConsumer{
		queue:   queue,
		handler: handler,
		cfg:     cfg,
		sem:     semaphore.NewWeighted(cfg.maxInFlight),
	}, nil
}

// InFlight returns the number of unsettled deliveries.
func (c *StandardConsumer) InFlight() int64 {
	return c.inFlight.Load()
}

// Run receives until ctx is done. It returns nil on shutdown.
func (c *StandardConsumer) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		if err := c.sem.Acquire(ctx, 1); err != nil {
			c.cfg.logDebug(ctx, logMsgConsumerStopped, logAttrConsumer, c.queue.Name())
			return nil
		}

		delivery, err := c.queue.Receive(ctx)
		if err != nil {
			c.sem.Release(1)

			if ctx.Err() != nil {
				return nil
			}

			if !errors.Is(err, ErrNoMessage) {
				c.cfg.logError(ctx, logMsgReceiveFailed, err, logAttrConsumer, c.queue.Name())
			}

			if !sleep(ctx, c.cfg.pollInterval) {
				return nil
			}

			continue
		}

		c.cfg.metrics.setInFlight(c.queue.Name(), c.inFlight.Add(1))

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer c.sem.Release(1)
			defer func() { c.cfg.metrics.setInFlight(c.queue.Name(), c.inFlight.Add(-1)) }()

			c.deliver(ctx, delivery)
		}()
	}
}

func (c *StandardConsumer) deliver(ctx context.Context, delivery Delivery) {
	event := delivery.Message.Event
	name := c.queue.Name()

	handlerErr := c.handler(ctx, event)

	if handlerErr != nil && ctx.Err() != nil {
		// Left unsettled on purpose: the visibility timeout hands it to the next receiver.
		c.cfg.metrics.observeDelivery(PathStandard, name, OutcomeAbandoned)
		return
	}

	settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()

	if handlerErr == nil {
		if err := c.queue.Ack(settleCtx, delivery.Receipt); err != nil {
			c.cfg.logWarn(ctx, logMsgSettleFailed, logAttrConsumer, name, logAttrEventID, event.EventID, logAttrError, err.Error())
			return
		}

		c.cfg.metrics.observeDelivery(PathStandard, name, OutcomeAcked)
		c.cfg.logDebug(ctx, logMsgDelivered,
			logAttrConsumer, name,
			logAttrEventID, event.EventID,
			logAttrAttempt, delivery.Attempt)

		return
	}

	c.cfg.logWarn(ctx, logMsgDeliveryFailed,
		logAttrConsumer, name,
		logAttrEventID, event.EventID,
		logAttrEventType, event.EventType,
		logAttrAttempt, delivery.Attempt,
		logAttrError, handlerErr.Error())

	deadLettered, err := c.queue.Nack(settleCtx, delivery.Receipt, c.cfg.retryDelay*time.Duration(delivery.Attempt))
	if err != nil {
		c.cfg.logWarn(ctx, logMsgSettleFailed, logAttrConsumer, name, logAttrEventID, event.EventID, logAttrError, err.Error())
		return
	}

	if !deadLettered {
		c.cfg.metrics.observeDelivery(PathStandard, name, OutcomeRetried)
		return
	}

	exhausted := &eventstore.DeliveryExhaustedError{
		Consumer:    name,
		EventID:     event.EventID,
		AggregateID: event.AggregateID,
		Attempts:    delivery.Attempt,
	}

	c.cfg.metrics.observeDelivery(PathStandard, name, OutcomeDeadLettered)
	c.cfg.metrics.observeDeadLettered(name)
	c.cfg.logError(ctx, logMsgDeadLettered, exhausted, logAttrConsumer, name, logAttrEventID, event.EventID)

	if c.cfg.onDeadLetter != nil {
		c.cfg.onDeadLetter(ctx, exhausted)
	}
}

// CriticalConsumer reads the critical log for one consumer group.
//
// It keeps the last processed version per aggregate in a CursorStore and skips events at or
// below it, so redelivery after a crash does not reach the handler twice. A failing handler
// blocks the group: the event is retried until it succeeds, because skipping it would break
// per-aggregate order.
type CriticalConsumer struct {
	group   string
	log     CriticalLog
	cursors CursorStore
	handler Handler
	cfg     settings
}

// NewCriticalConsumer creates a consumer for group.
func NewCriticalConsumer(group string, log CriticalLog, cursors CursorStore, handler Handler, options ...Option) (*CriticalConsumer, error) {
	cfg, err := applyOptions(options)
	if err != nil {
		return nil, err
	}

	return &CriticalConsumer{group: group, log: log, cursors: cursors, handler: handler, cfg: cfg}, nil
}

// Run reads until ctx is done or the log is closed.
func (c *CriticalConsumer) Run(ctx context.Context) error {
	reader, err := c.log.Reader(c.group)
	if err != nil {
		return err
	}
	defer func() { _ = reader.Close() }()

	for {
		msgCtx, event, err := reader.Next(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrLogClosed) {
				return nil
			}

			c.cfg.logError(ctx, logMsgCriticalRead, err, logAttrConsumer, c.group)

			if !sleep(ctx, c.cfg.retryDelay) {
				return nil
			}

			continue
		}

		if err := c.process(msgCtx, reader, event); err != nil {
			if ctx.Err() != nil {
				return nil
			}

			return err
		}
	}
}

func (c *CriticalConsumer) process(ctx context.Context, reader CriticalReader, event eventstore.Event) error {
	cursor, err := c.cursors.Get(ctx, c.group, event.AggregateID)
	if err != nil {
		return err
	}

	if event.Version <= cursor {
		c.cfg.metrics.observeDelivery(PathCritical, c.group, OutcomeDuplicate)
		c.cfg.logDebug(ctx, logMsgDuplicate,
			logAttrConsumer, c.group,
			logAttrAggregateID, event.AggregateID,
			logAttrVersion, event.Version)

		return reader.Commit(ctx, event)
	}

	for attempt := 1; ; attempt++ {
		err := c.handler(ctx, event)
		if err == nil {
			break
		}

		c.cfg.logWarn(ctx, logMsgCriticalFailed,
			logAttrConsumer, c.group,
			logAttrEventID, event.EventID,
			logAttrAttempt, attempt,
			logAttrError, err.Error())
		c.cfg.metrics.observeDelivery(PathCritical, c.group, OutcomeRetried)

		if !sleep(ctx, c.cfg.retryDelay) {
			return ctx.Err()
		}
	}

	if err := c.cursors.Advance(ctx, c.group, event.AggregateID, event.Version); err != nil {
		return err
	}

	c.cfg.metrics.observeDelivery(PathCritical, c.group, OutcomeProcessed)

	return reader.Commit(ctx, event)
}

// sleep waits for d and reports false when ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
