package postgresengine

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/eventstore"
)

// subscription polls the events table by global position.
//
// A missing position is either an insert that has not committed yet or one that rolled back
// (a lost append still consumes its sequence value). The subscription holds back everything
// after a gap until the gap is filled or gapTolerance has elapsed. Positions it moved past stay
// pending and are re-queried on every poll until gapRetention has elapsed, so a late commit is
// still delivered, only out of global order.
type subscription struct {
	es       *EventStore
	cursor   uint64
	buffered []eventstore.Event
	gapSince time.Time
	pending  *pendingGaps
	done     chan struct{}
	once     sync.Once
}

// Subscribe starts a polling subscription after fromPosition.
func (es *EventStore) Subscribe(ctx context.Context, fromPosition uint64) (eventstore.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &subscription{
		es:      es,
		cursor:  fromPosition,
		pending: newPendingGaps(maxPendingGapPositions),
		done:    make(chan struct{}),
	}, nil
}

// Next blocks until the next event is available.
func (s *subscription) Next(ctx context.Context) (eventstore.Event, error) {
	for {
		if len(s.buffered) > 0 {
			event := s.buffered[0]
			s.buffered = s.buffered[1:]
			s.cursor = max(s.cursor, event.Position)

			return event, nil
		}

		select {
		case <-s.done:
			return eventstore.Event{}, eventstore.ErrSubscriptionClosed
		default:
		}

		if err := s.poll(ctx); err != nil {
			return eventstore.Event{}, err
		}

		if len(s.buffered) > 0 {
			continue
		}

		timer := time.NewTimer(s.es.pollInterval)

		select {
		case <-ctx.Done():
			timer.Stop()
			return eventstore.Event{}, ctx.Err()

		case <-s.done:
			timer.Stop()
			return eventstore.Event{}, eventstore.ErrSubscriptionClosed

		case <-timer.C:
		}
	}
}

func (s *subscription) poll(ctx context.Context) error {
	if err := s.pollPending(ctx); err != nil {
		return err
	}

	expected := s.cursor + 1

	for event, err := range s.es.ReadAll(ctx, s.cursor) {
		if err != nil {
			return err
		}

		if event.Position != expected {
			now := s.es.clock()
			if s.gapSince.IsZero() {
				s.gapSince = now
			}

			if now.Sub(s.gapSince) < s.es.gapTolerance {
				return nil
			}

			dropped := s.pending.add(expected, event.Position-1, now)

			s.es.logWarn(ctx, logMsgFeedGapDeferred,
				logAttrFromPosition, expected,
				logAttrToPosition, event.Position-1,
				logAttrPendingCount, s.pending.count())

			if dropped > 0 {
				s.es.logWarn(ctx, logMsgFeedGapAbandoned, logAttrPendingCount, dropped)
			}
		}

		s.gapSince = time.Time{}
		s.buffered = append(s.buffered, event)
		expected = event.Position + 1

		if len(s.buffered) >= eventstore.DefaultReadPageSize {
			return nil
		}
	}

	return nil
}

// pollPending delivers late commits at positions the subscription already moved past.
func (s *subscription) pollPending(ctx context.Context) error {
	if expired := s.pending.expire(s.es.clock(), max(s.es.gapRetention, s.es.gapTolerance)); len(expired) > 0 {
		s.es.logWarn(ctx, logMsgFeedGapAbandoned,
			logAttrFromPosition, expired[0],
			logAttrToPosition, expired[len(expired)-1],
			logAttrPendingCount, len(expired))
	}

	positions := s.pending.positions()
	for chunk := range slices.Chunk(positions, eventstore.DefaultReadPageSize) {
		events, err := s.es.readPositions(ctx, chunk)
		if err != nil {
			return err
		}

		for _, event := range events {
			s.pending.resolve(event.Position)
			s.buffered = append(s.buffered, event)
			s.es.logWarn(ctx, logMsgFeedGapRecovered, logAttrPosition, event.Position)
		}
	}

	return nil
}

func (s *subscription) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

// pendingGaps tracks skipped global positions and when they were skipped.
// It holds at most limit positions; the oldest are dropped first.
type pendingGaps struct {
	limit   int
	order   []uint64
	skipped map[uint64]time.Time
}

func newPendingGaps(limit int) *pendingGaps {
	return &pendingGaps{limit: limit, skipped: make(map[uint64]time.Time)}
}

// add records from..to as skipped at now and returns how many old positions were dropped to stay within the limit.
func (p *pendingGaps) add(from, to uint64, now time.Time) int {
	dropped := 0
	if span := to - from + 1; span > uint64(p.limit) {
		dropped = int(span) - p.limit
		from = to - uint64(p.limit) + 1
	}

	for pos := from; pos <= to; pos++ {
		if _, ok := p.skipped[pos]; ok {
			continue
		}

		p.skipped[pos] = now
		p.order = append(p.order, pos)
	}

	for len(p.skipped) > p.limit {
		oldest := p.order[0]
		p.order = p.order[1:]

		if _, ok := p.skipped[oldest]; ok {
			delete(p.skipped, oldest)
			dropped++
		}
	}

	return dropped
}

// resolve forgets a position whose event has been delivered.
func (p *pendingGaps) resolve(pos uint64) {
	delete(p.skipped, pos)
}

// expire forgets positions skipped longer than retention ago and returns them in ascending order.
func (p *pendingGaps) expire(now time.Time, retention time.Duration) []uint64 {
	var expired []uint64

	kept := p.order[:0]
	for _, pos := range p.order {
		at, ok := p.skipped[pos]
		if !ok {
			continue
		}

		if now.Sub(at) >= retention {
			delete(p.skipped, pos)
			expired = append(expired, pos)

			continue
		}

		kept = append(kept, pos)
	}

	p.order = kept
	slices.Sort(expired)

	return expired
}

// positions returns the pending positions in ascending order.
func (p *pendingGaps) positions() []uint64 {
	positions := make([]uint64, 0, len(p.skipped))
	for pos := range p.skipped {
		positions = append(positions, pos)
	}

	slices.Sort(positions)

	return positions
}

func (p *pendingGaps) count() int {
	return len(p.skipped)
}
