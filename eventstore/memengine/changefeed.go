package memengine

import (
	"context"
	"sync"

	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/eventstore"
)

// subscription walks the arena; every subscriber owns its cursor.
type subscription struct {
	es     *EventStore
	cursor uint64
	done   chan struct{}
	once   sync.Once
}

// Subscribe returns a subscription yielding events with a position greater than fromPosition.
func (es *EventStore) Subscribe(ctx context.Context, fromPosition uint64) (eventstore.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &subscription{es: es, cursor: fromPosition, done: make(chan struct{})}, nil
}

// Next blocks until an event past the cursor exists.
func (s *subscription) Next(ctx context.Context) (eventstore.Event, error) {
	for {
		s.es.mu.RLock()
		if s.cursor < uint64(len(s.es.arena)) {
			event := s.es.arena[s.cursor].Clone()
			s.es.mu.RUnlock()
			s.cursor++

			return event, nil
		}
		committed := s.es.committed
		s.es.mu.RUnlock()

		select {
		case <-ctx.Done():
			return eventstore.Event{}, ctx.Err()
		case <-s.done:
			return eventstore.Event{}, eventstore.ErrSubscriptionClosed
		case <-committed:
		}
	}
}

func (s *subscription) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}
