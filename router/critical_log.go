package router

import (
	"context"
	"errors"
	"sync"

	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/eventstore"
)

// ErrLogClosed is returned by readers of a closed log.
var ErrLogClosed = errors.New("critical log closed")

// CriticalLog is the ordered channel of the critical path. Events of one aggregate are
// read back in the order they were published.
type CriticalLog interface {
	Publish(ctx context.Context, event eventstore.Event) error

	// Reader opens a reader for a consumer group. Groups progress independently.
	Reader(group string) (CriticalReader, error)
}

// CriticalReader pulls events for one consumer group.
type CriticalReader interface {
	// Next blocks until an event is available. The returned context carries any trace
	// context published with the event.
	Next(ctx context.Context) (context.Context, eventstore.Event, error)

	// Commit marks event as processed for the group. Uncommitted events are read again
	// by the next reader of the group.
	Commit(ctx context.Context, event eventstore.Event) error

	Close() error
}

// MemoryLog is an in-process CriticalLog with a single partition.
type MemoryLog struct {
	mu      sync.Mutex
	events  []eventstore.Event
	offsets map[string]int
	notify  chan struct{}
	closed  bool
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{offsets: make(map[string]int), notify: make(chan struct{})}
}

func (l *MemoryLog) Publish(ctx context.Context, event eventstore.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrLogClosed
	}

	l.events = append(l.events, event)
	close(l.notify)
	l.notify = make(chan struct{})

	return nil
}

// Reader starts at the group's committed offset.
func (l *MemoryLog) Reader(group string) (CriticalReader, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return &memoryLogReader{log: l, group: group, next: l.offsets[group]}, nil
}

// Len returns the number of published events.
func (l *MemoryLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.events)
}

// Close wakes every blocked reader.
func (l *MemoryLog) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.closed {
		l.closed = true
		close(l.notify)
	}
}

type memoryLogReader struct {
	log   *MemoryLog
	group string
	next  int
}

func (r *memoryLogReader) Next(ctx context.Context) (context.Context, eventstore.Event, error) {
	for {
		r.log.mu.Lock()
		if r.next < len(r.log.events) {
			event := r.log.events[r.next]
			r.next++
			r.log.mu.Unlock()

			return ctx, event, nil
		}

		closed := r.log.closed
		notify := r.log.notify
		r.log.mu.Unlock()

		if closed {
			return ctx, eventstore.Event{}, ErrLogClosed
		}

		select {
		case <-ctx.Done():
			return ctx, eventstore.Event{}, ctx.Err()
		case <-notify:
		}
	}
}

// Commit stores the offset after event. Commits are cumulative like Kafka offsets.
func (r *memoryLogReader) Commit(ctx context.Context, event eventstore.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.log.mu.Lock()
	defer r.log.mu.Unlock()

	for i := r.log.offsets[r.group]; i < len(r.log.events); i++ {
		if r.log.events[i].EventID == event.EventID {
			r.log.offsets[r.group] = i + 1
			return nil
		}
	}

	return nil
}

func (r *memoryLogReader) Close() error {
	return nil
}

var _ CriticalLog = (*MemoryLog)(nil)
