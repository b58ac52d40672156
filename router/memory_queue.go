package router

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type queueEntry struct {
	msg            Message
	attempts       int
	invisibleUntil time.Time
	receipt        string
}

// MemoryQueue is an in-process Queue. It is safe for concurrent use.
type MemoryQueue struct {
	mu          sync.Mutex
	name        string
	cfg         QueueConfig
	clock       func() time.Time
	entries     []*queueEntry
	deadLetters []DeadLetter
}

// NewMemoryQueue creates an empty queue. A nil clock uses time.Now.
func NewMemoryQueue(name string, cfg QueueConfig, clock func() time.Time) (*MemoryQueue, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if clock == nil {
		clock = time.Now
	}

	return &MemoryQueue{name: name, cfg: cfg, clock: clock}, nil
}

func (q *MemoryQueue) Name() string {
	return q.name
}

// Send enqueues msg unless a live message with the same id exists.
func (q *MemoryQueue) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	for _, entry := range q.entries {
		if entry.msg.ID == msg.ID {
			return nil
		}
	}

	q.entries = append(q.entries, &queueEntry{msg: msg})

	return nil
}

// Receive returns the oldest visible message and hides it for the visibility timeout.
func (q *MemoryQueue) Receive(ctx context.Context) (Delivery, error) {
	if err := ctx.Err(); err != nil {
		return Delivery{}, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.clock()
	q.deadLetterExhausted(now)

	for _, entry := range q.entries {
		if entry.invisibleUntil.After(now) {
			continue
		}

		entry.attempts++
		entry.invisibleUntil = now.Add(q.cfg.VisibilityTimeout)
		entry.receipt = entry.msg.ID + ":" + uuid.NewString()

		return Delivery{Message: entry.msg, Receipt: entry.receipt, Attempt: entry.attempts, ReceivedAt: now}, nil
	}

	return Delivery{}, ErrNoMessage
}

// deadLetterExhausted moves visible messages without attempts left. Callers hold the lock.
func (q *MemoryQueue) deadLetterExhausted(now time.Time) {
	live := q.entries[:0]

	for _, entry := range q.entries {
		if entry.attempts >= q.cfg.MaxAttempts && !entry.invisibleUntil.After(now) {
			q.deadLetters = append(q.deadLetters, DeadLetter{Message: entry.msg, Attempts: entry.attempts, DeadLetteredAt: now})
			continue
		}

		live = append(live, entry)
	}

	clear(q.entries[len(live):])
	q.entries = live
}

func (q *MemoryQueue) Ack(ctx context.Context, receipt string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	index := q.findReceipt(receipt)
	if index < 0 {
		return ErrUnknownReceipt
	}

	q.entries = append(q.entries[:index], q.entries[index+1:]...)

	return nil
}

func (q *MemoryQueue) Nack(ctx context.Context, receipt string, delay time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	index := q.findReceipt(receipt)
	if index < 0 {
		return false, ErrUnknownReceipt
	}

	now := q.clock()
	entry := q.entries[index]
	entry.receipt = ""

	if entry.attempts >= q.cfg.MaxAttempts {
		q.entries = append(q.entries[:index], q.entries[index+1:]...)
		q.deadLetters = append(q.deadLetters, DeadLetter{Message: entry.msg, Attempts: entry.attempts, DeadLetteredAt: now})

		return true, nil
	}

	entry.invisibleUntil = now.Add(delay)

	return false, nil
}

// findReceipt only matches receipts whose visibility window is still open.
func (q *MemoryQueue) findReceipt(receipt string) int {
	if receipt == "" {
		return -1
	}

	now := q.clock()
	for i, entry := range q.entries {
		if entry.receipt == receipt && entry.invisibleUntil.After(now) {
			return i
		}
	}

	return -1
}

// DeadLetters returns up to limit dead letters, oldest first. A limit of zero returns all.
func (q *MemoryQueue) DeadLetters(ctx context.Context, limit int) ([]DeadLetter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.deadLetterExhausted(q.clock())

	if limit <= 0 || limit > len(q.deadLetters) {
		limit = len(q.deadLetters)
	}

	return append([]DeadLetter(nil), q.deadLetters[:limit]...), nil
}

// Redrive moves up to limit dead letters back into the live queue with fresh attempts.
func (q *MemoryQueue) Redrive(ctx context.Context, limit int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if limit <= 0 || limit > len(q.deadLetters) {
		limit = len(q.deadLetters)
	}

	for _, deadLetter := range q.deadLetters[:limit] {
		q.entries = append(q.entries, &queueEntry{msg: deadLetter.Message})
	}

	q.deadLetters = append([]DeadLetter(nil), q.deadLetters[limit:]...)

	return limit, nil
}

func (q *MemoryQueue) Stats(ctx context.Context) (QueueStats, error) {
	if err := ctx.Err(); err != nil {
		return QueueStats{}, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.clock()
	q.deadLetterExhausted(now)

	var stats QueueStats
	for _, entry := range q.entries {
		if entry.invisibleUntil.After(now) {
			stats.InFlight++
		} else {
			stats.Visible++
		}
	}

	stats.DLQDepth = len(q.deadLetters)
	if stats.DLQDepth > 0 {
		stats.DLQOldestAge = now.Sub(q.deadLetters[0].DeadLetteredAt)
	}

	return stats, nil
}

var _ Queue = (*MemoryQueue)(nil)
