package router

import (
	"context"
	"errors"
	"time"
)

const (
	// DefaultVisibilityTimeout hides a received message from other receivers.
	DefaultVisibilityTimeout = 30 * time.Second

	// DefaultMaxAttempts is the number of deliveries before a message is dead-lettered.
	DefaultMaxAttempts = 5
)

var (
	// ErrNoMessage is returned by Receive when no message is visible.
	ErrNoMessage = errors.New("no visible message")

	// ErrUnknownReceipt is returned for receipts that expired or were already settled.
	ErrUnknownReceipt = errors.New("receipt is unknown or expired")

	// ErrInvalidQueueConfig is returned for a non-positive visibility timeout or max attempts.
	ErrInvalidQueueConfig = errors.New("visibility timeout and max attempts must be positive")
)

// QueueConfig bounds redelivery.
type QueueConfig struct {
	VisibilityTimeout time.Duration
	MaxAttempts       int
}

// DefaultQueueConfig returns a 30s visibility timeout and 5 attempts.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{VisibilityTimeout: DefaultVisibilityTimeout, MaxAttempts: DefaultMaxAttempts}
}

func (c QueueConfig) validate() error {
	if c.VisibilityTimeout <= 0 || c.MaxAttempts <= 0 {
		return ErrInvalidQueueConfig
	}

	return nil
}

// QueueStats is a point-in-time view of a queue.
type QueueStats struct {
	Visible      int           `json:"visible"`
	InFlight     int           `json:"inFlight"`
	DLQDepth     int           `json:"dlqDepth"`
	DLQOldestAge time.Duration `json:"dlqOldestAge"`
}

// Queue is the per-consumer queue of the standard path.
//
// A message is always in exactly one place: visible, in flight (received but not settled),
// or in the dead-letter queue. Receiving a message whose attempts are used up moves it to
// the dead-letter queue instead of delivering it.
type Queue interface {
	Name() string
	Send(ctx context.Context, msg Message) error
	Receive(ctx context.Context) (Delivery, error)
	Ack(ctx context.Context, receipt string) error

	// Nack makes the message visible again after delay, or dead-letters it when its attempts
	// are used up. deadLettered reports which one happened.
	Nack(ctx context.Context, receipt string, delay time.Duration) (deadLettered bool, err error)

	DeadLetters(ctx context.Context, limit int) ([]DeadLetter, error)
	Redrive(ctx context.Context, limit int) (int, error)
	Stats(ctx context.Context) (QueueStats, error)
}
