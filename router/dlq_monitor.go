package router

import (
	"context"
	"time"
)

// DLQMonitor samples the dead-letter queues of the standard path. It publishes depth and
// oldest age as gauges and raises an alert for every queue whose DLQ is not empty.
type DLQMonitor struct {
	queues func() []Queue
	cfg    settings
}

// NewDLQMonitor monitors the queues returned by queues on every check.
func NewDLQMonitor(queues func() []Queue, options ...Option) (*DLQMonitor, error) {
	cfg, err := applyOptions(options)
	if err != nil {
		return nil, err
	}

	return &DLQMonitor{queues: queues, cfg: cfg}, nil
}

// Check samples every queue once. Queues whose stats could not be read are left out.
func (m *DLQMonitor) Check(ctx context.Context) map[string]QueueStats {
	result := make(map[string]QueueStats)

	for _, queue := range m.queues() {
		stats, err := queue.Stats(ctx)
		if err != nil {
			m.cfg.logWarn(ctx, logMsgDLQCheckFailed, logAttrConsumer, queue.Name(), logAttrError, err.Error())
			continue
		}

		result[queue.Name()] = stats
		m.cfg.metrics.setDLQ(queue.Name(), stats)

		if stats.DLQDepth == 0 {
			continue
		}

		m.cfg.logWarn(ctx, logMsgDLQNotEmpty,
			logAttrConsumer, queue.Name(),
			logAttrDepth, stats.DLQDepth,
			logAttrOldestAge, stats.DLQOldestAge.Seconds())

		if m.cfg.onDLQAlert != nil {
			m.cfg.onDLQAlert(ctx, queue.Name(), stats)
		}
	}

	return result
}

// Run checks on every interval until ctx is done.
func (m *DLQMonitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.checkInterval)
	defer ticker.Stop()

	m.Check(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}
