package projection

import (
	"context"
	"time"

	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/eventstore"
)

const (
	logMsgApplied        = "projection applied event"
	logMsgSkipped        = "projection skipped already applied event"
	logMsgCatchUp        = "projection detected a version gap, catching up"
	logMsgRebuilt        = "projection rebuilt"
	logMsgRebuildStarted = "projection rebuild started"

	logAttrProjection  = "projection"
	logAttrAggregateID = "aggregate_id"
	logAttrEventType   = "event_type"
	logAttrVersion     = "version"
	logAttrCheckpoint  = "checkpoint"
	logAttrEvents      = "events"
	logAttrRecords     = "records"
	logAttrDurationMS  = "duration_ms"

	metricApplied        = "projection_events_applied_total"
	metricSkipped        = "projection_events_skipped_total"
	metricCatchUps       = "projection_catch_ups_total"
	metricRebuildSeconds = "projection_rebuild_duration_seconds"
)

func (c *config) logDebug(ctx context.Context, msg string, args ...any) {
	if c.contextualLogger != nil {
		c.contextualLogger.DebugContext(ctx, msg, args...)
		return
	}

	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}

func (c *config) logInfo(ctx context.Context, msg string, args ...any) {
	if c.contextualLogger != nil {
		c.contextualLogger.InfoContext(ctx, msg, args...)
		return
	}

	if c.logger != nil {
		c.logger.Info(msg, args...)
	}
}

func (c *config) incrementCounter(ctx context.Context, metric string, labels map[string]string) {
	if c.metricsCollector == nil {
		return
	}

	if contextual, ok := c.metricsCollector.(eventstore.ContextualMetricsCollector); ok {
		contextual.IncrementCounterContext(ctx, metric, labels)
		return
	}

	c.metricsCollector.IncrementCounter(metric, labels)
}

func (c *config) recordDuration(ctx context.Context, metric string, duration time.Duration, labels map[string]string) {
	if c.metricsCollector == nil {
		return
	}

	if contextual, ok := c.metricsCollector.(eventstore.ContextualMetricsCollector); ok {
		contextual.RecordDurationContext(ctx, metric, duration, labels)
		return
	}

	c.metricsCollector.RecordDuration(metric, duration, labels)
}
