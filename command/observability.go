package command

import (
	"context"
	"errors"
	"time"

	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/eventstore"
)

const (
	logMsgCommandCommitted  = "command committed"
	logMsgCommandRejected   = "command rejected"
	logMsgCommandState      = "command state"
	logMsgSnapshotSaved     = "snapshot saved"
	logMsgSnapshotFailed    = "snapshot save failed"
	logMsgSnapshotDiscarded = "snapshot could not be decoded, replaying full stream"
	logMsgSnapshotReadFail  = "snapshot read failed, replaying full stream"

	logAttrCommandType = "command_type"
	logAttrAggregateID = "aggregate_id"
	logAttrState       = "state"
	logAttrVersion     = "version"
	logAttrAttempts    = "attempts"
	logAttrEventCount  = "event_count"
	logAttrError       = "error"
	logAttrErrorType   = "error_type"
	logAttrDurationMS  = "duration_ms"

	metricCommandDuration   = "command_duration_seconds"
	metricRetries           = "command_retries_total"
	metricRetryDelay        = "command_retry_delay_seconds"
	metricMaxRetriesReached = "command_max_retries_reached_total"
	metricSnapshots         = "command_snapshots_total"

	labelCommandType    = "command_type"
	labelAttemptNumber  = "attempt_number"
	labelErrorType      = "error_type"
	labelFinalErrorType = "final_error_type"
	labelStatus         = "status"

	spanNameHandle     = "command.handle"
	spanAttrCommand    = "command_type"
	spanAttrAggregate  = "aggregate_id"
	spanAttrVersion    = "version"
	spanAttrAttempts   = "attempts"
	spanAttrErrorType  = "error_type"
	spanAttrEventCount = "event_count"
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

func (c *config) logWarn(ctx context.Context, msg string, args ...any) {
	if c.contextualLogger != nil {
		c.contextualLogger.WarnContext(ctx, msg, args...)
		return
	}

	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
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

func (c *config) startSpan(ctx context.Context, attrs map[string]string) (context.Context, eventstore.SpanContext) {
	if c.tracingCollector == nil {
		return ctx, nil
	}

	return c.tracingCollector.StartSpan(ctx, spanNameHandle, attrs)
}

func (c *config) finishSpan(span eventstore.SpanContext, status string, attrs map[string]string) {
	if span == nil {
		return
	}

	c.tracingCollector.FinishSpan(span, status, attrs)
}

// statusOf maps a processing error to the span and metric status label.
func statusOf(err error) string {
	switch {
	case err == nil:
		return eventstore.StatusSuccess
	case errors.Is(err, eventstore.ErrConcurrencyConflict):
		return eventstore.StatusConflict
	case errors.Is(err, eventstore.ErrValidationFailed):
		return eventstore.StatusRejected
	default:
		return eventstore.StatusError
	}
}

func toMilliseconds(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
