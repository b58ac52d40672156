package postgresengine

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/eventstore"
)

var (
	// ErrBuildingQueryFailed is returned when goqu cannot render a statement.
	ErrBuildingQueryFailed = errors.New("building query failed")

	// ErrScanningDBRowFailed is returned when a row does not match the expected layout.
	ErrScanningDBRowFailed = errors.New("scanning db row failed")

	// ErrMigrationFailed is returned when the schema could not be created.
	ErrMigrationFailed = errors.New("creating event store tables failed")
)

const (
	logMsgBuildSelectQueryFailed = "failed to build select query"
	logMsgBuildInsertQueryFailed = "failed to build insert query"
	logMsgDBQueryFailed          = "database query execution failed"
	logMsgDBExecFailed           = "database execution failed during event append"
	logMsgScanRowFailed          = "failed to scan database row"
	logMsgCloseRowsFailed        = "failed to close database rows"
	logMsgVersionLookupFailed    = "failed to look up the actual version after a conflict"
	logMsgEventsAppended         = "events appended"
	logMsgConcurrencyConflict    = "concurrency conflict detected"
	logMsgSnapshotSaved          = "snapshot saved"
	logMsgFeedGapDeferred        = "change feed gap deferred after tolerance elapsed"
	logMsgFeedGapRecovered       = "change feed late event recovered"
	logMsgFeedGapAbandoned       = "change feed gap abandoned after retention elapsed"
	logMsgSQLExecuted            = "executed sql for: "
	logMsgOperation              = "eventstore operation: "
	logAttrError                 = "error"
	logAttrQuery                 = "query"
	logAttrAggregateID           = "aggregate_id"
	logAttrEventType             = "event_type"
	logAttrEventCount            = "event_count"
	logAttrVersion               = "version"
	logAttrExpectedVersion       = "expected_version"
	logAttrActualVersion         = "actual_version"
	logAttrDurationMS            = "duration_ms"
	logAttrFromPosition          = "from_position"
	logAttrToPosition            = "to_position"
	logAttrPosition              = "position"
	logAttrPendingCount          = "pending_count"
	logActionAppend              = "append"
	logActionReadEvents          = "read_events"
	logActionReadAll             = "read_all"
	logActionReadPositions       = "read_positions"
	logActionSnapshot            = "snapshot"

	metricAppendDuration       = "eventstore_append_duration_seconds"
	metricReadDuration         = "eventstore_read_duration_seconds"
	metricEventsAppended       = "eventstore_events_appended_total"
	metricEventsRead           = "eventstore_events_read_total"
	metricConcurrencyConflicts = "eventstore_concurrency_conflicts_total"
	metricDatabaseErrors       = "eventstore_database_errors_total"

	spanNameAppend          = "eventstore.append"
	spanNameRead            = "eventstore.read"
	spanAttrOperation       = "operation"
	spanAttrAggregateID     = "aggregate_id"
	spanAttrEventCount      = "event_count"
	spanAttrExpectedVersion = "expected_version"
	spanAttrActualVersion   = "actual_version"
	spanAttrErrorType       = "error_type"

	labelOperation = "operation"
	labelStatus    = "status"
	labelErrorType = "error_type"
	labelEngine    = "engine"
	engineName     = "postgres"

	errorTypeBuildEvents   = "build_events_error"
	errorTypeBuildQuery    = "build_query_error"
	errorTypeDatabaseExec  = "database_exec_error"
	errorTypeDatabaseQuery = "database_query_error"
	errorTypeRowScan       = "row_scan_error"
)

// logQueryWithDuration logs SQL at debug level. The contextual logger wins when both are set.
func (es *EventStore) logQueryWithDuration(ctx context.Context, sqlQuery, action string, duration time.Duration) {
	args := []any{logAttrDurationMS, toMilliseconds(duration), logAttrQuery, sqlQuery}

	if es.contextualLogger != nil {
		es.contextualLogger.DebugContext(ctx, logMsgSQLExecuted+action, args...)
		return
	}

	if es.logger != nil {
		es.logger.Debug(logMsgSQLExecuted+action, args...)
	}
}

// logOperation logs operational information at info level.
func (es *EventStore) logOperation(ctx context.Context, action string, args ...any) {
	if es.contextualLogger != nil {
		es.contextualLogger.InfoContext(ctx, logMsgOperation+action, args...)
		return
	}

	if es.logger != nil {
		es.logger.Info(logMsgOperation+action, args...)
	}
}

func (es *EventStore) logWarn(ctx context.Context, message string, args ...any) {
	if es.contextualLogger != nil {
		es.contextualLogger.WarnContext(ctx, message, args...)
		return
	}

	if es.logger != nil {
		es.logger.Warn(message, args...)
	}
}

func (es *EventStore) logError(ctx context.Context, message string, err error, args ...any) {
	allArgs := append([]any{logAttrError, err.Error()}, args...)

	if es.contextualLogger != nil {
		es.contextualLogger.ErrorContext(ctx, message, allArgs...)
		return
	}

	if es.logger != nil {
		es.logger.Error(message, allArgs...)
	}
}

// toMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}

// === Metrics Observer Pattern ===

type operationMetricsObserver struct {
	es        *EventStore
	ctx       context.Context
	operation string
	duration  string
	count     string
}

func (es *EventStore) startAppendMetrics(ctx context.Context) *appendMetricsObserver {
	return &appendMetricsObserver{operationMetricsObserver{
		es:        es,
		ctx:       ctx,
		operation: logActionAppend,
		duration:  metricAppendDuration,
		count:     metricEventsAppended,
	}}
}

func (es *EventStore) startReadMetrics(ctx context.Context, operation string) *operationMetricsObserver {
	return &operationMetricsObserver{
		es:        es,
		ctx:       ctx,
		operation: operation,
		duration:  metricReadDuration,
		count:     metricEventsRead,
	}
}

func (o *operationMetricsObserver) labels(status string) map[string]string {
	return map[string]string{labelOperation: o.operation, labelStatus: status, labelEngine: engineName}
}

func (o *operationMetricsObserver) recordSuccess(eventCount int, duration time.Duration) {
	o.es.recordDuration(o.ctx, o.duration, duration, o.labels(eventstore.StatusSuccess))
	o.es.recordValue(o.ctx, o.count, float64(eventCount), o.labels(eventstore.StatusSuccess))
}

func (o *operationMetricsObserver) recordError(errorType string, duration time.Duration) {
	o.es.recordDuration(o.ctx, o.duration, duration, o.labels(eventstore.StatusError))

	labels := o.labels(eventstore.StatusError)
	labels[labelErrorType] = errorType
	o.es.incrementCounter(o.ctx, metricDatabaseErrors, labels)
}

type appendMetricsObserver struct {
	operationMetricsObserver
}

func (a *appendMetricsObserver) recordConcurrencyConflict() {
	a.es.incrementCounter(a.ctx, metricConcurrencyConflicts, map[string]string{labelEngine: engineName})
}

func (es *EventStore) recordDuration(ctx context.Context, metric string, duration time.Duration, labels map[string]string) {
	if es.metricsCollector == nil {
		return
	}

	if contextual, ok := es.metricsCollector.(eventstore.ContextualMetricsCollector); ok {
		contextual.RecordDurationContext(ctx, metric, duration, labels)
		return
	}

	es.metricsCollector.RecordDuration(metric, duration, labels)
}

func (es *EventStore) recordValue(ctx context.Context, metric string, value float64, labels map[string]string) {
	if es.metricsCollector == nil {
		return
	}

	if contextual, ok := es.metricsCollector.(eventstore.ContextualMetricsCollector); ok {
		contextual.RecordValueContext(ctx, metric, value, labels)
		return
	}

	es.metricsCollector.RecordValue(metric, value, labels)
}

func (es *EventStore) incrementCounter(ctx context.Context, metric string, labels map[string]string) {
	if es.metricsCollector == nil {
		return
	}

	if contextual, ok := es.metricsCollector.(eventstore.ContextualMetricsCollector); ok {
		contextual.IncrementCounterContext(ctx, metric, labels)
		return
	}

	es.metricsCollector.IncrementCounter(metric, labels)
}

// === Tracing Observer Pattern ===

type readTracingObserver struct {
	es   *EventStore
	span eventstore.SpanContext
}

type appendTracingObserver struct {
	readTracingObserver
}

func (es *EventStore) startTraceSpan(
	ctx context.Context,
	name string,
	attrs map[string]string,
) (context.Context, eventstore.SpanContext) {

	if es.tracingCollector == nil {
		return ctx, nil
	}

	return es.tracingCollector.StartSpan(ctx, name, attrs)
}

func (es *EventStore) startReadTracing(ctx context.Context, operation string) (*readTracingObserver, context.Context) {
	ctx, span := es.startTraceSpan(ctx, spanNameRead, map[string]string{spanAttrOperation: operation})

	return &readTracingObserver{es: es, span: span}, ctx
}

func (es *EventStore) startAppendTracing(
	ctx context.Context,
	aggregateID string,
	eventCount int,
	expectedVersion uint64,
) (*appendTracingObserver, context.Context) {

	ctx, span := es.startTraceSpan(ctx, spanNameAppend, map[string]string{
		spanAttrOperation:       logActionAppend,
		spanAttrAggregateID:     aggregateID,
		spanAttrEventCount:      strconv.Itoa(eventCount),
		spanAttrExpectedVersion: strconv.FormatUint(expectedVersion, 10),
	})

	return &appendTracingObserver{readTracingObserver{es: es, span: span}}, ctx
}

func (o *readTracingObserver) finish(status string, attrs map[string]string) {
	if o.span == nil {
		return
	}

	o.es.tracingCollector.FinishSpan(o.span, status, attrs)
}

func (o *readTracingObserver) finishSuccess(eventCount int) {
	o.finish(eventstore.StatusSuccess, map[string]string{spanAttrEventCount: strconv.Itoa(eventCount)})
}

func (o *readTracingObserver) finishError(errorType string) {
	o.finish(eventstore.StatusError, map[string]string{spanAttrErrorType: errorType})
}

func (o *appendTracingObserver) finishConflict(expected, actual uint64) {
	o.finish(eventstore.StatusConflict, map[string]string{
		spanAttrExpectedVersion: strconv.FormatUint(expected, 10),
		spanAttrActualVersion:   strconv.FormatUint(actual, 10),
	})
}
