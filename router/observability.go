package router

import "context"

const (
	logMsgRouterStarted   = "router started"
	logMsgRouted          = "event routed"
	logMsgRouteFailed     = "routing event failed, retrying"
	logMsgFeedFailed      = "change feed read failed"
	logMsgCheckpointFail  = "advancing router checkpoint failed"
	logMsgDelivered       = "message delivered"
	logMsgDeliveryFailed  = "message handler failed"
	logMsgDeadLettered    = "message moved to dead-letter queue"
	logMsgSettleFailed    = "settling message failed"
	logMsgReceiveFailed   = "receiving message failed"
	logMsgDuplicate       = "critical event already processed, skipping"
	logMsgCriticalFailed  = "critical event handler failed, retrying"
	logMsgCriticalRead    = "critical log read failed"
	logMsgDLQNotEmpty     = "dead-letter queue is not empty"
	logMsgDLQCheckFailed  = "dead-letter queue check failed"
	logMsgConsumerStopped = "consumer stopped"

	logAttrConsumer    = "consumer"
	logAttrPath        = "path"
	logAttrEventID     = "event_id"
	logAttrEventType   = "event_type"
	logAttrAggregateID = "aggregate_id"
	logAttrVersion     = "version"
	logAttrPosition    = "position"
	logAttrAttempt     = "attempt"
	logAttrDepth       = "dlq_depth"
	logAttrOldestAge   = "dlq_oldest_age_seconds"
	logAttrError       = "error"
)

func (s *settings) logDebug(ctx context.Context, msg string, args ...any) {
	if s.contextualLogger != nil {
		s.contextualLogger.DebugContext(ctx, msg, args...)
		return
	}

	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

func (s *settings) logInfo(ctx context.Context, msg string, args ...any) {
	if s.contextualLogger != nil {
		s.contextualLogger.InfoContext(ctx, msg, args...)
		return
	}

	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}

func (s *settings) logWarn(ctx context.Context, msg string, args ...any) {
	if s.contextualLogger != nil {
		s.contextualLogger.WarnContext(ctx, msg, args...)
		return
	}

	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}

func (s *settings) logError(ctx context.Context, msg string, err error, args ...any) {
	allArgs := append([]any{logAttrError, err.Error()}, args...)

	if s.contextualLogger != nil {
		s.contextualLogger.ErrorContext(ctx, msg, allArgs...)
		return
	}

	if s.logger != nil {
		s.logger.Error(msg, allArgs...)
	}
}
