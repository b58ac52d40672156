package oteladapters

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/eventstore"
)

// TracingCollector implements eventstore.TracingCollector on an otel Tracer.
type TracingCollector struct {
	tracer trace.Tracer
}

func NewTracingCollector(tracer trace.Tracer) *TracingCollector {
	return &TracingCollector{tracer: tracer}
}

// StartSpan starts a span carrying attrs and returns the derived context.
func (t *TracingCollector) StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, eventstore.SpanContext) {
	ctx, span := t.tracer.Start(ctx, name, trace.WithAttributes(toAttributes(attrs)...))

	return ctx, &SpanContext{span: span}
}

// FinishSpan adds attrs, maps status onto an otel status code and ends the span.
func (t *TracingCollector) FinishSpan(spanCtx eventstore.SpanContext, status string, attrs map[string]string) {
	span, ok := spanCtx.(*SpanContext)
	if !ok {
		return
	}

	span.span.SetAttributes(toAttributes(attrs)...)
	span.SetStatus(status)
	span.span.End()
}

// SpanContext wraps an otel span.
type SpanContext struct {
	span trace.Span
}

// SetStatus maps eventstore status values. Conflicts and policy rejections are expected
// outcomes, so they are recorded as attributes rather than span errors.
func (s *SpanContext) SetStatus(status string) {
	switch status {
	case eventstore.StatusSuccess:
		s.span.SetStatus(codes.Ok, "")
	case eventstore.StatusError:
		s.span.SetStatus(codes.Error, "operation failed")
	case eventstore.StatusConflict, eventstore.StatusRejected:
		s.span.SetAttributes(attribute.String("outcome", status))
	default:
		s.span.SetAttributes(attribute.String("status", status))
	}
}

func (s *SpanContext) AddAttribute(key, value string) {
	s.span.SetAttributes(attribute.String(key, value))
}

var (
	_ eventstore.TracingCollector = (*TracingCollector)(nil)
	_ eventstore.SpanContext      = (*SpanContext)(nil)
)
