package oteladapters_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/eventstore"
	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/eventstore/oteladapters"
)

func newTracing() (*oteladapters.TracingCollector, *tracetest.InMemoryExporter) {
	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	return oteladapters.NewTracingCollector(provider.Tracer("test")), exporter
}

func hasAttribute(span tracetest.SpanStub, key, value string) bool {
	for _, attr := range span.Attributes {
		if attr.Key == attribute.Key(key) && attr.Value.AsString() == value {
			return true
		}
	}

	return false
}

func Test_TracingCollector_StartAndFinish(t *testing.T) {
	// setup
	collector, exporter := newTracing()

	// act
	ctx, span := collector.StartSpan(context.Background(), "eventstore.append", map[string]string{"aggregate_id": "order-1"})
	collector.FinishSpan(span, eventstore.StatusSuccess, map[string]string{"event_count": "2"})

	// assert
	assert.NotNil(t, ctx)
	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "eventstore.append", spans[0].Name)
	assert.Equal(t, codes.Ok, spans[0].Status.Code)
	assert.True(t, hasAttribute(spans[0], "aggregate_id", "order-1"))
	assert.True(t, hasAttribute(spans[0], "event_count", "2"))
}

func Test_TracingCollector_StatusMapping(t *testing.T) {
	testCases := []struct {
		status       string
		expectedCode codes.Code
		outcome      string
	}{
		{status: eventstore.StatusError, expectedCode: codes.Error},
		{status: eventstore.StatusConflict, expectedCode: codes.Unset, outcome: "conflict"},
		{status: eventstore.StatusRejected, expectedCode: codes.Unset, outcome: "rejected"},
	}

	for _, tc := range testCases {
		t.Run(tc.status, func(t *testing.T) {
			// setup
			collector, exporter := newTracing()

			// act
			_, span := collector.StartSpan(context.Background(), "op", nil)
			collector.FinishSpan(span, tc.status, nil)

			// assert
			spans := exporter.GetSpans()
			require.Len(t, spans, 1)
			assert.Equal(t, tc.expectedCode, spans[0].Status.Code)
			if tc.outcome != "" {
				assert.True(t, hasAttribute(spans[0], "outcome", tc.outcome))
			}
		})
	}
}

func Test_TracingCollector_ChildSpans_ShareTheTrace(t *testing.T) {
	// setup
	collector, exporter := newTracing()

	// act
	ctx, parent := collector.StartSpan(context.Background(), "command.process", nil)
	_, child := collector.StartSpan(ctx, "eventstore.append", nil)
	collector.FinishSpan(child, eventstore.StatusSuccess, nil)
	collector.FinishSpan(parent, eventstore.StatusSuccess, nil)

	// assert
	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, spans[0].SpanContext.TraceID(), spans[1].SpanContext.TraceID())
	assert.Equal(t, spans[1].SpanContext.SpanID(), spans[0].Parent.SpanID())
}
