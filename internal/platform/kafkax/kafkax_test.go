package kafkax

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func Test_SplitBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, SplitBrokers(" a:9092, ,b:9092 "))
	assert.Nil(t, SplitBrokers(""))
}

func Test_TraceHeaders_RoundTrip(t *testing.T) {
	// setup
	otel.SetTextMapPropagator(propagation.TraceContext{})
	provider := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	ctx, span := provider.Tracer("test").Start(context.Background(), "publish")
	defer span.End()

	// act
	headers := InjectTraceHeaders(ctx, []kafka.Header{{Key: HeaderEventID, Value: []byte("e1")}})
	extracted := ExtractTraceContext(context.Background(), kafka.Message{Headers: headers})

	// assert
	assert.Equal(t, "e1", HeaderValue(headers, HeaderEventID))
	assert.NotEmpty(t, HeaderValue(headers, "traceparent"))
	assert.Equal(t, span.SpanContext().TraceID(), trace.SpanContextFromContext(extracted).TraceID())
}

func Test_ReadyCheck_WithoutBrokers_Fails(t *testing.T) {
	assert.Error(t, ReadyCheck("")(context.Background()))
}

