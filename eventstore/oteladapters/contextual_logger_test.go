package oteladapters_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/embedded"

	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/eventstore/oteladapters"
)

type recordingLogger struct {
	embedded.Logger
	records []log.Record
}

func (r *recordingLogger) Emit(_ context.Context, record log.Record) {
	r.records = append(r.records, record)
}

func (r *recordingLogger) Enabled(context.Context, log.EnabledParameters) bool {
	return true
}

func Test_OTelLogger_ConvertsKeyValuePairs(t *testing.T) {
	// setup
	sink := &recordingLogger{}
	logger := oteladapters.NewOTelLogger(sink)

	// act
	logger.WarnContext(context.Background(), "dead letter queue not empty", "consumer", "billing", "depth", 3, "dangling")

	// assert
	require.Len(t, sink.records, 1)
	record := sink.records[0]
	assert.Equal(t, log.SeverityWarn, record.Severity())
	assert.Equal(t, "dead letter queue not empty", record.Body().AsString())

	attrs := map[string]log.Value{}
	record.WalkAttributes(func(kv log.KeyValue) bool {
		attrs[kv.Key] = kv.Value
		return true
	})
	assert.Len(t, attrs, 2)
	assert.Equal(t, "billing", attrs["consumer"].AsString())
	assert.Equal(t, int64(3), attrs["depth"].AsInt64())
}
