// Package oteladapters bridges the eventstore observability interfaces to OpenTelemetry.
//
// The store engines, the command processor and the event router only know
// eventstore.MetricsCollector, eventstore.TracingCollector and eventstore.ContextualLogger.
// This package implements them on top of an otel Meter, Tracer and the otelslog bridge so
// cmd/eventsd can export everything over OTLP.
package oteladapters
