package helper

import (
	"context"
	"maps"
	"sync"

	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/eventstore"
)

// SpySpanContext records attributes and status set during a span.
type SpySpanContext struct {
	mu         sync.Mutex
	status     string
	attributes map[string]string
}

func (c *SpySpanContext) SetStatus(status string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = status
}

func (c *SpySpanContext) AddAttribute(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attributes[key] = value
}

// SpySpanRecord is one started span. Status and EndAttributes are set once it finished.
type SpySpanRecord struct {
	Name            string
	StartAttributes map[string]string
	EndAttributes   map[string]string
	Status          string
	Finished        bool
	span            *SpySpanContext
}

// TracingCollectorSpy captures eventstore.TracingCollector calls.
type TracingCollectorSpy struct {
	mu    sync.Mutex
	spans []SpySpanRecord
}

func NewTracingCollectorSpy() *TracingCollectorSpy {
	return &TracingCollectorSpy{}
}

func (s *TracingCollectorSpy) StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, eventstore.SpanContext) {
	s.mu.Lock()
	defer s.mu.Unlock()

	span := &SpySpanContext{attributes: make(map[string]string)}
	s.spans = append(s.spans, SpySpanRecord{Name: name, StartAttributes: maps.Clone(attrs), span: span})

	return ctx, span
}

func (s *TracingCollectorSpy) FinishSpan(spanCtx eventstore.SpanContext, status string, attrs map[string]string) {
	span, ok := spanCtx.(*SpySpanContext)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.spans {
		if s.spans[i].span == span {
			s.spans[i].Status = status
			s.spans[i].EndAttributes = maps.Clone(attrs)
			s.spans[i].Finished = true
			return
		}
	}
}

// Spans returns the captured spans with the given name.
func (s *TracingCollectorSpy) Spans(name string) []SpySpanRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []SpySpanRecord
	for _, record := range s.spans {
		if record.Name == name {
			out = append(out, record)
		}
	}

	return out
}

var _ eventstore.TracingCollector = (*TracingCollectorSpy)(nil)
