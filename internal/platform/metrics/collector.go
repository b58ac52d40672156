package metrics

import (
	"context"
	"maps"
	"regexp"
	"slices"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/trace"

	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/eventstore"
)

var invalidNameChars = regexp.MustCompile(`[^a-zA-Z0-9_:]`)

// Collector implements eventstore.ContextualMetricsCollector on Prometheus. Vectors are
// created on first use; the label names seen first for a metric stay fixed for its lifetime.
type Collector struct {
	factory   promauto.Factory
	namespace string

	mu         sync.Mutex
	histograms map[string]*histogramVec
	counters   map[string]*counterVec
	gauges     map[string]*gaugeVec
}

type histogramVec struct {
	labels []string
	vec    *prometheus.HistogramVec
}

type counterVec struct {
	labels []string
	vec    *prometheus.CounterVec
}

type gaugeVec struct {
	labels []string
	vec    *prometheus.GaugeVec
}

// NewCollector registers metrics lazily with registerer under namespace.
func NewCollector(registerer prometheus.Registerer, namespace string) *Collector {
	return &Collector{
		factory:    promauto.With(registerer),
		namespace:  namespace,
		histograms: make(map[string]*histogramVec),
		counters:   make(map[string]*counterVec),
		gauges:     make(map[string]*gaugeVec),
	}
}

func (c *Collector) RecordDuration(metric string, duration time.Duration, labels map[string]string) {
	c.RecordDurationContext(context.Background(), metric, duration, labels)
}

func (c *Collector) IncrementCounter(metric string, labels map[string]string) {
	c.IncrementCounterContext(context.Background(), metric, labels)
}

func (c *Collector) RecordValue(metric string, value float64, labels map[string]string) {
	c.RecordValueContext(context.Background(), metric, value, labels)
}

// RecordDurationContext attaches the trace id as an exemplar when the context carries a sampled span.
func (c *Collector) RecordDurationContext(ctx context.Context, metric string, duration time.Duration, labels map[string]string) {
	h := c.histogram(metric, labels)
	observer := h.vec.WithLabelValues(labelValues(h.labels, labels)...)

	if exemplar := exemplarFrom(ctx); exemplar != nil {
		if eo, ok := observer.(prometheus.ExemplarObserver); ok {
			eo.ObserveWithExemplar(duration.Seconds(), exemplar)
			return
		}
	}

	observer.Observe(duration.Seconds())
}

func (c *Collector) IncrementCounterContext(ctx context.Context, metric string, labels map[string]string) {
	cv := c.counter(metric, labels)
	counter := cv.vec.WithLabelValues(labelValues(cv.labels, labels)...)

	if exemplar := exemplarFrom(ctx); exemplar != nil {
		if ea, ok := counter.(prometheus.ExemplarAdder); ok {
			ea.AddWithExemplar(1, exemplar)
			return
		}
	}

	counter.Inc()
}

func (c *Collector) RecordValueContext(_ context.Context, metric string, value float64, labels map[string]string) {
	g := c.gauge(metric, labels)
	g.vec.WithLabelValues(labelValues(g.labels, labels)...).Set(value)
}

func (c *Collector) histogram(metric string, labels map[string]string) *histogramVec {
	c.mu.Lock()
	defer c.mu.Unlock()

	if h, ok := c.histograms[metric]; ok {
		return h
	}

	names := labelNames(labels)
	h := &histogramVec{
		labels: names,
		vec: c.factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: c.namespace,
			Name:      sanitize(metric),
			Help:      "Duration of " + metric,
			Buckets:   prometheus.DefBuckets,
		}, names),
	}
	c.histograms[metric] = h

	return h
}

func (c *Collector) counter(metric string, labels map[string]string) *counterVec {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cv, ok := c.counters[metric]; ok {
		return cv
	}

	names := labelNames(labels)
	cv := &counterVec{
		labels: names,
		vec: c.factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: c.namespace,
			Name:      sanitize(metric),
			Help:      "Count of " + metric,
		}, names),
	}
	c.counters[metric] = cv

	return cv
}

func (c *Collector) gauge(metric string, labels map[string]string) *gaugeVec {
	c.mu.Lock()
	defer c.mu.Unlock()

	if g, ok := c.gauges[metric]; ok {
		return g
	}

	names := labelNames(labels)
	g := &gaugeVec{
		labels: names,
		vec: c.factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: c.namespace,
			Name:      sanitize(metric),
			Help:      "Last value of " + metric,
		}, names),
	}
	c.gauges[metric] = g

	return g
}

func labelNames(labels map[string]string) []string {
	names := slices.Sorted(maps.Keys(labels))
	for i, name := range names {
		names[i] = sanitize(name)
	}

	return names
}

// labelValues orders values by the vector's label names. Missing labels are empty and
// labels the vector does not know are dropped.
func labelValues(names []string, labels map[string]string) []string {
	sanitized := make(map[string]string, len(labels))
	for k, v := range labels {
		sanitized[sanitize(k)] = v
	}

	values := make([]string, len(names))
	for i, name := range names {
		values[i] = sanitized[name]
	}

	return values
}

func sanitize(name string) string {
	return invalidNameChars.ReplaceAllString(name, "_")
}

func exemplarFrom(ctx context.Context) prometheus.Labels {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsSampled() {
		return nil
	}

	return prometheus.Labels{"trace_id": spanCtx.TraceID().String()}
}

var _ eventstore.ContextualMetricsCollector = (*Collector)(nil)
