package helper

import (
	"maps"
	"sync"
	"time"
)

// MetricsCollectorSpy captures eventstore.MetricsCollector calls.
type MetricsCollectorSpy struct {
	mu        sync.Mutex
	durations []SpyMetricRecord
	counters  []SpyMetricRecord
	values    []SpyMetricRecord
}

// SpyMetricRecord is one captured call. Duration or Value is set depending on the kind.
type SpyMetricRecord struct {
	Metric   string
	Duration time.Duration
	Value    float64
	Labels   map[string]string
}

func NewMetricsCollectorSpy() *MetricsCollectorSpy {
	return &MetricsCollectorSpy{}
}

func (s *MetricsCollectorSpy) RecordDuration(metric string, duration time.Duration, labels map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.durations = append(s.durations, SpyMetricRecord{Metric: metric, Duration: duration, Labels: maps.Clone(labels)})
}

func (s *MetricsCollectorSpy) IncrementCounter(metric string, labels map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters = append(s.counters, SpyMetricRecord{Metric: metric, Labels: maps.Clone(labels)})
}

func (s *MetricsCollectorSpy) RecordValue(metric string, value float64, labels map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = append(s.values, SpyMetricRecord{Metric: metric, Value: value, Labels: maps.Clone(labels)})
}

// CountCounter counts increments of the metric whose labels contain every given label.
func (s *MetricsCollectorSpy) CountCounter(metric string, labels map[string]string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return countMatching(s.counters, metric, labels)
}

// CountDurations counts duration records of the metric whose labels contain every given label.
func (s *MetricsCollectorSpy) CountDurations(metric string, labels map[string]string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return countMatching(s.durations, metric, labels)
}

func countMatching(records []SpyMetricRecord, metric string, labels map[string]string) int {
	count := 0

	for _, record := range records {
		if record.Metric != metric {
			continue
		}

		matches := true
		for key, value := range labels {
			if record.Labels[key] != value {
				matches = false
				break
			}
		}

		if matches {
			count++
		}
	}

	return count
}
