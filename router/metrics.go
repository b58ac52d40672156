package router

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Delivery outcomes used as the "outcome" label.
const (
	OutcomeAcked        = "acked"
	OutcomeRetried      = "retried"
	OutcomeDeadLettered = "dead_lettered"
	OutcomeDuplicate    = "duplicate"
	OutcomeProcessed    = "processed"
	OutcomeAbandoned    = "abandoned"
)

// Metrics are the operational signals of the router. A nil *Metrics records nothing.
type Metrics struct {
	routed       *prometheus.CounterVec
	deliveries   *prometheus.CounterVec
	deadLettered *prometheus.CounterVec
	inFlight     *prometheus.GaugeVec
	dlqDepth     *prometheus.GaugeVec
	dlqOldestAge *prometheus.GaugeVec
}

// NewMetrics registers the router metrics with registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)

	return &Metrics{
		routed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nexus_router_routed_total",
			Help: "Committed events handed to a distribution path",
		}, []string{"path"}),
		deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nexus_router_deliveries_total",
			Help: "Delivery attempts per path, consumer and outcome",
		}, []string{"path", "consumer", "outcome"}),
		deadLettered: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nexus_router_dead_lettered_total",
			Help: "Messages moved to a dead-letter queue by a consumer",
		}, []string{"consumer"}),
		inFlight: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "nexus_router_in_flight",
			Help: "Messages received but not yet settled",
		}, []string{"consumer"}),
		dlqDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "nexus_router_dlq_depth",
			Help: "Messages in the dead-letter queue",
		}, []string{"consumer"}),
		dlqOldestAge: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "nexus_router_dlq_oldest_age_seconds",
			Help: "Age of the oldest dead-lettered message",
		}, []string{"consumer"}),
	}
}

func (m *Metrics) observeRouted(path Path) {
	if m == nil {
		return
	}
	m.routed.WithLabelValues(string(path)).Inc()
}

func (m *Metrics) observeDelivery(path Path, consumer, outcome string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(string(path), consumer, outcome).Inc()
}

func (m *Metrics) observeDeadLettered(consumer string) {
	if m == nil {
		return
	}
	m.deadLettered.WithLabelValues(consumer).Inc()
}

func (m *Metrics) setInFlight(consumer string, value int64) {
	if m == nil {
		return
	}
	m.inFlight.WithLabelValues(consumer).Set(float64(value))
}

func (m *Metrics) setDLQ(consumer string, stats QueueStats) {
	if m == nil {
		return
	}
	m.dlqDepth.WithLabelValues(consumer).Set(float64(stats.DLQDepth))
	m.dlqOldestAge.WithLabelValues(consumer).Set(stats.DLQOldestAge.Seconds())
}
