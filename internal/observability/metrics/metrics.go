package metrics

import "github.com/prometheus/client_golang/prometheus"

// ConversationMetrics exposes counters/histograms for the slot-filling engine.
type ConversationMetrics struct {
	turnsTotal       *prometheus.CounterVec
	extractorLatency *prometheus.HistogramVec
	retryExhaustions prometheus.Counter
	sessionsEvicted  prometheus.Counter
	recordsConfirmed prometheus.Counter
}

func NewConversationMetrics(reg prometheus.Registerer) *ConversationMetrics {
	m := &ConversationMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "registro",
			Subsystem: "conversation",
			Name:      "turns_total",
			Help:      "Total processed conversation turns",
		}, []string{"mode", "outcome"}),
		extractorLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "registro",
			Subsystem: "conversation",
			Name:      "extractor_latency_seconds",
			Help:      "Latency of entity extractor calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"mode", "status"}),
		retryExhaustions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "registro",
			Subsystem: "conversation",
			Name:      "retry_exhaustions_total",
			Help:      "Times a field hit its retry cap",
		}),
		sessionsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "registro",
			Subsystem: "conversation",
			Name:      "sessions_evicted_total",
			Help:      "Idle sessions removed by sweep",
		}),
		recordsConfirmed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "registro",
			Subsystem: "conversation",
			Name:      "records_confirmed_total",
			Help:      "Surgery records confirmed and persisted",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.extractorLatency, m.retryExhaustions, m.sessionsEvicted, m.recordsConfirmed)
	return m
}

func (m *ConversationMetrics) ObserveTurn(mode, outcome string) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(mode, outcome).Inc()
}

func (m *ConversationMetrics) ObserveExtractor(mode, status string, seconds float64) {
	if m == nil {
		return
	}
	m.extractorLatency.WithLabelValues(mode, status).Observe(seconds)
}

func (m *ConversationMetrics) ObserveRetryExhaustion() {
	if m == nil {
		return
	}
	m.retryExhaustions.Inc()
}

func (m *ConversationMetrics) ObserveEviction(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.sessionsEvicted.Add(float64(count))
}

func (m *ConversationMetrics) ObserveRecordConfirmed() {
	if m == nil {
		return
	}
	m.recordsConfirmed.Inc()
}
