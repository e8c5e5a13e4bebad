// Package http provides the HTTP admin listener for the engine: the
// Prometheus metrics endpoint and the health endpoint.
package http

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for Chain Gate.
// Pass to components that need to record metrics.
type Metrics struct {
	ChainExecutionsTotal *prometheus.CounterVec
	InvocationsTotal     *prometheus.CounterVec
	FindingsTotal        *prometheus.CounterVec
	ChainDuration        prometheus.Histogram
	SideChannelDrops     prometheus.Counter
}

// NewMetrics creates and registers all counter/histogram metrics with the
// given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		ChainExecutionsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "chaingate",
				Name:      "chain_executions_total",
				Help:      "Total number of chain executions",
			},
			[]string{"outcome"}, // outcome=ok/error
		),
		InvocationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "chaingate",
				Name:      "invocations_total",
				Help:      "Total number of single-interceptor invocations",
			},
			[]string{"outcome"},
		),
		FindingsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "chaingate",
				Name:      "validation_findings_total",
				Help:      "Total validation findings produced, by severity",
			},
			[]string{"severity"},
		),
		ChainDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "chaingate",
				Name:      "chain_duration_seconds",
				Help:      "Chain execution duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
		SideChannelDrops: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "chaingate",
				Name:      "sidechannel_drops_total",
				Help:      "Observability metadata entries that failed to record",
			},
		),
	}
}

// RegisterGauges registers the live gauges sourced from engine state:
// registered interceptor count and in-flight observability tasks.
func RegisterGauges(reg prometheus.Registerer, registrySize, inflight func() int) {
	reg.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "chaingate",
			Name:      "registered_interceptors",
			Help:      "Number of registered interceptors",
		},
		func() float64 { return float64(registrySize()) },
	))
	reg.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "chaingate",
			Name:      "observability_tasks_in_flight",
			Help:      "Observability tasks currently running",
		},
		func() float64 { return float64(inflight()) },
	))
}
