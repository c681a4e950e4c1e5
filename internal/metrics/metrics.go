package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for monitoring
var (
	ExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dca_executions_total",
		Help: "The total number of execution attempts by result",
	}, []string{"result"})

	TrancheInputTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dca_tranche_input_total",
		Help: "Total source-asset base units converted by successful executions",
	})

	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dca_tick_duration_seconds",
		Help:    "Time taken to process one scheduler tick",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
	})

	DueOrders = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dca_due_orders",
		Help: "The number of due orders seen by the last tick",
	})

	TicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dca_ticks_total",
		Help: "The total number of scheduler ticks processed",
	})
)
