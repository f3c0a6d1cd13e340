package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forecastskill_cycles_total",
			Help: "Refresh cycles by outcome",
		},
		[]string{"result"},
	)

	SourceFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forecastskill_source_fetches_total",
			Help: "Forecast source fetches",
		},
		[]string{"source", "status"},
	)

	SourceFetchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "forecastskill_source_fetch_latency_seconds",
			Help:    "Forecast source fetch latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	RecordsAppended = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forecastskill_records_appended_total",
			Help: "Comparison records appended to history",
		},
		[]string{"log"},
	)
)
