package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PageFoldsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docview_page_folds_total",
			Help: "Total number of page events folded, by outcome",
		},
		[]string{"outcome"},
	)

	AnomaliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docview_telemetry_anomalies_total",
			Help: "Total number of tolerated telemetry anomalies",
		},
		[]string{"kind"},
	)

	LinkResolvesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docview_link_resolves_total",
			Help: "Total number of public link resolutions",
		},
		[]string{"result"},
	)

	LinksIssuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "docview_links_issued_total",
			Help: "Total number of public links issued",
		},
	)

	SessionTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docview_session_transitions_total",
			Help: "Total number of viewing session state changes",
		},
		[]string{"status"},
	)

	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docview_store_operation_duration_seconds",
			Help:    "Duration of core store operations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation", "status"},
	)
)
