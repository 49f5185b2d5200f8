package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Analysis worker metrics
var (
	// Run metrics
	AnalysisRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waterquality_analysis_runs_total",
			Help: "Total number of analysis runs by kind, status and source",
		},
		[]string{"kind", "status", "source"}, // source: queue/http
	)

	AnalysisDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "waterquality_analysis_duration_seconds",
			Help:    "Analysis run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8), // 1ms to ~16s
		},
		[]string{"kind"},
	)

	// Detection metrics
	AnomaliesDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waterquality_anomalies_detected_total",
			Help: "Total number of anomalous points flagged",
		},
		[]string{"method"},
	)

	// Ingestion metrics
	SamplesRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waterquality_samples_rejected_total",
			Help: "Total number of raw samples dropped by validation",
		},
		[]string{"parameter"},
	)

	// Queue metrics
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waterquality_job_messages_total",
			Help: "Total number of job messages by outcome",
		},
		[]string{"outcome"}, // outcome: ack/requeue/dead_letter
	)

	EventsPublishFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "waterquality_events_publish_failed_total",
			Help: "Total number of analysis.completed events that failed to publish",
		},
	)
)
