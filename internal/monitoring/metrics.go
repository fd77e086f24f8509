package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pipelineRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_runs_total",
			Help: "Polling runs by content kind and outcome",
		},
		[]string{"kind", "status"},
	)

	pipelineRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_run_duration_seconds",
			Help:    "Wall time of polling runs",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
		[]string{"kind"},
	)

	mentionsDetectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mentions_detected_total",
			Help: "Newly stored mentions by content kind and brand",
		},
		[]string{"kind", "brand"},
	)

	mentionsScoredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mentions_scored_total",
			Help: "Mentions scored and marked processed, by sentiment label",
		},
		[]string{"label"},
	)

	feedGapsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_gaps_total",
			Help: "Full feed pages whose oldest item was still newer than the stored cursor",
		},
		[]string{"kind"},
	)
)
