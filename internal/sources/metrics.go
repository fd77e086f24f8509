package sources

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var feedRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "feed_requests_total",
		Help: "Feed API page requests by operation and outcome (after retries)",
	},
	[]string{"operation", "outcome"},
)

func recordFeedRequest(op string, err error) {
	outcome := "success"
	if err != nil {
		outcome = string(KindOf(err))
	}
	feedRequestsTotal.WithLabelValues(op, outcome).Inc()
}
