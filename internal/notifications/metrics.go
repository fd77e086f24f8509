package notifications

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var notificationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "notifications_total",
		Help: "Notification deliveries by channel and status",
	},
	[]string{"channel", "status"},
)
