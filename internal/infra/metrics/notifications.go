package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(notificationsTotal) }

var notificationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "referral_notifications_total",
		Help: "Push notifications by template and result (sent/no_endpoint/failed/dropped).",
	},
	[]string{"template", "result"},
)

func IncNotification(template, result string) {
	notificationsTotal.WithLabelValues(norm(template), norm(result)).Inc()
}
