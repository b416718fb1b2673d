package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(backgroundTasksTotal) }

var backgroundTasksTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "background_tasks_total",
		Help: "Total number of worker pool tasks, labeled by status.",
	},
	[]string{"status"}, // 'completed', 'failed', 'rejected'
)

func IncBackgroundTask(status string) {
	backgroundTasksTotal.WithLabelValues(norm(status)).Inc()
}
