package metrics

import (
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(dbPoolStats) }

var dbPoolStats = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "db_pool_stats",
		Help: "Current state of the database connection pool.",
	},
	[]string{"state"}, // 'total', 'idle', 'in_use', 'max'
)

func SetDBPoolStats(stat *pgxpool.Stat) {
	if stat == nil {
		return
	}
	dbPoolStats.WithLabelValues("total").Set(float64(stat.TotalConns()))
	dbPoolStats.WithLabelValues("idle").Set(float64(stat.IdleConns()))
	dbPoolStats.WithLabelValues("in_use").Set(float64(stat.AcquiredConns()))
	dbPoolStats.WithLabelValues("max").Set(float64(stat.MaxConns()))
}
