package sched

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"astro-referrals/internal/infra/metrics"
	"astro-referrals/internal/usecase"
)

// StatsJob refreshes the referral gauges and, when a pool is given, the
// connection pool gauges.
func StatsJob(interval time.Duration, stats usecase.StatsUseCase, pool *pgxpool.Pool) Job {
	return Job{
		Name:     "referral_stats",
		Interval: interval,
		Run: func(ctx context.Context) error {
			if pool != nil {
				metrics.SetDBPoolStats(pool.Stat())
			}
			return stats.Refresh(ctx)
		},
	}
}
