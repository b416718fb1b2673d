package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"astro-referrals/internal/domain/ports/repository"
	"astro-referrals/internal/usecase"
)

// TierReconciler re-runs the tier side channel for referrers with recent
// activations. It catches bonuses whose task was dropped (full queue, crash).
// Claims make the re-run a no-op for tiers already granted.
type TierReconciler struct {
	uc        usecase.TierRewardUseCase
	referrals repository.ReferralRepository
	lookback  time.Duration
	batch     int
	log       *zerolog.Logger
}

func NewTierReconciler(uc usecase.TierRewardUseCase, referrals repository.ReferralRepository, lookback time.Duration, logger *zerolog.Logger) *TierReconciler {
	if lookback <= 0 {
		lookback = 24 * time.Hour
	}
	compLog := logger.With().Str("component", "TierReconciler").Logger()
	return &TierReconciler{uc: uc, referrals: referrals, lookback: lookback, batch: 500, log: &compLog}
}

// Tick returns the number of awards granted by this pass.
func (w *TierReconciler) Tick(ctx context.Context) (int, error) {
	ids, err := w.referrals.ListReferrersActivatedSince(ctx, repository.NoTX, time.Now().Add(-w.lookback), w.batch)
	if err != nil {
		return 0, err
	}
	granted := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return granted, ctx.Err()
		}
		awards, err := w.uc.ProcessReferralTierReward(ctx, id)
		if err != nil {
			w.log.Warn().Err(err).Str("referrer_user_id", id).Msg("tier reconcile failed")
			continue
		}
		granted += len(awards)
	}
	if granted > 0 {
		w.log.Info().Int("awards", granted).Msg("tier reconcile granted missed awards")
	}
	return granted, nil
}

// Job adapts Tick to the scheduler.
func (w *TierReconciler) Job(interval time.Duration) Job {
	return Job{
		Name:     "tier_reconciler",
		Interval: interval,
		Run: func(ctx context.Context) error {
			_, err := w.Tick(ctx)
			return err
		},
	}
}
