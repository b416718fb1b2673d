package usecase

import (
	"context"

	"github.com/rs/zerolog"

	"astro-referrals/internal/domain/model"
	"astro-referrals/internal/domain/ports/repository"
	"astro-referrals/internal/infra/metrics"
)

// Compile-time check
var _ StatsUseCase = (*statsUC)(nil)

// ReferralTotals is a point-in-time count of referrals by state.
type ReferralTotals struct {
	Pending   int `json:"pending"`
	Activated int `json:"activated"`
}

type StatsUseCase interface {
	Totals(ctx context.Context) (ReferralTotals, error)
	// Progress is the per-referrer tier view, including awards already granted.
	Progress(ctx context.Context, referrerUserID string) (*model.TierProgress, []*model.TierAward, error)
	// Refresh recomputes Totals and publishes it as the referrals_total gauge.
	Refresh(ctx context.Context) error
}

type statsUC struct {
	referrals repository.ReferralRepository
	awards    repository.TierAwardRepository
	tiers     TierProgression

	log *zerolog.Logger
}

func NewStatsUseCase(referrals repository.ReferralRepository, awards repository.TierAwardRepository, tiers TierProgression, logger *zerolog.Logger) *statsUC {
	compLog := logger.With().Str("component", "StatsUC").Logger()
	return &statsUC{referrals: referrals, awards: awards, tiers: tiers, log: &compLog}
}

func (s *statsUC) Totals(ctx context.Context) (ReferralTotals, error) {
	pending, activated, err := s.referrals.CountByState(ctx, repository.NoTX)
	if err != nil {
		return ReferralTotals{}, err
	}
	return ReferralTotals{Pending: pending, Activated: activated}, nil
}

func (s *statsUC) Progress(ctx context.Context, referrerUserID string) (*model.TierProgress, []*model.TierAward, error) {
	p, err := s.tiers.Progress(ctx, referrerUserID)
	if err != nil {
		return nil, nil, err
	}
	awards, err := s.awards.ListByReferrer(ctx, repository.NoTX, referrerUserID)
	if err != nil {
		return nil, nil, err
	}
	return p, awards, nil
}

func (s *statsUC) Refresh(ctx context.Context) error {
	t, err := s.Totals(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("referral totals unavailable")
		return err
	}
	metrics.SetReferralsTotal(t.Pending, t.Activated)
	return nil
}
