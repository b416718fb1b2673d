package usecase

import (
	"context"

	"astro-referrals/internal/domain/model"
	"astro-referrals/internal/domain/ports/repository"
)

// Compile-time check
var _ TierProgression = (*tierProgression)(nil)

type TierProgression interface {
	// CountActivated counts every activated referral of the referrer.
	CountActivated(ctx context.Context, referrerUserID string) (int, error)
	Progress(ctx context.Context, referrerUserID string) (*model.TierProgress, error)
}

type tierProgression struct {
	referrals repository.ReferralRepository
	tiers     []model.Tier // ascending by Referrals
}

func NewTierProgression(referrals repository.ReferralRepository, tiers []model.Tier) *tierProgression {
	return &tierProgression{referrals: referrals, tiers: tiers}
}

func (t *tierProgression) CountActivated(ctx context.Context, referrerUserID string) (int, error) {
	return t.referrals.CountActivated(ctx, repository.NoTX, referrerUserID)
}

func (t *tierProgression) Progress(ctx context.Context, referrerUserID string) (*model.TierProgress, error) {
	n, err := t.CountActivated(ctx, referrerUserID)
	if err != nil {
		return nil, err
	}
	return model.ComputeTierProgress(n, t.tiers), nil
}
