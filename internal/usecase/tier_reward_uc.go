package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"astro-referrals/internal/domain/model"
	"astro-referrals/internal/domain/ports/repository"
	"astro-referrals/internal/infra/logging"
	"astro-referrals/internal/infra/metrics"
)

// Compile-time check
var _ TierRewardUseCase = (*tierRewardUC)(nil)

// TierRewardUseCase grants milestone bonuses once a referrer crosses a tier.
type TierRewardUseCase interface {
	// ProcessReferralTierReward returns the awards granted by this call.
	// Tiers already held are skipped, so repeated calls are harmless.
	ProcessReferralTierReward(ctx context.Context, referrerUserID string) ([]model.TierAward, error)
}

type tierRewardUC struct {
	referrals repository.ReferralRepository
	awards    repository.TierAwardRepository
	rewards   RewardEngine
	notifier  NotificationUseCase
	tiers     []model.Tier
	now       func() time.Time
	log       *zerolog.Logger
}

func NewTierRewardUseCase(
	referrals repository.ReferralRepository,
	awards repository.TierAwardRepository,
	rewards RewardEngine,
	notifier NotificationUseCase,
	tiers []model.Tier,
	logger *zerolog.Logger,
	opts ...Option,
) *tierRewardUC {
	o := applyOptions(opts)
	compLog := logger.With().Str("component", "TierRewardUC").Logger()
	return &tierRewardUC{
		referrals: referrals,
		awards:    awards,
		rewards:   rewards,
		notifier:  notifier,
		tiers:     tiers,
		now:       o.now,
		log:       &compLog,
	}
}

func (uc *tierRewardUC) ProcessReferralTierReward(ctx context.Context, referrerUserID string) ([]model.TierAward, error) {
	log := logging.With(ctx, uc.log)

	n, err := uc.referrals.CountActivated(ctx, repository.NoTX, referrerUserID)
	if err != nil {
		log.Warn().Err(err).Str("referrer_user_id", referrerUserID).Msg("tier reward: count failed")
		return nil, err
	}

	var granted []model.TierAward
	var firstErr error
	for _, t := range model.ReachedTiers(n, uc.tiers) {
		a := &model.TierAward{
			ID:             uuid.NewString(),
			ReferrerUserID: referrerUserID,
			TierName:       t.Name,
			Threshold:      t.Referrals,
			BonusDays:      t.BonusDays,
			AwardedAt:      uc.now(),
		}
		claimed, err := uc.awards.Claim(ctx, repository.NoTX, a)
		if err != nil {
			log.Warn().Err(err).Str("tier", t.Name).Msg("tier reward: claim failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if !claimed {
			continue
		}

		leg := uc.rewards.GrantExtension(ctx, model.PartyTier, referrerUserID, time.Duration(t.BonusDays)*24*time.Hour)
		if leg.Err != nil {
			log.Error().Err(leg.Err).Str("tier", t.Name).Str("award_id", a.ID).Msg("tier reward: bonus grant failed")
			// give the tier back so the next run or the reconciler can retry it
			if rerr := uc.awards.Release(context.WithoutCancel(ctx), repository.NoTX, a.ID); rerr != nil {
				log.Error().Err(rerr).Str("tier", t.Name).Str("award_id", a.ID).Msg("tier reward: release claim failed")
			}
			if firstErr == nil {
				firstErr = leg.Err
			}
			continue
		}
		metrics.IncTierReward(t.Name)
		granted = append(granted, *a)

		if uc.notifier != nil {
			_ = uc.notifier.Notify(ctx, referrerUserID, TemplateTierUnlocked, NotificationContext{
				Days:      t.BonusDays,
				Activated: n,
				TierName:  t.Name,
			})
		}
	}
	return granted, firstErr
}
