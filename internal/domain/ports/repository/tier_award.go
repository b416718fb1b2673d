package repository

import (
	"context"

	"astro-referrals/internal/domain/model"
)

type TierAwardRepository interface {
	// Claim records the award unless the referrer already holds that tier.
	// It reports whether the row was inserted by this call.
	Claim(ctx context.Context, tx Tx, a *model.TierAward) (bool, error)
	// Release deletes a claim whose bonus could not be granted, so a later
	// run can claim the tier again.
	Release(ctx context.Context, tx Tx, awardID string) error
	ListByReferrer(ctx context.Context, tx Tx, referrerUserID string) ([]*model.TierAward, error)
}
