package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"astro-referrals/internal/domain"
	"astro-referrals/internal/domain/model"
	"astro-referrals/internal/domain/ports/repository"
)

// Ensure tierAwardRepo implements repository.TierAwardRepository
var _ repository.TierAwardRepository = (*tierAwardRepo)(nil)

type tierAwardRepo struct {
	pool *pgxpool.Pool
}

func NewTierAwardRepo(pool *pgxpool.Pool) *tierAwardRepo {
	return &tierAwardRepo{pool: pool}
}

func (r *tierAwardRepo) Claim(ctx context.Context, tx repository.Tx, a *model.TierAward) (bool, error) {
	const q = `
INSERT INTO referral_tier_awards (id, referrer_user_id, tier_name, threshold, bonus_days, awarded_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (referrer_user_id, tier_name) DO NOTHING;`
	tag, err := execSQL(ctx, r.pool, tx, q, a.ID, a.ReferrerUserID, a.TierName, a.Threshold, a.BonusDays, a.AwardedAt)
	if err != nil {
		return false, mapError(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *tierAwardRepo) Release(ctx context.Context, tx repository.Tx, awardID string) error {
	const q = `DELETE FROM referral_tier_awards WHERE id=$1;`
	if _, err := execSQL(ctx, r.pool, tx, q, awardID); err != nil {
		return mapError(err)
	}
	return nil
}

func (r *tierAwardRepo) ListByReferrer(ctx context.Context, tx repository.Tx, referrerUserID string) ([]*model.TierAward, error) {
	const q = `
SELECT id, referrer_user_id, tier_name, threshold, bonus_days, awarded_at
  FROM referral_tier_awards
 WHERE referrer_user_id=$1
 ORDER BY threshold ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q, referrerUserID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []*model.TierAward
	for rows.Next() {
		var a model.TierAward
		if err := rows.Scan(&a.ID, &a.ReferrerUserID, &a.TierName, &a.Threshold, &a.BonusDays, &a.AwardedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}
