package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"astro-referrals/internal/domain"
	"astro-referrals/internal/domain/model"
	"astro-referrals/internal/domain/ports/repository"
)

// Ensure subscriptionRepo implements repository.SubscriptionRepository
var _ repository.SubscriptionRepository = (*subscriptionRepo)(nil)

type subscriptionRepo struct {
	pool *pgxpool.Pool
}

func NewSubscriptionRepo(pool *pgxpool.Pool) *subscriptionRepo {
	return &subscriptionRepo{pool: pool}
}

const subscriptionColumns = `user_id, status, plan_type, trial_ends_at, current_period_end,
       stripe_subscription_id, stripe_customer_id, created_at, updated_at`

func (r *subscriptionRepo) FindByUser(ctx context.Context, tx repository.Tx, userID string) (*model.Subscription, error) {
	q := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE user_id=$1;`
	return r.queryOne(ctx, tx, q, userID)
}

func (r *subscriptionRepo) CreateTrial(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	const q = `
INSERT INTO subscriptions (user_id, status, plan_type, trial_ends_at, current_period_end, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (user_id) DO NOTHING;`
	tag, err := execSQL(ctx, r.pool, tx, q, s.UserID, s.Status, s.PlanType, s.TrialEndsAt, s.CurrentPeriodEnd, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadyExists
	}
	return nil
}

// Extend computes the new ends from the stored values in one statement, so a
// concurrent billing webhook cannot be overwritten with a stale read.
func (r *subscriptionRepo) Extend(ctx context.Context, tx repository.Tx, userID string, by time.Duration, now time.Time) (*model.Subscription, error) {
	q := `
UPDATE subscriptions
   SET current_period_end = GREATEST(COALESCE(current_period_end, $3), $3) + $2::interval,
       trial_ends_at = CASE WHEN status = 'trial'
                            THEN GREATEST(COALESCE(trial_ends_at, $3), $3) + $2::interval
                            WHEN status IN ('free', 'cancelled')
                            THEN GREATEST(COALESCE(current_period_end, $3), $3) + $2::interval
                            ELSE trial_ends_at END,
       plan_type = CASE WHEN status IN ('free', 'cancelled') THEN $4 ELSE plan_type END,
       status = CASE WHEN status IN ('free', 'cancelled') THEN 'trial' ELSE status END,
       updated_at = $3
 WHERE user_id=$1
RETURNING ` + subscriptionColumns + `;`
	return r.queryOne(ctx, tx, q, userID, by, now, model.PlanTypeReferralTrial)
}

func (r *subscriptionRepo) MirrorPeriodEnd(ctx context.Context, tx repository.Tx, userID string, end time.Time) (*model.Subscription, error) {
	q := `
UPDATE subscriptions
   SET current_period_end = GREATEST(COALESCE(current_period_end, $2), $2),
       updated_at = NOW()
 WHERE user_id=$1
RETURNING ` + subscriptionColumns + `;`
	return r.queryOne(ctx, tx, q, userID, end)
}

func (r *subscriptionRepo) queryOne(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (*model.Subscription, error) {
	row, err := pickRow(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	s, err := scanSubscription(row)
	if err != nil {
		return nil, mapError(err)
	}
	return s, nil
}

func scanSubscription(row pgx.Row) (*model.Subscription, error) {
	var s model.Subscription
	var status, plan string
	if err := row.Scan(
		&s.UserID, &status, &plan, &s.TrialEndsAt, &s.CurrentPeriodEnd,
		&s.StripeSubscriptionID, &s.StripeCustomerID, &s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	s.Status = model.SubscriptionStatus(status)
	s.PlanType = plan
	return &s, nil
}
