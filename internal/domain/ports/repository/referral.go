package repository

import (
	"context"
	"time"

	"astro-referrals/internal/domain/model"
)

// ReferralRepository is the port for referral records and the activation ledger.
type ReferralRepository interface {
	Create(ctx context.Context, tx Tx, r *model.Referral) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Referral, error)
	// FindPendingByReferred returns the un-activated referral for the referred user.
	FindPendingByReferred(ctx context.Context, tx Tx, referredUserID string) (*model.Referral, error)

	// CountActivatedSince counts activations credited to referrer at or after since.
	CountActivatedSince(ctx context.Context, tx Tx, referrerUserID string, since time.Time) (int, error)
	// CountActivatedByIP counts activations across all referrals recorded with ip.
	CountActivatedByIP(ctx context.Context, tx Tx, ip string) (int, error)
	// CountActivated counts all activated referrals of referrer.
	CountActivated(ctx context.Context, tx Tx, referrerUserID string) (int, error)

	// MarkActivated sets activated_at only if it is still NULL. It reports
	// whether this call performed the transition.
	MarkActivated(ctx context.Context, tx Tx, id, ip, actionType string, at time.Time) (bool, error)

	// ListReferrersActivatedSince returns distinct referrers with an activation
	// at or after since, at most limit of them.
	ListReferrersActivatedSince(ctx context.Context, tx Tx, since time.Time, limit int) ([]string, error)

	// --- Statistics read-only methods ---
	CountByState(ctx context.Context, tx Tx) (pending int, activated int, err error)
}
