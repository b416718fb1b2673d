package repository

import (
	"context"
	"time"

	"astro-referrals/internal/domain/model"
)

// SubscriptionRepository is the port for per-user subscription records.
//
// Period changes go through Extend and MirrorPeriodEnd, which compute the new
// value in the database from the current one. Billing webhooks use the same
// methods so concurrent writers never overwrite each other.
type SubscriptionRepository interface {
	FindByUser(ctx context.Context, tx Tx, userID string) (*model.Subscription, error)
	// CreateTrial inserts sub unless a record for the user already exists,
	// in which case it returns domain.ErrAlreadyExists.
	CreateTrial(ctx context.Context, tx Tx, sub *model.Subscription) error
	// Extend adds by to the period end (and trial end while trialing), counting
	// from now when the stored value is missing or in the past. A free or
	// cancelled record becomes a referral trial ending at the new period end.
	Extend(ctx context.Context, tx Tx, userID string, by time.Duration, now time.Time) (*model.Subscription, error)
	// MirrorPeriodEnd copies a processor-authoritative period end locally. It
	// never moves the stored value backwards.
	MirrorPeriodEnd(ctx context.Context, tx Tx, userID string, end time.Time) (*model.Subscription, error)
}
