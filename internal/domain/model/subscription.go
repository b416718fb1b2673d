package model

import (
	"time"

	"astro-referrals/internal/domain"
)

type SubscriptionStatus string

const (
	SubscriptionStatusFree      SubscriptionStatus = "free"
	SubscriptionStatusTrial     SubscriptionStatus = "trial"
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusPastDue   SubscriptionStatus = "past_due"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
)

// PlanTypeReferralTrial marks records created by the referral program.
const PlanTypeReferralTrial = "referral_trial"

// Subscription is the per-user billing/access record. One row per user.
type Subscription struct {
	UserID               string
	Status               SubscriptionStatus
	PlanType             string
	TrialEndsAt          *time.Time
	CurrentPeriodEnd     *time.Time
	StripeSubscriptionID *string
	StripeCustomerID     *string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// NewTrialSubscription builds a trial record ending `length` after now.
func NewTrialSubscription(userID string, now time.Time, length time.Duration) (*Subscription, error) {
	if userID == "" || length <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	end := now.Add(length)
	trialEnd := end
	return &Subscription{
		UserID:           userID,
		Status:           SubscriptionStatusTrial,
		PlanType:         PlanTypeReferralTrial,
		TrialEndsAt:      &trialEnd,
		CurrentPeriodEnd: &end,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// IsProcessorManaged reports whether the payment processor owns the billing period.
func (s *Subscription) IsProcessorManaged() bool {
	if s == nil || s.Status != SubscriptionStatusActive {
		return false
	}
	return s.StripeSubscriptionID != nil && *s.StripeSubscriptionID != ""
}

// PeriodEnd returns the effective end of access, preferring the trial end while trialing.
func (s *Subscription) PeriodEnd() *time.Time {
	if s == nil {
		return nil
	}
	if s.Status == SubscriptionStatusTrial && s.TrialEndsAt != nil {
		return s.TrialEndsAt
	}
	return s.CurrentPeriodEnd
}
