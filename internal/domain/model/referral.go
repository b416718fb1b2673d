package model

import (
	"time"

	"astro-referrals/internal/domain"

	"github.com/google/uuid"
)

// Referral links a referrer to a user who signed up with their code.
// ActivatedAt moves from nil to non-nil exactly once.
type Referral struct {
	ID             string
	ReferrerUserID string
	ReferredUserID string
	Code           string
	CreatedAt      time.Time
	ActivatedAt    *time.Time
	ActivationIP   *string // session IP seen at activation, used for dedup
	ActionType     *string // in-app action that triggered activation
}

func NewReferral(referrerID, referredID, code string) (*Referral, error) {
	if referrerID == "" || referredID == "" {
		return nil, domain.ErrInvalidArgument
	}
	if referrerID == referredID {
		return nil, domain.ErrInvalidArgument
	}
	return &Referral{
		ID:             uuid.NewString(),
		ReferrerUserID: referrerID,
		ReferredUserID: referredID,
		Code:           code,
		CreatedAt:      time.Now(),
	}, nil
}

func (r *Referral) IsActivated() bool { return r != nil && r.ActivatedAt != nil }

// ActivationEvent is the signal emitted when a referred user performs a qualifying action.
type ActivationEvent struct {
	UserID     string
	ActionType string
	OccurredAt time.Time
}

// Qualifying in-app actions.
const (
	ActionReadingCompleted = "reading_completed"
	ActionJournalEntry     = "journal_entry"
	ActionChartGenerated   = "chart_generated"
	ActionCompatibility    = "compatibility_checked"
)
