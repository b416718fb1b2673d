package model

import "time"

// RejectReason names the guard that stopped an activation.
type RejectReason string

const (
	RejectNone             RejectReason = ""
	RejectNoReferral       RejectReason = "no_referral"
	RejectTooNew           RejectReason = "too_new"
	RejectVelocityExceeded RejectReason = "velocity_exceeded"
	RejectDuplicateIP      RejectReason = "duplicate_ip"
	RejectInProgress       RejectReason = "in_progress"
)

// GuardResult is Pass(referral) when Passed, otherwise Reject(Reason).
type GuardResult struct {
	Passed   bool
	Referral *Referral
	Reason   RejectReason
	// SessionIP is the referred user's latest session IP, if known.
	SessionIP string
}

func Pass(r *Referral, ip string) GuardResult {
	return GuardResult{Passed: true, Referral: r, SessionIP: ip}
}

func Reject(reason RejectReason) GuardResult {
	return GuardResult{Reason: reason}
}

type Party string

const (
	PartyReferrer Party = "referrer"
	PartyReferred Party = "referred"
	PartyTier     Party = "tier"
)

type LegAction string

const (
	LegActionNone              LegAction = ""
	LegActionCreated           LegAction = "created"
	LegActionExtended          LegAction = "extended"
	LegActionProcessorExtended LegAction = "processor_extended"
)

// LegOutcome is the result of one extend-or-create decision.
type LegOutcome struct {
	Party     Party
	UserID    string
	Extension time.Duration
	Action    LegAction
	PeriodEnd *time.Time
	Err       error
}

func (o LegOutcome) OK() bool { return o.Err == nil && o.Action != LegActionNone }

// ExtensionDays is Extension expressed in whole days.
func (o LegOutcome) ExtensionDays() int { return int(o.Extension / (24 * time.Hour)) }

// RewardOutcome collects both legs; either may fail independently.
type RewardOutcome struct {
	Referrer LegOutcome
	Referred LegOutcome
}

// ActivationResult summarises one pipeline run.
type ActivationResult struct {
	Event     ActivationEvent
	Referral  *Referral
	Rejected  RejectReason
	Reward    *RewardOutcome
	Activated bool
	Progress  *TierProgress
}
