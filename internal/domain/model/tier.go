package model

import "time"

// Tier is a milestone on cumulative activated referrals.
type Tier struct {
	Name      string `yaml:"name"`
	Referrals int    `yaml:"referrals"`
	BonusDays int    `yaml:"bonus_days"`
}

// TierProgress describes how far a referrer is from the next tier.
// Next is nil once every tier has been reached.
type TierProgress struct {
	Activated int
	Current   *Tier
	Next      *Tier
	Remaining int
}

// ComputeTierProgress expects tiers sorted by ascending Referrals.
func ComputeTierProgress(activated int, tiers []Tier) *TierProgress {
	p := &TierProgress{Activated: activated}
	for i := range tiers {
		t := tiers[i]
		if activated >= t.Referrals {
			p.Current = &t
			continue
		}
		p.Next = &t
		p.Remaining = t.Referrals - activated
		break
	}
	return p
}

// ReachedTiers returns every tier whose threshold is met.
func ReachedTiers(activated int, tiers []Tier) []Tier {
	var out []Tier
	for _, t := range tiers {
		if activated >= t.Referrals {
			out = append(out, t)
		}
	}
	return out
}

// TierAward records that a referrer was granted a tier bonus.
type TierAward struct {
	ID             string
	ReferrerUserID string
	TierName       string
	Threshold      int
	BonusDays      int
	AwardedAt      time.Time
}
