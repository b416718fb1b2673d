package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		guardRejectionsTotal,
		activationsTotal,
		rewardLegsTotal,
		tierRewardsTotal,
		referralsTotal,
	)
}

var (
	guardRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "referral_guard_rejections_total",
			Help: "Activation events stopped by the guard chain, by reason.",
		},
		[]string{"reason"},
	)

	activationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "referral_activations_total",
			Help: "Activation pipeline runs by result (activated/rejected/lost_race/ledger_failed).",
		},
		[]string{"result"},
	)

	rewardLegsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "referral_reward_legs_total",
			Help: "Reward legs by party, action and success.",
		},
		[]string{"party", "action", "success"},
	)

	tierRewardsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "referral_tier_rewards_total",
			Help: "Tier bonuses granted, by tier name.",
		},
		[]string{"tier"},
	)

	referralsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "referrals_total",
			Help: "Current number of referrals by state.",
		},
		[]string{"state"}, // 'pending', 'activated'
	)
)

func IncGuardRejection(reason string) {
	guardRejectionsTotal.WithLabelValues(norm(reason)).Inc()
}

func IncActivation(result string) {
	activationsTotal.WithLabelValues(norm(result)).Inc()
}

func IncRewardLeg(party, action string, success bool) {
	if action == "" {
		action = "none"
	}
	rewardLegsTotal.WithLabelValues(norm(party), norm(action), strconv.FormatBool(success)).Inc()
}

func IncTierReward(tier string) {
	tierRewardsTotal.WithLabelValues(norm(tier)).Inc()
}

func SetReferralsTotal(pending, activated int) {
	referralsTotal.WithLabelValues("pending").Set(float64(pending))
	referralsTotal.WithLabelValues("activated").Set(float64(activated))
}
