package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"astro-referrals/internal/domain"
	"astro-referrals/internal/domain/model"
	"astro-referrals/internal/domain/ports/adapter"
	"astro-referrals/internal/domain/ports/repository"
	"astro-referrals/internal/infra/logging"
	"astro-referrals/internal/infra/metrics"
)

// Compile-time check
var _ ActivationUseCase = (*activationUC)(nil)

// ActivationUseCase is the referral activation pipeline:
// guard chain → reward engine → ledger → tier progress → notifications.
type ActivationUseCase interface {
	// HandleActivation never fails because of a guard rejection or a reward
	// leg failure. The only error is a failed ledger write, which the caller
	// should retry.
	HandleActivation(ctx context.Context, ev model.ActivationEvent) (*model.ActivationResult, error)
}

type activationUC struct {
	guard         GuardChain
	rewards       RewardEngine
	ledger        ActivationLedger
	tiers         TierProgression
	notifier      NotificationUseCase
	tierRewards   TierRewardUseCase
	referrals     repository.ReferralRepository
	locker        adapter.Locker
	lockTTL       time.Duration
	settleTimeout time.Duration
	runner        TaskRunner
	log           *zerolog.Logger
}

// ActivationDeps groups the collaborators of the pipeline. Locker, TierRewards
// and Runner are optional.
type ActivationDeps struct {
	Guard       GuardChain
	Rewards     RewardEngine
	Ledger      ActivationLedger
	Tiers       TierProgression
	Notifier    NotificationUseCase
	TierRewards TierRewardUseCase
	Referrals   repository.ReferralRepository
	Locker      adapter.Locker
	LockTTL     time.Duration
	Runner      TaskRunner
	// SettleTimeout bounds the ledger write and progress read that follow the
	// reward legs. They run detached from the caller's deadline.
	SettleTimeout time.Duration
}

func NewActivationUseCase(deps ActivationDeps, logger *zerolog.Logger) *activationUC {
	if deps.Runner == nil {
		deps.Runner = InlineRunner{}
	}
	if deps.LockTTL <= 0 {
		deps.LockTTL = 30 * time.Second
	}
	if deps.SettleTimeout <= 0 {
		deps.SettleTimeout = 5 * time.Second
	}
	compLog := logger.With().Str("component", "ActivationUC").Logger()
	return &activationUC{
		guard:         deps.Guard,
		rewards:       deps.Rewards,
		ledger:        deps.Ledger,
		tiers:         deps.Tiers,
		notifier:      deps.Notifier,
		tierRewards:   deps.TierRewards,
		referrals:     deps.Referrals,
		locker:        deps.Locker,
		lockTTL:       deps.LockTTL,
		settleTimeout: deps.SettleTimeout,
		runner:        deps.Runner,
		log:           &compLog,
	}
}

func (uc *activationUC) HandleActivation(ctx context.Context, ev model.ActivationEvent) (*model.ActivationResult, error) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now()
	}
	ctx = logging.WithUserID(ctx, ev.UserID)
	log := logging.With(ctx, uc.log)
	defer logging.TraceDuration(log, "ActivationUC.HandleActivation")()

	res := &model.ActivationResult{Event: ev}

	gr, err := uc.guard.Evaluate(ctx, ev.UserID, ev.ActionType)
	if err != nil {
		// a guard that cannot read fails closed; the event stays eligible
		log.Warn().Err(err).Str("action_type", ev.ActionType).Msg("guard chain could not complete")
		metrics.IncActivation("guard_error")
		return res, nil
	}
	if !gr.Passed {
		res.Rejected = gr.Reason
		metrics.IncActivation("rejected")
		return res, nil
	}

	ref := gr.Referral
	res.Referral = ref
	ctx = logging.WithReferralID(ctx, ref.ID)
	log = logging.With(ctx, uc.log)

	unlock, reason := uc.acquire(ctx, log, ref.ID)
	if reason != model.RejectNone {
		res.Rejected = reason
		metrics.IncGuardRejection(string(reason))
		metrics.IncActivation("rejected")
		return res, nil
	}
	defer unlock()

	outcome := uc.rewards.Grant(ctx, ref)
	res.Reward = &outcome

	// Slow legs may have used up the caller's deadline. Whatever was granted
	// must still reach the ledger, or a retry would pay the same legs again.
	settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), uc.settleTimeout)
	defer cancel()

	ok, err := uc.ledger.MarkActivated(settleCtx, ref.ID, gr.SessionIP, ev.ActionType)
	if err != nil {
		metrics.IncActivation("ledger_failed")
		log.Error().Err(err).Msg("activation ledger write failed")
		return res, fmt.Errorf("mark referral %s activated: %w", ref.ID, err)
	}
	if !ok {
		metrics.IncActivation("lost_race")
		return res, nil
	}
	res.Activated = true
	metrics.IncActivation("activated")
	log.Info().
		Str("referrer_user_id", ref.ReferrerUserID).
		Str("action_type", ev.ActionType).
		Bool("referrer_ok", outcome.Referrer.OK()).
		Bool("referred_ok", outcome.Referred.OK()).
		Msg("referral activated")

	if p, err := uc.tiers.Progress(settleCtx, ref.ReferrerUserID); err != nil {
		log.Warn().Err(err).Msg("tier progress unavailable; omitting hint")
	} else {
		res.Progress = p
	}

	uc.dispatch(settleCtx, log, ref, outcome, res.Progress)

	if uc.tierRewards != nil {
		referrerID := ref.ReferrerUserID
		traceID := logging.TraceID(ctx)
		uc.runner.Go("tier_reward", func(taskCtx context.Context) error {
			taskCtx = logging.WithTraceID(taskCtx, traceID)
			_, err := uc.tierRewards.ProcessReferralTierReward(taskCtx, referrerID)
			return err
		})
	}
	return res, nil
}

// acquire takes the per-referral lock and re-checks the ledger under it.
// A Redis outage degrades to the ledger compare-and-set alone.
func (uc *activationUC) acquire(ctx context.Context, log *zerolog.Logger, referralID string) (func(), model.RejectReason) {
	noop := func() {}
	if uc.locker == nil {
		return noop, model.RejectNone
	}

	key := "referral:activation:" + referralID
	token, err := uc.locker.TryLock(ctx, key, uc.lockTTL)
	switch {
	case errors.Is(err, domain.ErrLockNotAcquired):
		log.Debug().Msg("activation already in progress elsewhere")
		return noop, model.RejectInProgress
	case err != nil:
		log.Warn().Err(err).Msg("activation lock unavailable; relying on ledger")
		return noop, model.RejectNone
	}
	unlock := func() {
		if err := uc.locker.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
			log.Warn().Err(err).Msg("release activation lock failed")
		}
	}

	if uc.referrals != nil {
		cur, err := uc.referrals.FindByID(ctx, repository.NoTX, referralID)
		if err == nil && cur.IsActivated() {
			unlock()
			return noop, model.RejectNoReferral
		}
	}
	return unlock, model.RejectNone
}

// dispatch sends one notification per party whose leg succeeded. Each send is
// its own task so one party's failure cannot affect the other.
func (uc *activationUC) dispatch(ctx context.Context, log *zerolog.Logger, ref *model.Referral, outcome model.RewardOutcome, progress *model.TierProgress) {
	traceID := logging.TraceID(ctx)
	send := func(userID string, key TemplateKey, data NotificationContext) {
		uc.runner.Go(string(key), func(taskCtx context.Context) error {
			taskCtx = logging.WithTraceID(taskCtx, traceID)
			return uc.notifier.Notify(taskCtx, userID, key, data)
		})
	}

	if outcome.Referrer.OK() {
		data := NotificationContext{Days: outcome.Referrer.ExtensionDays()}
		if progress != nil {
			data.Activated = progress.Activated
			if progress.Next != nil {
				data.NextTier = progress.Next.Name
				data.Remaining = progress.Remaining
			}
		}
		send(ref.ReferrerUserID, TemplateReferrerReward, data)
	} else {
		log.Warn().Msg("referrer leg failed; skipping referrer notification")
	}

	if outcome.Referred.OK() {
		send(ref.ReferredUserID, TemplateReferredReward, NotificationContext{Days: outcome.Referred.ExtensionDays()})
	} else {
		log.Warn().Msg("referred leg failed; skipping referred notification")
	}
}
