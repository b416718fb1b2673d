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
var _ RewardEngine = (*rewardEngine)(nil)

// RewardEngine grants subscription time to the two parties of a referral.
type RewardEngine interface {
	// Grant runs the referrer leg, then the referred leg. A failing leg never
	// undoes or blocks the other one.
	Grant(ctx context.Context, r *model.Referral) model.RewardOutcome
	// GrantExtension is the extend-or-create step for a single user.
	GrantExtension(ctx context.Context, party model.Party, userID string, extension time.Duration) model.LegOutcome
}

type RewardPolicy struct {
	ReferrerExtension time.Duration
	ReferredExtension time.Duration
	// ProcessorTimeout bounds each payment processor round-trip.
	ProcessorTimeout time.Duration
}

type rewardEngine struct {
	subs      repository.SubscriptionRepository
	processor adapter.PaymentProcessor
	policy    RewardPolicy
	now       func() time.Time
	log       *zerolog.Logger
}

// NewRewardEngine constructs the engine. processor may be nil when no
// payment provider is configured; processor-managed legs then fail.
func NewRewardEngine(
	subs repository.SubscriptionRepository,
	processor adapter.PaymentProcessor,
	policy RewardPolicy,
	logger *zerolog.Logger,
	opts ...Option,
) *rewardEngine {
	o := applyOptions(opts)
	if policy.ProcessorTimeout <= 0 {
		policy.ProcessorTimeout = 5 * time.Second
	}
	compLog := logger.With().Str("component", "RewardEngine").Logger()
	return &rewardEngine{
		subs:      subs,
		processor: processor,
		policy:    policy,
		now:       o.now,
		log:       &compLog,
	}
}

func (e *rewardEngine) Grant(ctx context.Context, r *model.Referral) model.RewardOutcome {
	return model.RewardOutcome{
		Referrer: e.GrantExtension(ctx, model.PartyReferrer, r.ReferrerUserID, e.policy.ReferrerExtension),
		Referred: e.GrantExtension(ctx, model.PartyReferred, r.ReferredUserID, e.policy.ReferredExtension),
	}
}

func (e *rewardEngine) GrantExtension(ctx context.Context, party model.Party, userID string, extension time.Duration) model.LegOutcome {
	out := e.extendOrCreate(ctx, model.LegOutcome{Party: party, UserID: userID, Extension: extension})

	log := logging.With(ctx, e.log)
	metrics.IncRewardLeg(string(party), string(out.Action), out.Err == nil)
	if out.Err != nil {
		log.Warn().Err(out.Err).
			Str("party", string(party)).
			Str("target_user_id", userID).
			Msg("reward leg failed")
		return out
	}
	ev := log.Info().
		Str("party", string(party)).
		Str("target_user_id", userID).
		Str("action", string(out.Action)).
		Int("days", out.ExtensionDays())
	if out.PeriodEnd != nil {
		ev = ev.Time("period_end", *out.PeriodEnd)
	}
	ev.Msg("reward leg granted")
	return out
}

func (e *rewardEngine) extendOrCreate(ctx context.Context, out model.LegOutcome) model.LegOutcome {
	if out.UserID == "" || out.Extension <= 0 {
		out.Err = domain.ErrInvalidArgument
		return out
	}
	now := e.now()

	sub, err := e.subs.FindByUser(ctx, repository.NoTX, out.UserID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		trial, err := model.NewTrialSubscription(out.UserID, now, out.Extension)
		if err != nil {
			out.Err = err
			return out
		}
		err = e.subs.CreateTrial(ctx, repository.NoTX, trial)
		if err == nil {
			out.Action = model.LegActionCreated
			out.PeriodEnd = trial.CurrentPeriodEnd
			return out
		}
		if !errors.Is(err, domain.ErrAlreadyExists) {
			out.Err = fmt.Errorf("create trial: %w", err)
			return out
		}
		// another writer created the record first; extend theirs instead
		sub, err = e.subs.FindByUser(ctx, repository.NoTX, out.UserID)
		if err != nil {
			out.Err = fmt.Errorf("reload subscription: %w", err)
			return out
		}
	case err != nil:
		out.Err = fmt.Errorf("load subscription: %w", err)
		return out
	}

	if sub.IsProcessorManaged() {
		return e.extendAtProcessor(ctx, sub, out)
	}

	updated, err := e.subs.Extend(ctx, repository.NoTX, out.UserID, out.Extension, now)
	if err != nil {
		out.Err = fmt.Errorf("extend subscription: %w", err)
		return out
	}
	out.Action = model.LegActionExtended
	out.PeriodEnd = updated.PeriodEnd()
	return out
}

// extendAtProcessor moves the provider-tracked period first and then mirrors
// the provider's answer locally.
func (e *rewardEngine) extendAtProcessor(ctx context.Context, sub *model.Subscription, out model.LegOutcome) model.LegOutcome {
	if e.processor == nil {
		out.Err = fmt.Errorf("%w: no processor configured", domain.ErrProcessorUnavailable)
		return out
	}

	pctx, cancel := context.WithTimeout(ctx, e.policy.ProcessorTimeout)
	defer cancel()

	start := time.Now()
	newEnd, err := e.processor.ExtendPeriod(pctx, *sub.StripeSubscriptionID, out.Extension)
	metrics.ObserveProcessorCall(e.processor.Name(), "extend_period", time.Since(start).Milliseconds(), err == nil)
	if err != nil {
		out.Err = fmt.Errorf("%w: %v", domain.ErrProcessorUnavailable, err)
		return out
	}

	// the provider already holds the extension; mirror it past the caller's deadline
	mctx, mcancel := context.WithTimeout(context.WithoutCancel(ctx), e.policy.ProcessorTimeout)
	defer mcancel()

	log := logging.With(ctx, e.log)
	if sub.CurrentPeriodEnd != nil && !newEnd.After(*sub.CurrentPeriodEnd) {
		newEnd = e.confirmPeriodEnd(mctx, log, *sub.StripeSubscriptionID, newEnd)
	}

	out.Action = model.LegActionProcessorExtended
	out.PeriodEnd = &newEnd

	if _, err := e.subs.MirrorPeriodEnd(mctx, repository.NoTX, sub.UserID, newEnd); err != nil {
		// the provider already holds the new period; its webhook will resync us
		log.Warn().Err(err).Str("target_user_id", sub.UserID).Msg("mirroring processor period failed")
	}
	return out
}

// confirmPeriodEnd re-reads the provider's period when an update answer did
// not move past the locally known end. The later of the two values wins.
func (e *rewardEngine) confirmPeriodEnd(ctx context.Context, log *zerolog.Logger, subscriptionID string, answered time.Time) time.Time {
	start := time.Now()
	current, err := e.processor.CurrentPeriodEnd(ctx, subscriptionID)
	metrics.ObserveProcessorCall(e.processor.Name(), "current_period_end", time.Since(start).Milliseconds(), err == nil)
	if err != nil {
		log.Warn().Err(err).Str("subscription_id", subscriptionID).Msg("re-reading processor period failed")
		return answered
	}
	if current.After(answered) {
		return current
	}
	return answered
}
