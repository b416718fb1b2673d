package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"astro-referrals/internal/domain"
	"astro-referrals/internal/domain/model"
	"astro-referrals/internal/domain/ports/repository"
	"astro-referrals/internal/infra/logging"
	"astro-referrals/internal/infra/metrics"
)

// Compile-time check
var _ GuardChain = (*guardChain)(nil)

// GuardChain decides whether an activation event may lead to a reward.
// It only reads. A rejection is a normal outcome, not an error; the error
// return is reserved for storage failures.
type GuardChain interface {
	Evaluate(ctx context.Context, referredUserID, actionType string) (model.GuardResult, error)
}

// GuardPolicy carries the abuse thresholds.
type GuardPolicy struct {
	MinAccountAge       time.Duration
	VelocityCap         int
	VelocityWindow      time.Duration
	MaxActivationsPerIP int
	// Dev disables IP redaction in logs.
	Dev bool
}

type guardChain struct {
	referrals repository.ReferralRepository
	identity  repository.IdentityRepository
	policy    GuardPolicy
	now       func() time.Time
	log       *zerolog.Logger
}

func NewGuardChain(
	referrals repository.ReferralRepository,
	identity repository.IdentityRepository,
	policy GuardPolicy,
	logger *zerolog.Logger,
	opts ...Option,
) *guardChain {
	o := applyOptions(opts)
	compLog := logger.With().Str("component", "GuardChain").Logger()
	return &guardChain{
		referrals: referrals,
		identity:  identity,
		policy:    policy,
		now:       o.now,
		log:       &compLog,
	}
}

// Evaluate runs the guards in fixed order and stops at the first failure:
// referral lookup, account age, referrer velocity, IP dedup.
func (g *guardChain) Evaluate(ctx context.Context, referredUserID, actionType string) (model.GuardResult, error) {
	log := logging.With(ctx, g.log)
	now := g.now()

	ref, err := g.referrals.FindPendingByReferred(ctx, repository.NoTX, referredUserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return g.reject(log, model.RejectNoReferral, referredUserID, actionType), nil
		}
		return model.GuardResult{}, fmt.Errorf("referral lookup: %w", err)
	}

	createdAt, err := g.identity.AccountCreatedAt(ctx, repository.NoTX, referredUserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// an account we cannot date is treated as brand new
			return g.reject(log, model.RejectTooNew, referredUserID, actionType), nil
		}
		return model.GuardResult{}, fmt.Errorf("account age: %w", err)
	}
	if now.Sub(createdAt) < g.policy.MinAccountAge {
		return g.reject(log, model.RejectTooNew, referredUserID, actionType), nil
	}

	since := now.Add(-g.policy.VelocityWindow)
	credited, err := g.referrals.CountActivatedSince(ctx, repository.NoTX, ref.ReferrerUserID, since)
	if err != nil {
		return model.GuardResult{}, fmt.Errorf("velocity count: %w", err)
	}
	if credited >= g.policy.VelocityCap {
		return g.reject(log, model.RejectVelocityExceeded, referredUserID, actionType), nil
	}

	ip, err := g.identity.LatestSessionIP(ctx, repository.NoTX, referredUserID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return model.GuardResult{}, fmt.Errorf("session ip: %w", err)
	}
	if ip != "" {
		dup, err := g.referrals.CountActivatedByIP(ctx, repository.NoTX, ip)
		if err != nil {
			return model.GuardResult{}, fmt.Errorf("ip dedup count: %w", err)
		}
		if dup >= g.policy.MaxActivationsPerIP {
			log.Debug().Str("ip", logging.Redact(ip, g.policy.Dev)).Int("prior", dup).Msg("ip already used for activations")
			return g.reject(log, model.RejectDuplicateIP, referredUserID, actionType), nil
		}
	}

	return model.Pass(ref, ip), nil
}

func (g *guardChain) reject(log *zerolog.Logger, reason model.RejectReason, userID, actionType string) model.GuardResult {
	metrics.IncGuardRejection(string(reason))
	log.Debug().
		Str("referred_user_id", userID).
		Str("action_type", actionType).
		Str("reason", string(reason)).
		Msg("referral activation rejected")
	return model.Reject(reason)
}
