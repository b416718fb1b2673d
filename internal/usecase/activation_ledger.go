package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"astro-referrals/internal/domain/ports/repository"
	"astro-referrals/internal/infra/logging"
)

// Compile-time check
var _ ActivationLedger = (*activationLedger)(nil)

// ActivationLedger records that a referral has paid out. The write is a
// compare-and-set on activated_at, so only one caller can ever win.
type ActivationLedger interface {
	// MarkActivated reports false, with no error, when the referral was
	// already activated.
	MarkActivated(ctx context.Context, referralID, ip, actionType string) (bool, error)
}

type activationLedger struct {
	referrals repository.ReferralRepository
	now       func() time.Time
	log       *zerolog.Logger
}

func NewActivationLedger(referrals repository.ReferralRepository, logger *zerolog.Logger, opts ...Option) *activationLedger {
	o := applyOptions(opts)
	compLog := logger.With().Str("component", "ActivationLedger").Logger()
	return &activationLedger{referrals: referrals, now: o.now, log: &compLog}
}

func (l *activationLedger) MarkActivated(ctx context.Context, referralID, ip, actionType string) (bool, error) {
	ok, err := l.referrals.MarkActivated(ctx, repository.NoTX, referralID, ip, actionType, l.now())
	if err != nil {
		return false, err
	}
	if !ok {
		log := logging.With(ctx, l.log)
		log.Warn().Str("referral_id", referralID).Msg("referral was already activated")
	}
	return ok, nil
}
