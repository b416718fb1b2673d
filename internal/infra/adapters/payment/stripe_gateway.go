package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"astro-referrals/internal/domain"
	"astro-referrals/internal/domain/ports/adapter"
)

var _ adapter.PaymentProcessor = (*StripeProcessor)(nil)

// StripeProcessor moves billing periods of live Stripe subscriptions. Free
// time is granted by pushing trial_end forward without proration, which also
// moves current_period_end and delays the next invoice.
type StripeProcessor struct {
	api *client.API
	now func() time.Time
	log *zerolog.Logger
}

func NewStripeProcessor(secretKey string, logger *zerolog.Logger) (*StripeProcessor, error) {
	if secretKey == "" {
		return nil, errors.New("stripe: secret key is required")
	}
	api := &client.API{}
	api.Init(secretKey, nil)
	compLog := logger.With().Str("component", "StripeProcessor").Logger()
	return &StripeProcessor{api: api, now: time.Now, log: &compLog}, nil
}

func (p *StripeProcessor) Name() string { return "stripe" }

func (p *StripeProcessor) CurrentPeriodEnd(ctx context.Context, subscriptionID string) (time.Time, error) {
	sub, err := p.get(ctx, subscriptionID)
	if err != nil {
		return time.Time{}, err
	}
	return periodEnd(sub), nil
}

// ExtendPeriod reads the live period and writes end+by back as trial_end.
// The returned time is Stripe's answer, not the locally computed value.
func (p *StripeProcessor) ExtendPeriod(ctx context.Context, subscriptionID string, by time.Duration) (time.Time, error) {
	if by <= 0 {
		return time.Time{}, domain.ErrInvalidArgument
	}
	sub, err := p.get(ctx, subscriptionID)
	if err != nil {
		return time.Time{}, err
	}

	from := periodEnd(sub)
	if now := p.now(); from.Before(now) {
		from = now
	}
	target := from.Add(by)

	params := &stripe.SubscriptionParams{
		TrialEnd:          stripe.Int64(target.Unix()),
		ProrationBehavior: stripe.String("none"),
	}
	params.Context = ctx
	params.AddMetadata("referral_extension_days", fmt.Sprintf("%d", int(by/(24*time.Hour))))

	updated, err := p.api.Subscriptions.Update(subscriptionID, params)
	if err != nil {
		return time.Time{}, classify(err)
	}
	end := periodEnd(updated)
	p.log.Debug().
		Str("subscription_id", subscriptionID).
		Time("from", from).
		Time("period_end", end).
		Msg("stripe period extended")
	return end, nil
}

func (p *StripeProcessor) get(ctx context.Context, subscriptionID string) (*stripe.Subscription, error) {
	if subscriptionID == "" {
		return nil, domain.ErrInvalidArgument
	}
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	sub, err := p.api.Subscriptions.Get(subscriptionID, params)
	if err != nil {
		return nil, classify(err)
	}
	return sub, nil
}

// periodEnd prefers a future trial end, since that is what Stripe bills from.
func periodEnd(sub *stripe.Subscription) time.Time {
	end := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
	if sub.TrialEnd > 0 {
		if te := time.Unix(sub.TrialEnd, 0).UTC(); te.After(end) {
			end = te
		}
	}
	return end
}

// classify maps "no such subscription" to domain.ErrNotFound and leaves
// everything else as-is for the caller to treat as an outage.
func classify(err error) error {
	var se *stripe.Error
	if errors.As(err, &se) && se.HTTPStatusCode == 404 {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, se.Msg)
	}
	return err
}
