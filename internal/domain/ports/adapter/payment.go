package adapter

import (
	"context"
	"time"
)

// PaymentProcessor is the hex port for the external billing provider. For
// actively paid subscriptions it is the source of truth for the period end.
type PaymentProcessor interface {
	Name() string
	// CurrentPeriodEnd reads the provider-tracked period end.
	CurrentPeriodEnd(ctx context.Context, subscriptionID string) (time.Time, error)
	// ExtendPeriod pushes the provider-tracked period end forward by `by` and
	// returns the new end as reported by the provider.
	ExtendPeriod(ctx context.Context, subscriptionID string, by time.Duration) (time.Time, error)
}
