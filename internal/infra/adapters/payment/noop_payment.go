package payment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"astro-referrals/internal/domain"
	"astro-referrals/internal/domain/ports/adapter"
)

var _ adapter.PaymentProcessor = (*NoopProcessor)(nil)

// NoopProcessor is an in-memory processor for dev mode and tests. Unknown
// subscriptions start their period at the first call.
type NoopProcessor struct {
	mu      sync.Mutex
	periods map[string]time.Time
	now     func() time.Time
}

func NewNoopProcessor() *NoopProcessor {
	return &NoopProcessor{
		periods: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (p *NoopProcessor) Name() string { return "noop" }

func (p *NoopProcessor) CurrentPeriodEnd(ctx context.Context, subscriptionID string) (time.Time, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	end, ok := p.periods[subscriptionID]
	if !ok {
		return time.Time{}, fmt.Errorf("noop: %w: %s", domain.ErrNotFound, subscriptionID)
	}
	return end, nil
}

func (p *NoopProcessor) ExtendPeriod(ctx context.Context, subscriptionID string, by time.Duration) (time.Time, error) {
	if subscriptionID == "" || by <= 0 {
		return time.Time{}, domain.ErrInvalidArgument
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	from := p.periods[subscriptionID]
	if now := p.now(); from.Before(now) {
		from = now
	}
	end := from.Add(by)
	p.periods[subscriptionID] = end
	return end, nil
}
