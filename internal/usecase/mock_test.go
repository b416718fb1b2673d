//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"astro-referrals/internal/domain"
	"astro-referrals/internal/domain/model"
	"astro-referrals/internal/domain/ports/adapter"
	"astro-referrals/internal/domain/ports/repository"
	"astro-referrals/internal/usecase"
)

// -----------------------------
// Utilities: tiny helpers
// -----------------------------

const day = 24 * time.Hour

// fixedNow is the frozen clock used across the use case tests.
var fixedNow = time.Date(2026, 6, 21, 9, 30, 0, 0, time.UTC)

func clock() func() time.Time { return func() time.Time { return fixedNow } }

func ptrTime(t time.Time) *time.Time { return &t }
func ptrStr(s string) *string        { return &s }

// newTestLogger creates a silent zerolog.Logger for use in tests.
// It writes to io.Discard to prevent logs from cluttering test output.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// =============================
// Repositories
// =============================

// ---- MockReferralRepo ----

// MockReferralRepo keeps referrals in memory and honours the ledger's
// compare-and-set. The *Func fields override individual methods.
type MockReferralRepo struct {
	mu   sync.Mutex
	byID map[string]*model.Referral

	MarkActivatedFunc       func(ctx context.Context, tx repository.Tx, id, ip, actionType string, at time.Time) (bool, error)
	CountActivatedFunc      func(ctx context.Context, tx repository.Tx, referrerUserID string) (int, error)
	FindPendingFunc         func(ctx context.Context, tx repository.Tx, referredUserID string) (*model.Referral, error)
	CountActivatedSinceFunc func(ctx context.Context, tx repository.Tx, referrerUserID string, since time.Time) (int, error)

	MarkCalls int
}

var _ repository.ReferralRepository = (*MockReferralRepo)(nil)

func NewMockReferralRepo() *MockReferralRepo {
	return &MockReferralRepo{byID: make(map[string]*model.Referral)}
}

func (m *MockReferralRepo) Create(ctx context.Context, tx repository.Tx, r *model.Referral) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, x := range m.byID {
		if x.ReferredUserID == r.ReferredUserID {
			return domain.ErrAlreadyExists
		}
	}
	cp := *r
	m.byID[r.ID] = &cp
	return nil
}

func (m *MockReferralRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Referral, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MockReferralRepo) FindPendingByReferred(ctx context.Context, tx repository.Tx, referredUserID string) (*model.Referral, error) {
	if m.FindPendingFunc != nil {
		return m.FindPendingFunc(ctx, tx, referredUserID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.byID {
		if r.ReferredUserID == referredUserID && r.ActivatedAt == nil {
			cp := *r
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockReferralRepo) CountActivatedSince(ctx context.Context, tx repository.Tx, referrerUserID string, since time.Time) (int, error) {
	if m.CountActivatedSinceFunc != nil {
		return m.CountActivatedSinceFunc(ctx, tx, referrerUserID, since)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.byID {
		if r.ReferrerUserID == referrerUserID && r.ActivatedAt != nil && !r.ActivatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *MockReferralRepo) CountActivatedByIP(ctx context.Context, tx repository.Tx, ip string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.byID {
		if r.ActivatedAt != nil && r.ActivationIP != nil && *r.ActivationIP == ip {
			n++
		}
	}
	return n, nil
}

func (m *MockReferralRepo) CountActivated(ctx context.Context, tx repository.Tx, referrerUserID string) (int, error) {
	if m.CountActivatedFunc != nil {
		return m.CountActivatedFunc(ctx, tx, referrerUserID)
	}
	return m.CountActivatedSince(ctx, tx, referrerUserID, time.Time{})
}

func (m *MockReferralRepo) MarkActivated(ctx context.Context, tx repository.Tx, id, ip, actionType string, at time.Time) (bool, error) {
	m.mu.Lock()
	m.MarkCalls++
	m.mu.Unlock()
	if m.MarkActivatedFunc != nil {
		return m.MarkActivatedFunc(ctx, tx, id, ip, actionType, at)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byID[id]
	if !ok || r.ActivatedAt != nil {
		return false, nil
	}
	r.ActivatedAt = &at
	if ip != "" {
		r.ActivationIP = &ip
	}
	r.ActionType = &actionType
	return true, nil
}

func (m *MockReferralRepo) ListReferrersActivatedSince(ctx context.Context, tx repository.Tx, since time.Time, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, r := range m.byID {
		if r.ActivatedAt == nil || r.ActivatedAt.Before(since) || seen[r.ReferrerUserID] {
			continue
		}
		seen[r.ReferrerUserID] = true
		out = append(out, r.ReferrerUserID)
	}
	sort.Strings(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockReferralRepo) CountByState(ctx context.Context, tx repository.Tx) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var pending, activated int
	for _, r := range m.byID {
		if r.ActivatedAt == nil {
			pending++
		} else {
			activated++
		}
	}
	return pending, activated, nil
}

// seedActivated stores n activated referrals for referrer at `at` from ip.
func (m *MockReferralRepo) seedActivated(referrer string, n int, at time.Time, ip string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("%s-seed-%d", referrer, len(m.byID))
		r := &model.Referral{ID: id, ReferrerUserID: referrer, ReferredUserID: id + "-user", ActivatedAt: ptrTime(at)}
		if ip != "" {
			r.ActivationIP = ptrStr(ip)
		}
		m.byID[id] = r
	}
}

// ---- MockSubscriptionRepo ----

type MockSubscriptionRepo struct {
	mu     sync.Mutex
	byUser map[string]*model.Subscription

	FindByUserFunc func(ctx context.Context, tx repository.Tx, userID string) (*model.Subscription, error)
	ExtendFunc     func(ctx context.Context, tx repository.Tx, userID string, by time.Duration, now time.Time) (*model.Subscription, error)

	Creates      int
	Writes       int
	MirrorCtxErr error
}

var _ repository.SubscriptionRepository = (*MockSubscriptionRepo)(nil)

func NewMockSubscriptionRepo() *MockSubscriptionRepo {
	return &MockSubscriptionRepo{byUser: make(map[string]*model.Subscription)}
}

func (m *MockSubscriptionRepo) put(s *model.Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.byUser[s.UserID] = &cp
}

func (m *MockSubscriptionRepo) get(userID string) *model.Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byUser[userID]
	if !ok {
		return nil
	}
	cp := *s
	return &cp
}

func (m *MockSubscriptionRepo) FindByUser(ctx context.Context, tx repository.Tx, userID string) (*model.Subscription, error) {
	if m.FindByUserFunc != nil {
		return m.FindByUserFunc(ctx, tx, userID)
	}
	if s := m.get(userID); s != nil {
		return s, nil
	}
	return nil, domain.ErrNotFound
}

func (m *MockSubscriptionRepo) CreateTrial(ctx context.Context, tx repository.Tx, sub *model.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byUser[sub.UserID]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *sub
	m.byUser[sub.UserID] = &cp
	m.Creates++
	m.Writes++
	return nil
}

func (m *MockSubscriptionRepo) Extend(ctx context.Context, tx repository.Tx, userID string, by time.Duration, now time.Time) (*model.Subscription, error) {
	if m.ExtendFunc != nil {
		return m.ExtendFunc(ctx, tx, userID, by, now)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byUser[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	from := func(t *time.Time) time.Time {
		if t == nil || t.Before(now) {
			return now
		}
		return *t
	}
	end := from(s.CurrentPeriodEnd).Add(by)
	s.CurrentPeriodEnd = &end
	switch s.Status {
	case model.SubscriptionStatusTrial:
		te := from(s.TrialEndsAt).Add(by)
		s.TrialEndsAt = &te
	case model.SubscriptionStatusFree, model.SubscriptionStatusCancelled:
		te := end
		s.TrialEndsAt = &te
		s.Status = model.SubscriptionStatusTrial
		s.PlanType = model.PlanTypeReferralTrial
	}
	s.UpdatedAt = now
	m.Writes++
	cp := *s
	return &cp, nil
}

func (m *MockSubscriptionRepo) MirrorPeriodEnd(ctx context.Context, tx repository.Tx, userID string, end time.Time) (*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byUser[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	m.MirrorCtxErr = ctx.Err()
	if s.CurrentPeriodEnd == nil || end.After(*s.CurrentPeriodEnd) {
		s.CurrentPeriodEnd = &end
	}
	m.Writes++
	cp := *s
	return &cp, nil
}

// ---- MockIdentityRepo ----

type MockIdentityRepo struct {
	CreatedAt map[string]time.Time
	IPs       map[string]string
	Err       error
}

var _ repository.IdentityRepository = (*MockIdentityRepo)(nil)

func NewMockIdentityRepo() *MockIdentityRepo {
	return &MockIdentityRepo{CreatedAt: map[string]time.Time{}, IPs: map[string]string{}}
}

func (m *MockIdentityRepo) AccountCreatedAt(ctx context.Context, tx repository.Tx, userID string) (time.Time, error) {
	if m.Err != nil {
		return time.Time{}, m.Err
	}
	t, ok := m.CreatedAt[userID]
	if !ok {
		return time.Time{}, domain.ErrNotFound
	}
	return t, nil
}

func (m *MockIdentityRepo) LatestSessionIP(ctx context.Context, tx repository.Tx, userID string) (string, error) {
	ip, ok := m.IPs[userID]
	if !ok {
		return "", domain.ErrNotFound
	}
	return ip, nil
}

// ---- MockTierAwardRepo ----

type MockTierAwardRepo struct {
	mu       sync.Mutex
	awards   map[string]*model.TierAward // referrer|tier -> award
	Released int
}

var _ repository.TierAwardRepository = (*MockTierAwardRepo)(nil)

func NewMockTierAwardRepo() *MockTierAwardRepo {
	return &MockTierAwardRepo{awards: map[string]*model.TierAward{}}
}

func (m *MockTierAwardRepo) Claim(ctx context.Context, tx repository.Tx, a *model.TierAward) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := a.ReferrerUserID + "|" + a.TierName
	if _, ok := m.awards[k]; ok {
		return false, nil
	}
	cp := *a
	m.awards[k] = &cp
	return true, nil
}

func (m *MockTierAwardRepo) Release(ctx context.Context, tx repository.Tx, awardID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Released++
	for k, a := range m.awards {
		if a.ID == awardID {
			delete(m.awards, k)
		}
	}
	return nil
}

func (m *MockTierAwardRepo) ListByReferrer(ctx context.Context, tx repository.Tx, referrerUserID string) ([]*model.TierAward, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.TierAward
	for _, a := range m.awards {
		if a.ReferrerUserID == referrerUserID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

// =============================
// Adapters
// =============================

// ---- MockProcessor ----

type MockProcessor struct {
	mu       sync.Mutex
	Periods  map[string]time.Time // stripe subscription id -> period end
	Err      error
	Extended []string

	// StaleAnswer applies the extension but answers with the previous end.
	StaleAnswer bool
	OnExtend    func()
	Reads       int
}

var _ adapter.PaymentProcessor = (*MockProcessor)(nil)

func NewMockProcessor() *MockProcessor { return &MockProcessor{Periods: map[string]time.Time{}} }

func (m *MockProcessor) Name() string { return "mock" }

func (m *MockProcessor) CurrentPeriodEnd(ctx context.Context, subscriptionID string) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Reads++
	if m.Err != nil {
		return time.Time{}, m.Err
	}
	end, ok := m.Periods[subscriptionID]
	if !ok {
		return time.Time{}, errors.New("no such subscription")
	}
	return end, nil
}

func (m *MockProcessor) ExtendPeriod(ctx context.Context, subscriptionID string, by time.Duration) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return time.Time{}, m.Err
	}
	end, ok := m.Periods[subscriptionID]
	if !ok {
		return time.Time{}, errors.New("no such subscription")
	}
	m.Periods[subscriptionID] = end.Add(by)
	m.Extended = append(m.Extended, subscriptionID)
	if m.OnExtend != nil {
		m.OnExtend()
	}
	if m.StaleAnswer {
		return end, nil
	}
	return end.Add(by), nil
}

// ---- MockPushSender ----

type sentPush struct {
	UserID string
	Msg    model.PushMessage
}

type MockPushSender struct {
	mu   sync.Mutex
	Sent []sentPush
	// Unreachable users get domain.ErrNoPushEndpoint.
	Unreachable map[string]bool
}

var _ adapter.PushSender = (*MockPushSender)(nil)

func (m *MockPushSender) SendToUser(ctx context.Context, userID string, msg model.PushMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Unreachable[userID] {
		return domain.ErrNoPushEndpoint
	}
	m.Sent = append(m.Sent, sentPush{UserID: userID, Msg: msg})
	return nil
}

// ---- MockNotifier ----

type notifyCall struct {
	UserID string
	Key    usecase.TemplateKey
	Data   usecase.NotificationContext
}

type MockNotifier struct {
	mu    sync.Mutex
	Calls []notifyCall
	Err   map[string]error // per user
}

var _ usecase.NotificationUseCase = (*MockNotifier)(nil)

func (m *MockNotifier) Notify(ctx context.Context, userID string, key usecase.TemplateKey, data usecase.NotificationContext) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, notifyCall{UserID: userID, Key: key, Data: data})
	return m.Err[userID]
}

func (m *MockNotifier) calls() []notifyCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]notifyCall(nil), m.Calls...)
}

// ---- MockLocker ----

type MockLocker struct {
	mu       sync.Mutex
	held     map[string]string
	Err      error
	Unlocked int
}

var _ adapter.Locker = (*MockLocker)(nil)

func NewMockLocker() *MockLocker { return &MockLocker{held: map[string]string{}} }

func (m *MockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return "", m.Err
	}
	if _, ok := m.held[key]; ok {
		return "", domain.ErrLockNotAcquired
	}
	m.held[key] = "tok-" + key
	return m.held[key], nil
}

func (m *MockLocker) Unlock(ctx context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[key] == token {
		delete(m.held, key)
	}
	m.Unlocked++
	return nil
}

// ---- recordingRunner runs tasks inline and keeps their errors ----

type recordingRunner struct {
	mu    sync.Mutex
	Names []string
	Errs  []error
}

func (r *recordingRunner) Go(name string, task func(ctx context.Context) error) {
	err := task(context.Background())
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Names = append(r.Names, name)
	r.Errs = append(r.Errs, err)
}
