//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"astro-referrals/internal/domain/model"
	"astro-referrals/internal/domain/ports/repository"
	"astro-referrals/internal/usecase"
)

var testGuardPolicy = usecase.GuardPolicy{
	MinAccountAge:       2 * time.Hour,
	VelocityCap:         3,
	VelocityWindow:      day,
	MaxActivationsPerIP: 2,
}

// guardFixture seeds one pending referral referrer-1 -> referred-1.
func guardFixture(t *testing.T) (*MockReferralRepo, *MockIdentityRepo) {
	t.Helper()
	refs := NewMockReferralRepo()
	ref := &model.Referral{ID: "ref-1", ReferrerUserID: "referrer-1", ReferredUserID: "referred-1", CreatedAt: fixedNow.Add(-6 * time.Hour)}
	if err := refs.Create(context.Background(), nil, ref); err != nil {
		t.Fatalf("seed referral: %v", err)
	}
	ids := NewMockIdentityRepo()
	ids.CreatedAt["referred-1"] = fixedNow.Add(-5 * time.Hour)
	ids.IPs["referred-1"] = "198.51.100.7"
	return refs, ids
}

func TestGuardChain_Evaluate(t *testing.T) {
	ctx := context.Background()
	testLogger := newTestLogger()

	t.Run("should pass a legitimate activation", func(t *testing.T) {
		refs, ids := guardFixture(t)
		g := usecase.NewGuardChain(refs, ids, testGuardPolicy, testLogger, usecase.WithClock(clock()))

		res, err := g.Evaluate(ctx, "referred-1", model.ActionReadingCompleted)

		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if !res.Passed || res.Referral == nil || res.Referral.ID != "ref-1" {
			t.Fatalf("expected pass with ref-1, got %+v", res)
		}
		if res.SessionIP != "198.51.100.7" {
			t.Errorf("expected session ip to be carried, got %q", res.SessionIP)
		}
	})

	t.Run("should reject when no pending referral exists", func(t *testing.T) {
		refs, ids := guardFixture(t)
		g := usecase.NewGuardChain(refs, ids, testGuardPolicy, testLogger, usecase.WithClock(clock()))

		res, err := g.Evaluate(ctx, "stranger", model.ActionJournalEntry)

		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if res.Passed || res.Reason != model.RejectNoReferral {
			t.Errorf("expected no_referral, got %+v", res)
		}
	})

	t.Run("should reject an account younger than the minimum age", func(t *testing.T) {
		refs, ids := guardFixture(t)
		ids.CreatedAt["referred-1"] = fixedNow.Add(-90 * time.Minute)
		g := usecase.NewGuardChain(refs, ids, testGuardPolicy, testLogger, usecase.WithClock(clock()))

		res, _ := g.Evaluate(ctx, "referred-1", model.ActionReadingCompleted)

		if res.Reason != model.RejectTooNew {
			t.Errorf("expected too_new, got %q", res.Reason)
		}
	})

	t.Run("should reject when the referrer hit the velocity cap", func(t *testing.T) {
		refs, ids := guardFixture(t)
		refs.seedActivated("referrer-1", 3, fixedNow.Add(-3*time.Hour), "")
		g := usecase.NewGuardChain(refs, ids, testGuardPolicy, testLogger, usecase.WithClock(clock()))

		res, _ := g.Evaluate(ctx, "referred-1", model.ActionReadingCompleted)

		if res.Reason != model.RejectVelocityExceeded {
			t.Errorf("expected velocity_exceeded, got %q", res.Reason)
		}
	})

	t.Run("should ignore activations outside the velocity window", func(t *testing.T) {
		refs, ids := guardFixture(t)
		refs.seedActivated("referrer-1", 3, fixedNow.Add(-30*time.Hour), "")
		g := usecase.NewGuardChain(refs, ids, testGuardPolicy, testLogger, usecase.WithClock(clock()))

		res, _ := g.Evaluate(ctx, "referred-1", model.ActionReadingCompleted)

		if !res.Passed {
			t.Errorf("expected pass, got %q", res.Reason)
		}
	})

	t.Run("should reject when the session ip was already used", func(t *testing.T) {
		refs, ids := guardFixture(t)
		refs.seedActivated("someone-else", 2, fixedNow.Add(-72*time.Hour), "198.51.100.7")
		g := usecase.NewGuardChain(refs, ids, testGuardPolicy, testLogger, usecase.WithClock(clock()))

		res, _ := g.Evaluate(ctx, "referred-1", model.ActionReadingCompleted)

		if res.Reason != model.RejectDuplicateIP {
			t.Errorf("expected duplicate_ip, got %q", res.Reason)
		}
	})

	t.Run("should skip ip dedup when no session is known", func(t *testing.T) {
		refs, ids := guardFixture(t)
		delete(ids.IPs, "referred-1")
		g := usecase.NewGuardChain(refs, ids, testGuardPolicy, testLogger, usecase.WithClock(clock()))

		res, _ := g.Evaluate(ctx, "referred-1", model.ActionReadingCompleted)

		if !res.Passed || res.SessionIP != "" {
			t.Errorf("expected pass without ip, got %+v", res)
		}
	})

	t.Run("should short-circuit before later guards", func(t *testing.T) {
		refs, ids := guardFixture(t)
		ids.CreatedAt["referred-1"] = fixedNow.Add(-time.Minute)
		velocityCalled := false
		refs.CountActivatedSinceFunc = func(ctx context.Context, tx repository.Tx, referrerUserID string, since time.Time) (int, error) {
			velocityCalled = true
			return 0, nil
		}
		g := usecase.NewGuardChain(refs, ids, testGuardPolicy, testLogger, usecase.WithClock(clock()))

		_, _ = g.Evaluate(ctx, "referred-1", model.ActionReadingCompleted)

		if velocityCalled {
			t.Error("velocity guard must not run after the age guard rejected")
		}
	})

	t.Run("should surface storage errors", func(t *testing.T) {
		refs, ids := guardFixture(t)
		boom := errors.New("connection reset")
		refs.FindPendingFunc = func(ctx context.Context, tx repository.Tx, referredUserID string) (*model.Referral, error) {
			return nil, boom
		}
		g := usecase.NewGuardChain(refs, ids, testGuardPolicy, testLogger, usecase.WithClock(clock()))

		_, err := g.Evaluate(ctx, "referred-1", model.ActionReadingCompleted)

		if !errors.Is(err, boom) {
			t.Errorf("expected wrapped storage error, got %v", err)
		}
	})
}
