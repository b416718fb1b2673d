//go:build !integration

package apiv1_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"astro-referrals/internal/domain/model"
	apiv1 "astro-referrals/internal/infra/api/apiv1"
	"astro-referrals/internal/usecase"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(nil)
	return &l
}

type fakeActivation struct {
	got    []model.ActivationEvent
	result *model.ActivationResult
	err    error
}

func (f *fakeActivation) HandleActivation(ctx context.Context, ev model.ActivationEvent) (*model.ActivationResult, error) {
	f.got = append(f.got, ev)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeStats struct {
	totals   usecase.ReferralTotals
	progress *model.TierProgress
	awards   []*model.TierAward
	err      error
}

func (f *fakeStats) Totals(ctx context.Context) (usecase.ReferralTotals, error) {
	return f.totals, f.err
}

func (f *fakeStats) Progress(ctx context.Context, referrerUserID string) (*model.TierProgress, []*model.TierAward, error) {
	return f.progress, f.awards, f.err
}

func (f *fakeStats) Refresh(ctx context.Context) error { return f.err }

type fakeLimiter struct {
	allow bool
	err   error
	keys  []string
}

func (f *fakeLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	f.keys = append(f.keys, key)
	return f.allow, f.err
}

func newRouter(act usecase.ActivationUseCase, stats usecase.StatsUseCase, lim apiv1.IntakeLimiter) http.Handler {
	r := chi.NewRouter()
	apiv1.RegisterAPIV1(r, apiv1.NewServer(act, stats, lim, 10, newTestLogger()))
	return r
}

func postActivation(h http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/internal/v1/activations", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandleActivation(t *testing.T) {
	end := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	next := model.Tier{Name: "Rising Star", Referrals: 3, BonusDays: 14}

	t.Run("should accept a valid event and render both legs", func(t *testing.T) {
		act := &fakeActivation{result: &model.ActivationResult{
			Activated: true,
			Reward: &model.RewardOutcome{
				Referrer: model.LegOutcome{Party: model.PartyReferrer, Extension: 7 * 24 * time.Hour, Action: model.LegActionExtended, PeriodEnd: &end},
				Referred: model.LegOutcome{Party: model.PartyReferred, Extension: 30 * 24 * time.Hour, Action: model.LegActionCreated, PeriodEnd: &end},
			},
			Progress: &model.TierProgress{Activated: 1, Next: &next, Remaining: 2},
		}}
		lim := &fakeLimiter{allow: true}
		rec := postActivation(newRouter(act, &fakeStats{}, lim), `{"user_id":"u-2","action_type":"reading_completed"}`)

		require.Equal(t, http.StatusAccepted, rec.Code)
		var resp apiv1.ActivationResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.Activated)
		require.NotNil(t, resp.Referrer)
		assert.Equal(t, 7, resp.Referrer.Days)
		assert.Equal(t, "extended", resp.Referrer.Action)
		require.NotNil(t, resp.Referred)
		assert.Equal(t, 30, resp.Referred.Days)
		require.NotNil(t, resp.Progress)
		require.NotNil(t, resp.Progress.Next)
		assert.Equal(t, "Rising Star", resp.Progress.Next.Name)
		assert.Equal(t, 2, resp.Progress.Remaining)

		require.Len(t, act.got, 1)
		assert.Equal(t, "u-2", act.got[0].UserID)
		assert.Equal(t, model.ActionReadingCompleted, act.got[0].ActionType)
		assert.Equal(t, []string{"rate_limit:activation:u-2"}, lim.keys)
	})

	t.Run("should report a guard rejection as accepted", func(t *testing.T) {
		act := &fakeActivation{result: &model.ActivationResult{Rejected: model.RejectTooNew}}
		rec := postActivation(newRouter(act, &fakeStats{}, nil), `{"user_id":"u-2","action_type":"journal_entry"}`)

		require.Equal(t, http.StatusAccepted, rec.Code)
		var resp apiv1.ActivationResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.False(t, resp.Activated)
		assert.Equal(t, "too_new", resp.Rejected)
		assert.Nil(t, resp.Referrer)
	})

	t.Run("should mark a failed leg without leaking the error", func(t *testing.T) {
		act := &fakeActivation{result: &model.ActivationResult{
			Activated: true,
			Reward: &model.RewardOutcome{
				Referrer: model.LegOutcome{Party: model.PartyReferrer, Extension: 7 * 24 * time.Hour, Err: errors.New("db: connection reset")},
				Referred: model.LegOutcome{Party: model.PartyReferred, Extension: 30 * 24 * time.Hour, Action: model.LegActionCreated},
			},
		}}
		rec := postActivation(newRouter(act, &fakeStats{}, nil), `{"user_id":"u-2","action_type":"chart_generated"}`)

		require.Equal(t, http.StatusAccepted, rec.Code)
		assert.NotContains(t, rec.Body.String(), "connection reset")
		assert.Contains(t, rec.Body.String(), "reward not applied")
	})

	t.Run("should pass occurred_at through", func(t *testing.T) {
		act := &fakeActivation{result: &model.ActivationResult{}}
		rec := postActivation(newRouter(act, &fakeStats{}, nil),
			`{"user_id":"u-2","action_type":"compatibility_checked","occurred_at":"2026-02-01T10:00:00Z"}`)

		require.Equal(t, http.StatusAccepted, rec.Code)
		require.Len(t, act.got, 1)
		assert.True(t, act.got[0].OccurredAt.Equal(time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)))
	})

	t.Run("should reject malformed json with 400", func(t *testing.T) {
		act := &fakeActivation{}
		for _, body := range []string{`{`, `{"user_id":"u","action_type":"journal_entry","extra":1}`} {
			rec := postActivation(newRouter(act, &fakeStats{}, nil), body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		}
		assert.Empty(t, act.got)
	})

	t.Run("should reject invalid fields with 422", func(t *testing.T) {
		act := &fakeActivation{}
		cases := []string{
			`{"action_type":"journal_entry"}`,
			`{"user_id":"u-2","action_type":"logged_in"}`,
		}
		for _, body := range cases {
			rec := postActivation(newRouter(act, &fakeStats{}, nil), body)
			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, body)
		}
		assert.Empty(t, act.got)
	})

	t.Run("should return 429 when the intake limit is hit", func(t *testing.T) {
		act := &fakeActivation{}
		rec := postActivation(newRouter(act, &fakeStats{}, &fakeLimiter{allow: false}), `{"user_id":"u-2","action_type":"journal_entry"}`)

		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Empty(t, act.got)
	})

	t.Run("should fail open when the limiter errors", func(t *testing.T) {
		act := &fakeActivation{result: &model.ActivationResult{}}
		rec := postActivation(newRouter(act, &fakeStats{}, &fakeLimiter{err: errors.New("redis down")}), `{"user_id":"u-2","action_type":"journal_entry"}`)

		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.Len(t, act.got, 1)
	})

	t.Run("should return 503 when the ledger write fails", func(t *testing.T) {
		act := &fakeActivation{err: errors.New("mark activated failed")}
		rec := postActivation(newRouter(act, &fakeStats{}, nil), `{"user_id":"u-2","action_type":"journal_entry"}`)

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.NotContains(t, rec.Body.String(), "mark activated")
	})
}

func TestHandleProgress(t *testing.T) {
	current := model.Tier{Name: "Rising Star", Referrals: 3, BonusDays: 14}
	next := model.Tier{Name: "Constellation", Referrals: 5, BonusDays: 30}

	t.Run("should render progress with awards", func(t *testing.T) {
		stats := &fakeStats{
			progress: &model.TierProgress{Activated: 4, Current: &current, Next: &next, Remaining: 1},
			awards:   []*model.TierAward{{ReferrerUserID: "ref-1", TierName: "Rising Star"}},
		}
		req := httptest.NewRequest(http.MethodGet, "/internal/v1/referrers/ref-1/progress", nil)
		rec := httptest.NewRecorder()
		newRouter(&fakeActivation{}, stats, nil).ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var view apiv1.ProgressView
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
		assert.Equal(t, 4, view.Activated)
		assert.Equal(t, "Rising Star", view.Current.Name)
		assert.Equal(t, "Constellation", view.Next.Name)
		assert.Equal(t, 1, view.Remaining)
		assert.Equal(t, []string{"Rising Star"}, view.Awards)
	})

	t.Run("should return 500 on storage failure", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/internal/v1/referrers/ref-1/progress", nil)
		rec := httptest.NewRecorder()
		newRouter(&fakeActivation{}, &fakeStats{err: errors.New("boom")}, nil).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestHandleTotals(t *testing.T) {
	t.Run("should render totals", func(t *testing.T) {
		stats := &fakeStats{totals: usecase.ReferralTotals{Pending: 5, Activated: 12}}
		req := httptest.NewRequest(http.MethodGet, "/internal/v1/stats/referrals", nil)
		rec := httptest.NewRecorder()
		newRouter(&fakeActivation{}, stats, nil).ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"pending":5,"activated":12}`, rec.Body.String())
	})
}
