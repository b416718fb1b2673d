package apiv1

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"astro-referrals/internal/domain/model"
	"astro-referrals/internal/infra/logging"
	red "astro-referrals/internal/infra/redis"
	"astro-referrals/internal/usecase"
)

// IntakeLimiter caps activation events per user.
type IntakeLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type Server struct {
	activation usecase.ActivationUseCase
	stats      usecase.StatsUseCase
	limiter    IntakeLimiter
	limit      int
	validate   *validator.Validate
	log        *zerolog.Logger
}

// NewServer wires the v1 handlers. limiter may be nil to disable the intake limit.
func NewServer(activation usecase.ActivationUseCase, stats usecase.StatsUseCase, limiter IntakeLimiter, perMinute int, logger *zerolog.Logger) *Server {
	compLog := logger.With().Str("component", "APIv1").Logger()
	return &Server{
		activation: activation,
		stats:      stats,
		limiter:    limiter,
		limit:      perMinute,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		log:        &compLog,
	}
}

// RegisterAPIV1 mounts the internal routes on r. Authentication is applied by
// the caller.
func RegisterAPIV1(r chi.Router, s *Server) {
	r.Route("/internal/v1", func(r chi.Router) {
		r.Post("/activations", s.handleActivation)
		r.Get("/referrers/{userID}/progress", s.handleProgress)
		r.Get("/stats/referrals", s.handleTotals)
	})
}

// ActivationRequest is the intake body.
type ActivationRequest struct {
	UserID     string     `json:"user_id" validate:"required,max=128"`
	ActionType string     `json:"action_type" validate:"required,oneof=reading_completed journal_entry chart_generated compatibility_checked"`
	OccurredAt *time.Time `json:"occurred_at,omitempty"`
}

type ActivationResponse struct {
	Activated bool          `json:"activated"`
	Rejected  string        `json:"rejected,omitempty"`
	Referrer  *LegView      `json:"referrer,omitempty"`
	Referred  *LegView      `json:"referred,omitempty"`
	Progress  *ProgressView `json:"progress,omitempty"`
}

type LegView struct {
	Action    string     `json:"action,omitempty"`
	Days      int        `json:"days"`
	PeriodEnd *time.Time `json:"period_end,omitempty"`
	Error     string     `json:"error,omitempty"`
}

type TierView struct {
	Name      string `json:"name"`
	Referrals int    `json:"referrals"`
	BonusDays int    `json:"bonus_days"`
}

type ProgressView struct {
	Activated int       `json:"activated"`
	Current   *TierView `json:"current,omitempty"`
	Next      *TierView `json:"next,omitempty"`
	Remaining int       `json:"remaining"`
	Awards    []string  `json:"awards,omitempty"`
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) handleActivation(w http.ResponseWriter, r *http.Request) {
	log := logging.With(r.Context(), s.log)

	var req ActivationRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json body"})
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: validationMessage(err)})
		return
	}

	if s.limiter != nil && s.limit > 0 {
		ok, err := s.limiter.Allow(r.Context(), red.ActivationIntakeKey(req.UserID), s.limit, time.Minute)
		if err != nil {
			log.Warn().Err(err).Msg("intake rate limiter unavailable; allowing")
		} else if !ok {
			writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "too many activation events"})
			return
		}
	}

	ev := model.ActivationEvent{UserID: req.UserID, ActionType: req.ActionType}
	if req.OccurredAt != nil {
		ev.OccurredAt = *req.OccurredAt
	}
	res, err := s.activation.HandleActivation(r.Context(), ev)
	if err != nil {
		// ledger write failed: the caller should retry the event
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "activation could not be recorded"})
		return
	}
	writeJSON(w, http.StatusAccepted, toActivationResponse(res))
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "missing user id"})
		return
	}
	p, awards, err := s.stats.Progress(r.Context(), userID)
	if err != nil {
		log := logging.With(r.Context(), s.log)
		log.Error().Err(err).Msg("load tier progress failed")
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "progress unavailable"})
		return
	}
	view := toProgressView(p)
	for _, a := range awards {
		view.Awards = append(view.Awards, a.TierName)
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleTotals(w http.ResponseWriter, r *http.Request) {
	t, err := s.stats.Totals(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "stats unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func toActivationResponse(res *model.ActivationResult) ActivationResponse {
	out := ActivationResponse{Activated: res.Activated, Rejected: string(res.Rejected)}
	if res.Reward != nil {
		out.Referrer = toLegView(res.Reward.Referrer)
		out.Referred = toLegView(res.Reward.Referred)
	}
	if res.Progress != nil {
		out.Progress = toProgressView(res.Progress)
	}
	return out
}

func toLegView(l model.LegOutcome) *LegView {
	v := &LegView{Action: string(l.Action), Days: l.ExtensionDays(), PeriodEnd: l.PeriodEnd}
	if l.Err != nil {
		v.Error = "reward not applied"
	}
	return v
}

func toProgressView(p *model.TierProgress) *ProgressView {
	v := &ProgressView{Activated: p.Activated, Remaining: p.Remaining}
	if p.Current != nil {
		v.Current = &TierView{Name: p.Current.Name, Referrals: p.Current.Referrals, BonusDays: p.Current.BonusDays}
	}
	if p.Next != nil {
		v.Next = &TierView{Name: p.Next.Name, Referrals: p.Next.Referrals, BonusDays: p.Next.BonusDays}
	}
	return v
}

func validationMessage(err error) string {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		return ve[0].Field() + " failed " + ve[0].Tag()
	}
	return "invalid request"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
