package usecase

import (
	"context"
	"errors"
	"strconv"

	"github.com/rs/zerolog"

	"astro-referrals/internal/domain"
	"astro-referrals/internal/domain/model"
	"astro-referrals/internal/domain/ports/adapter"
	"astro-referrals/internal/infra/i18n"
	"astro-referrals/internal/infra/logging"
	"astro-referrals/internal/infra/metrics"
)

// Compile-time check
var _ NotificationUseCase = (*notificationUC)(nil)

type TemplateKey string

const (
	TemplateReferrerReward TemplateKey = "referral_reward_referrer"
	TemplateReferredReward TemplateKey = "referral_reward_referred"
	TemplateTierUnlocked   TemplateKey = "referral_tier_unlocked"
)

// NotificationContext feeds the copy templates.
type NotificationContext struct {
	Days      int
	Activated int
	TierName  string // tier just reached
	NextTier  string // empty when the tier hint is omitted
	Remaining int
}

type NotificationUseCase interface {
	// Notify renders the template and pushes it to every device of the user.
	// The returned error is informational; callers must not retry on it.
	Notify(ctx context.Context, userID string, key TemplateKey, data NotificationContext) error
}

// CopyRenderer turns a template key into push title and body.
type CopyRenderer interface {
	Render(key string, data any) (title, body string, err error)
}

type notificationUC struct {
	push     adapter.PushSender
	renderer CopyRenderer
	log      *zerolog.Logger
}

// NewNotificationUseCase renders with renderer, or with the embedded English
// catalog when renderer is nil.
func NewNotificationUseCase(push adapter.PushSender, renderer CopyRenderer, logger *zerolog.Logger) *notificationUC {
	if renderer == nil {
		renderer = i18n.Default()
	}
	compLog := logger.With().Str("component", "NotificationUC").Logger()
	return &notificationUC{push: push, renderer: renderer, log: &compLog}
}

func (n *notificationUC) Notify(ctx context.Context, userID string, key TemplateKey, data NotificationContext) error {
	log := logging.With(ctx, n.log)

	msg, err := n.render(key, data)
	if err != nil {
		metrics.IncNotification(string(key), "failed")
		log.Error().Err(err).Str("template", string(key)).Msg("render notification failed")
		return err
	}

	if err := n.push.SendToUser(ctx, userID, msg); err != nil {
		result := "failed"
		if errors.Is(err, domain.ErrNoPushEndpoint) {
			result = "no_endpoint"
		}
		metrics.IncNotification(string(key), result)
		log.Warn().Err(err).
			Str("template", string(key)).
			Str("target_user_id", userID).
			Msg("push notification not delivered")
		return err
	}

	metrics.IncNotification(string(key), "sent")
	log.Debug().Str("template", string(key)).Str("target_user_id", userID).Msg("push notification sent")
	return nil
}

func (n *notificationUC) render(key TemplateKey, data NotificationContext) (model.PushMessage, error) {
	title, body, err := n.renderer.Render(string(key), data)
	if err != nil {
		return model.PushMessage{}, err
	}
	return model.PushMessage{
		Title: title,
		Body:  body,
		Data: map[string]string{
			"type":     string(key),
			"days":     strconv.Itoa(data.Days),
			"deeplink": "astro://premium",
		},
	}, nil
}
