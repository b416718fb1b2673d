package push

import (
	"context"
	"errors"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	"astro-referrals/internal/config"
	"astro-referrals/internal/domain"
	"astro-referrals/internal/domain/model"
	"astro-referrals/internal/domain/ports/adapter"
	"astro-referrals/internal/domain/ports/repository"
	"astro-referrals/internal/infra/logging"
)

var _ adapter.PushSender = (*FCMSender)(nil)

// multicaster is the slice of *messaging.Client the sender needs.
type multicaster interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// FCMSender fans a message out to every registered device of a user and
// prunes tokens that FCM reports as unregistered.
type FCMSender struct {
	client  multicaster
	tokens  repository.PushTokenRepository
	limiter *rate.Limiter
	log     *zerolog.Logger
}

// NewFCMClient builds a messaging client from a service-account file. An empty
// path falls back to Application Default Credentials.
func NewFCMClient(ctx context.Context, cfg config.FirebaseConfig) (*messaging.Client, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	return app.Messaging(ctx)
}

func NewFCMSender(client multicaster, tokens repository.PushTokenRepository, sendRate float64, burst int, logger *zerolog.Logger) *FCMSender {
	limit := rate.Inf
	if sendRate > 0 {
		limit = rate.Limit(sendRate)
	}
	if burst <= 0 {
		burst = 1
	}
	compLog := logger.With().Str("component", "FCMSender").Logger()
	return &FCMSender{
		client:  client,
		tokens:  tokens,
		limiter: rate.NewLimiter(limit, burst),
		log:     &compLog,
	}
}

func (s *FCMSender) SendToUser(ctx context.Context, userID string, msg model.PushMessage) error {
	log := logging.With(ctx, s.log)

	devices, err := s.tokens.ListByUser(ctx, repository.NoTX, userID)
	if err != nil {
		return fmt.Errorf("list push tokens: %w", err)
	}
	if len(devices) == 0 {
		return domain.ErrNoPushEndpoint
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	tokens := make([]string, 0, len(devices))
	for _, d := range devices {
		tokens = append(tokens, d.Token)
	}
	resp, err := s.client.SendEachForMulticast(ctx, buildMulticast(tokens, msg))
	if err != nil {
		return fmt.Errorf("fcm multicast: %w", err)
	}

	var lastErr error
	for i, r := range resp.Responses {
		if r.Success {
			continue
		}
		lastErr = r.Error
		if messaging.IsUnregistered(r.Error) {
			if derr := s.tokens.Delete(ctx, repository.NoTX, tokens[i]); derr != nil {
				log.Warn().Err(derr).Msg("prune unregistered push token failed")
			} else {
				log.Debug().Str("platform", devices[i].Platform).Msg("pruned unregistered push token")
			}
		}
	}

	if resp.SuccessCount == 0 {
		if lastErr == nil {
			lastErr = errors.New("fcm: no device accepted the message")
		}
		return fmt.Errorf("%w: %v", domain.ErrNoPushEndpoint, lastErr)
	}
	if resp.FailureCount > 0 {
		log.Debug().
			Int("delivered", resp.SuccessCount).
			Int("failed", resp.FailureCount).
			Msg("push partially delivered")
	}
	return nil
}

func buildMulticast(tokens []string, msg model.PushMessage) *messaging.MulticastMessage {
	return &messaging.MulticastMessage{
		Tokens: tokens,
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Data: msg.Data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				Sound:     "default",
				ChannelID: "referral_rewards",
			},
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Alert: &messaging.ApsAlert{
						Title: msg.Title,
						Body:  msg.Body,
					},
					Sound:    "default",
					Category: "REFERRAL_REWARD",
				},
			},
		},
	}
}
