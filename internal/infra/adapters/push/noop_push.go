package push

import (
	"context"

	"github.com/rs/zerolog"

	"astro-referrals/internal/domain/model"
	"astro-referrals/internal/domain/ports/adapter"
)

var _ adapter.PushSender = (*NoopSender)(nil)

// NoopSender logs instead of delivering. Used when Firebase is not configured.
type NoopSender struct {
	log *zerolog.Logger
}

func NewNoopSender(logger *zerolog.Logger) *NoopSender {
	compLog := logger.With().Str("component", "NoopSender").Logger()
	return &NoopSender{log: &compLog}
}

func (s *NoopSender) SendToUser(ctx context.Context, userID string, msg model.PushMessage) error {
	s.log.Info().Str("target_user_id", userID).Str("title", msg.Title).Msg("push (noop)")
	return nil
}
