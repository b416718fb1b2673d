package adapter

import (
	"context"

	"astro-referrals/internal/domain/model"
)

// PushSender delivers a notification to every registered device of a user.
// It returns domain.ErrNoPushEndpoint when the user has no usable device.
type PushSender interface {
	SendToUser(ctx context.Context, userID string, msg model.PushMessage) error
}
