package repository

import (
	"context"

	"astro-referrals/internal/domain/model"
)

type PushTokenRepository interface {
	ListByUser(ctx context.Context, tx Tx, userID string) ([]*model.PushToken, error)
	Delete(ctx context.Context, tx Tx, token string) error
}
