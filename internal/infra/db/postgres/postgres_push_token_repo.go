package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"astro-referrals/internal/domain"
	"astro-referrals/internal/domain/model"
	"astro-referrals/internal/domain/ports/repository"
)

// Ensure pushTokenRepo implements repository.PushTokenRepository
var _ repository.PushTokenRepository = (*pushTokenRepo)(nil)

type pushTokenRepo struct {
	pool *pgxpool.Pool
}

func NewPushTokenRepo(pool *pgxpool.Pool) *pushTokenRepo {
	return &pushTokenRepo{pool: pool}
}

func (r *pushTokenRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.PushToken, error) {
	const q = `
SELECT user_id, token, platform, created_at
  FROM push_tokens
 WHERE user_id=$1
 ORDER BY created_at DESC;`
	rows, err := queryRows(ctx, r.pool, tx, q, userID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []*model.PushToken
	for rows.Next() {
		var t model.PushToken
		if err := rows.Scan(&t.UserID, &t.Token, &t.Platform, &t.CreatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func (r *pushTokenRepo) Delete(ctx context.Context, tx repository.Tx, token string) error {
	_, err := execSQL(ctx, r.pool, tx, `DELETE FROM push_tokens WHERE token=$1;`, token)
	return mapError(err)
}
