package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"astro-referrals/internal/domain/ports/repository"
)

// Ensure identityRepo implements repository.IdentityRepository
var _ repository.IdentityRepository = (*identityRepo)(nil)

// identityRepo reads users and user_sessions; both tables are written by the
// auth service.
type identityRepo struct {
	pool *pgxpool.Pool
}

func NewIdentityRepo(pool *pgxpool.Pool) *identityRepo {
	return &identityRepo{pool: pool}
}

func (r *identityRepo) AccountCreatedAt(ctx context.Context, tx repository.Tx, userID string) (time.Time, error) {
	const q = `SELECT created_at FROM users WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, userID)
	if err != nil {
		return time.Time{}, err
	}
	var at time.Time
	if err := row.Scan(&at); err != nil {
		return time.Time{}, mapError(err)
	}
	return at, nil
}

func (r *identityRepo) LatestSessionIP(ctx context.Context, tx repository.Tx, userID string) (string, error) {
	const q = `
SELECT host(ip_address) FROM user_sessions
 WHERE user_id=$1 AND ip_address IS NOT NULL
 ORDER BY created_at DESC
 LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, userID)
	if err != nil {
		return "", err
	}
	var ip string
	if err := row.Scan(&ip); err != nil {
		return "", mapError(err)
	}
	return ip, nil
}
