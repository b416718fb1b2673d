package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"astro-referrals/internal/domain"
	"astro-referrals/internal/domain/model"
	"astro-referrals/internal/domain/ports/repository"
)

// Ensure referralRepo implements repository.ReferralRepository
var _ repository.ReferralRepository = (*referralRepo)(nil)

type referralRepo struct {
	pool *pgxpool.Pool
}

func NewReferralRepo(pool *pgxpool.Pool) *referralRepo {
	return &referralRepo{pool: pool}
}

const referralColumns = `id, referrer_user_id, referred_user_id, code, created_at, activated_at, activation_ip, action_type`

func (r *referralRepo) Create(ctx context.Context, tx repository.Tx, ref *model.Referral) error {
	const q = `
INSERT INTO referrals (id, referrer_user_id, referred_user_id, code, created_at)
VALUES ($1,$2,$3,$4,$5);`
	_, err := execSQL(ctx, r.pool, tx, q, ref.ID, ref.ReferrerUserID, ref.ReferredUserID, ref.Code, ref.CreatedAt)
	return mapError(err)
}

func (r *referralRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Referral, error) {
	q := `SELECT ` + referralColumns + ` FROM referrals WHERE id=$1;`
	return r.queryOne(ctx, tx, q, id)
}

func (r *referralRepo) FindPendingByReferred(ctx context.Context, tx repository.Tx, referredUserID string) (*model.Referral, error) {
	q := `SELECT ` + referralColumns + `
  FROM referrals
 WHERE referred_user_id=$1 AND activated_at IS NULL
 LIMIT 1;`
	return r.queryOne(ctx, tx, q, referredUserID)
}

func (r *referralRepo) CountActivatedSince(ctx context.Context, tx repository.Tx, referrerUserID string, since time.Time) (int, error) {
	const q = `
SELECT COUNT(*) FROM referrals
 WHERE referrer_user_id=$1 AND activated_at IS NOT NULL AND activated_at >= $2;`
	return r.count(ctx, tx, q, referrerUserID, since)
}

func (r *referralRepo) CountActivatedByIP(ctx context.Context, tx repository.Tx, ip string) (int, error) {
	const q = `SELECT COUNT(*) FROM referrals WHERE activation_ip=$1 AND activated_at IS NOT NULL;`
	return r.count(ctx, tx, q, ip)
}

func (r *referralRepo) CountActivated(ctx context.Context, tx repository.Tx, referrerUserID string) (int, error) {
	const q = `SELECT COUNT(*) FROM referrals WHERE referrer_user_id=$1 AND activated_at IS NOT NULL;`
	return r.count(ctx, tx, q, referrerUserID)
}

// MarkActivated is the ledger's compare-and-set. Zero affected rows means
// another writer got there first (or the id is unknown).
func (r *referralRepo) MarkActivated(ctx context.Context, tx repository.Tx, id, ip, actionType string, at time.Time) (bool, error) {
	const q = `
UPDATE referrals
   SET activated_at=$2, activation_ip=NULLIF($3,''), action_type=$4
 WHERE id=$1 AND activated_at IS NULL;`
	tag, err := execSQL(ctx, r.pool, tx, q, id, at, ip, actionType)
	if err != nil {
		return false, mapError(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *referralRepo) ListReferrersActivatedSince(ctx context.Context, tx repository.Tx, since time.Time, limit int) ([]string, error) {
	const q = `
SELECT referrer_user_id
  FROM referrals
 WHERE activated_at >= $1
 GROUP BY referrer_user_id
 ORDER BY MAX(activated_at) DESC
 LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, since, limit)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func (r *referralRepo) CountByState(ctx context.Context, tx repository.Tx) (int, int, error) {
	const q = `
SELECT COUNT(*) FILTER (WHERE activated_at IS NULL),
       COUNT(*) FILTER (WHERE activated_at IS NOT NULL)
  FROM referrals;`
	row, err := pickRow(ctx, r.pool, tx, q)
	if err != nil {
		return 0, 0, err
	}
	var pending, activated int
	if err := row.Scan(&pending, &activated); err != nil {
		return 0, 0, domain.ErrReadDatabaseRow
	}
	return pending, activated, nil
}

func (r *referralRepo) count(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (int, error) {
	row, err := pickRow(ctx, r.pool, tx, q, args...)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, mapError(err)
	}
	return n, nil
}

func (r *referralRepo) queryOne(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (*model.Referral, error) {
	row, err := pickRow(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	ref, err := scanReferral(row)
	if err != nil {
		return nil, mapError(err)
	}
	return ref, nil
}

func scanReferral(row pgx.Row) (*model.Referral, error) {
	var ref model.Referral
	if err := row.Scan(
		&ref.ID, &ref.ReferrerUserID, &ref.ReferredUserID, &ref.Code, &ref.CreatedAt,
		&ref.ActivatedAt, &ref.ActivationIP, &ref.ActionType,
	); err != nil {
		return nil, err
	}
	return &ref, nil
}
