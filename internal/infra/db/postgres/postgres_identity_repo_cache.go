package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"astro-referrals/internal/domain/ports/repository"
	"astro-referrals/internal/infra/metrics"
	red "astro-referrals/internal/infra/redis"
)

var _ repository.IdentityRepository = (*identityRepoCacheDecorator)(nil)

// identityRepoCacheDecorator caches account creation times, which never
// change. Session IPs are always read through.
type identityRepoCacheDecorator struct {
	inner repository.IdentityRepository
	cache red.RedisClient
	ttl   time.Duration
}

func NewIdentityRepoCacheDecorator(inner repository.IdentityRepository, cache red.RedisClient) repository.IdentityRepository {
	return &identityRepoCacheDecorator{
		inner: inner,
		cache: cache,
		ttl:   24 * time.Hour,
	}
}

func accountCreatedKey(userID string) string { return fmt.Sprintf("user:created_at:%s", userID) }

func (d *identityRepoCacheDecorator) AccountCreatedAt(ctx context.Context, tx repository.Tx, userID string) (time.Time, error) {
	key := accountCreatedKey(userID)
	val, err := d.cache.Get(ctx, key)
	if err == nil {
		if at, perr := time.Parse(time.RFC3339Nano, val); perr == nil {
			metrics.IncCacheRequest("identity", "hit")
			return at, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		metrics.IncCacheRequest("identity", "error")
	}

	metrics.IncCacheRequest("identity", "miss")
	at, err := d.inner.AccountCreatedAt(ctx, tx, userID)
	if err != nil {
		return time.Time{}, err
	}
	_ = d.cache.Set(ctx, key, at.UTC().Format(time.RFC3339Nano), d.ttl)
	return at, nil
}

func (d *identityRepoCacheDecorator) LatestSessionIP(ctx context.Context, tx repository.Tx, userID string) (string, error) {
	return d.inner.LatestSessionIP(ctx, tx, userID)
}
