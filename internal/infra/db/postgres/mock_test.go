//go:build !integration

package postgres

import (
	"context"
	"time"

	"astro-referrals/internal/domain/ports/repository"
	red "astro-referrals/internal/infra/redis"
)

// --- Mocks for Cache Decorator Tests ---

// mockInnerIdentityRepo mocks the database repository that the identity decorator wraps.
type mockInnerIdentityRepo struct {
	AccountCreatedAtFunc func(ctx context.Context, tx repository.Tx, userID string) (time.Time, error)
	LatestSessionIPFunc  func(ctx context.Context, tx repository.Tx, userID string) (string, error)
}

func (m *mockInnerIdentityRepo) AccountCreatedAt(ctx context.Context, tx repository.Tx, userID string) (time.Time, error) {
	return m.AccountCreatedAtFunc(ctx, tx, userID)
}
func (m *mockInnerIdentityRepo) LatestSessionIP(ctx context.Context, tx repository.Tx, userID string) (string, error) {
	return m.LatestSessionIPFunc(ctx, tx, userID)
}

// mockRedisClient mocks our Redis client wrapper.
type mockRedisClient struct {
	GetFunc    func(ctx context.Context, key string) (string, error)
	SetFunc    func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	DelFunc    func(ctx context.Context, keys ...string) error
	PingFunc   func(ctx context.Context) error
	IncrFunc   func(ctx context.Context, key string) (int64, error)
	ExpireFunc func(ctx context.Context, key string, expiration time.Duration) error
	CloseFunc  func() error
}

var _ red.RedisClient = &mockRedisClient{}

func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	return m.GetFunc(ctx, key)
}
func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return m.SetFunc(ctx, key, value, expiration)
}
func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	return m.DelFunc(ctx, keys...)
}
func (m *mockRedisClient) Ping(ctx context.Context) error { return m.PingFunc(ctx) }
func (m *mockRedisClient) Incr(ctx context.Context, key string) (int64, error) {
	return m.IncrFunc(ctx, key)
}
func (m *mockRedisClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return m.ExpireFunc(ctx, key, expiration)
}
func (m *mockRedisClient) Close() error { return m.CloseFunc() }
