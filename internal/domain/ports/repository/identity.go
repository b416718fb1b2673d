package repository

import (
	"context"
	"time"
)

// IdentityRepository is a read-only view over accounts and sessions, which
// are owned by the auth service.
type IdentityRepository interface {
	AccountCreatedAt(ctx context.Context, tx Tx, userID string) (time.Time, error)
	// LatestSessionIP returns "" with domain.ErrNotFound when the user has no session.
	LatestSessionIP(ctx context.Context, tx Tx, userID string) (string, error)
}
