package model

import (
	"time"

	"astro-referrals/internal/domain"

	"github.com/google/uuid"
)

// User is the slice of the account record the referral pipeline reads.
type User struct {
	ID          string
	Email       string
	DisplayName string
	CreatedAt   time.Time
}

func NewUser(id, email, displayName string) (*User, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if email == "" {
		return nil, domain.ErrInvalidArgument
	}
	return &User{
		ID:          id,
		Email:       email,
		DisplayName: displayName,
		CreatedAt:   time.Now(),
	}, nil
}

// AccountAge is how long the account has existed at `now`.
func (u *User) AccountAge(now time.Time) time.Duration { return now.Sub(u.CreatedAt) }

// Session is the most recent login of a user as recorded by the session store.
type Session struct {
	ID        string
	UserID    string
	IPAddress string
	UserAgent string
	CreatedAt time.Time
}
