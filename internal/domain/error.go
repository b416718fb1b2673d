package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrOperationFailed    = errors.New("database operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid execution context")

	// Referral pipeline
	ErrAlreadyActivated     = errors.New("referral already activated")
	ErrLockNotAcquired      = errors.New("lock not acquired")
	ErrNoPushEndpoint       = errors.New("user has no push endpoint")
	ErrProcessorUnavailable = errors.New("payment processor unavailable")
	ErrUnknownTemplate      = errors.New("unknown notification template")
)
