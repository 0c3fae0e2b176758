package reset

import (
	"context"
	"time"
)

// Grant is a single-use password-reset authorization.
type Grant struct {
	ID        string
	AccountID string
	TokenHash string
	UserAgent string
	IP        string
	CreatedAt time.Time
	ExpiresAt time.Time
	UsedAt    *time.Time
}

// Meta carries the client context recorded with a grant at issue time.
type Meta struct {
	UserAgent string
	IP        string
}

// CreateRecord is a normalized grant insert payload.
type CreateRecord struct {
	ID        string
	AccountID string
	TokenHash string
	UserAgent string
	IP        string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Store is the persistence boundary for reset grants.
type Store interface {
	Create(ctx context.Context, in CreateRecord) (Grant, error)

	// Consume marks the grant used exactly once. The losing side of a
	// concurrent consume gets ErrAlreadyUsed; expired grants get
	// ErrExpired; unknown digests get ErrNotFound.
	Consume(ctx context.Context, tokenHash string, now time.Time) (Grant, error)

	// DeleteExpired physically removes grants past their expiry.
	// Reads already treat them as absent; this is hygiene.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
