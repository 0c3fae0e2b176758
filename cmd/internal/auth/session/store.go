package session

import (
	"context"
	"time"
)

// Meta carries the client context recorded with a grant at issue time.
type Meta struct {
	UserAgent string
	IP        string
}

// Revocation reasons recorded on the grant row.
const (
	RevokedByLogout         = "logout"
	RevokedByPasswordChange = "password_change"
	RevokedByPasswordReset  = "password_reset"
)

// Row mirrors the wicket.session_grants row used by the session subsystem.
type Row struct {
	ID            string
	AccountID     string
	TokenHash     string
	UserAgent     string
	IP            string
	CreatedAt     time.Time
	LastUsedAt    *time.Time
	ExpiresAt     time.Time
	RevokedAt     *time.Time
	RevokedReason *string
}

// Active reports whether the grant may still back a refresh at the given time.
func (r Row) Active(now time.Time) bool {
	return r.RevokedAt == nil && r.ExpiresAt.After(now)
}

// Store abstracts persistence for refresh grants.
//
// Implementations must treat rows past their expiry as absent on every
// read path; physical deletion is a separate hygiene concern
// (DeleteExpired).
type Store interface {
	// Create inserts a new grant row and returns its ID.
	Create(ctx context.Context, now time.Time, accountID string, tokenHash string, expiresAt time.Time, meta Meta) (grantID string, err error)

	// GetActiveByDigest loads the grant behind a token digest.
	// Returns ErrGrantNotFound for unknown digests, ErrGrantRevoked for
	// revoked grants, ErrGrantExpired for expired ones.
	GetActiveByDigest(ctx context.Context, tokenHash string, now time.Time) (Row, error)

	// RevokeByDigest revokes the grant behind a token digest (idempotent).
	// The first revocation's timestamp and reason stick.
	// Returns ErrGrantNotFound when no grant matches.
	RevokeByDigest(ctx context.Context, now time.Time, tokenHash, reason string) error

	// RevokeAllForAccount revokes every active grant of an account (idempotent).
	RevokeAllForAccount(ctx context.Context, now time.Time, accountID, reason string) error

	// Touch updates last_used_at for a grant (best-effort).
	Touch(ctx context.Context, now time.Time, grantID string) error

	// DeleteExpired physically removes grants past their expiry and
	// reports how many rows went away.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
