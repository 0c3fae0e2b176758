// Package reset issues and consumes single-use password-reset grants.
//
// Plain reset tokens are handed to the account holder out of band and
// never stored; the store only ever sees their digests.
package reset

import (
	"context"
	"strings"
	"time"

	"wicket/cmd/account/ids"
	"wicket/cmd/security/token"
)

const defaultTTL = 15 * time.Minute

// Service manages reset-grant issuance and consumption.
type Service struct {
	store Store
	ttl   time.Duration
}

// Option configures the Service.
type Option func(*Service) error

// WithTTL sets the grant lifetime (default 15 minutes).
func WithTTL(d time.Duration) Option {
	return func(s *Service) error {
		if d <= 0 {
			return ErrInvalidInput
		}
		s.ttl = d
		return nil
	}
}

// NewService constructs a Service with safe defaults.
func NewService(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, ErrInvalidInput
	}
	s := &Service{store: store, ttl: defaultTTL}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Issue creates a grant for accountID and returns it with the plain
// token. The token must be delivered to the account holder exactly
// once and never logged. meta is recorded on the grant row.
func (s *Service) Issue(ctx context.Context, accountID string, meta Meta, now time.Time) (Grant, string, error) {
	if s == nil || s.store == nil {
		return Grant{}, "", ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Grant{}, "", err
	}
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return Grant{}, "", ErrInvalidInput
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	plain, err := token.NewOpaque()
	if err != nil {
		return Grant{}, "", err
	}

	id, err := ids.NewULID(now)
	if err != nil {
		return Grant{}, "", err
	}

	grant, err := s.store.Create(ctx, CreateRecord{
		ID:        id,
		AccountID: accountID,
		TokenHash: token.HashTokenHex(plain),
		UserAgent: meta.UserAgent,
		IP:        meta.IP,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	})
	if err != nil {
		return Grant{}, "", err
	}
	return grant, plain, nil
}

// Consume redeems a plain token exactly once and returns the grant it
// unlocked. Errors follow the store contract: ErrNotFound,
// ErrAlreadyUsed, ErrExpired.
func (s *Service) Consume(ctx context.Context, plain string, now time.Time) (Grant, error) {
	if s == nil || s.store == nil {
		return Grant{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Grant{}, err
	}
	plain = strings.TrimSpace(plain)
	if plain == "" {
		return Grant{}, ErrInvalidInput
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return s.store.Consume(ctx, token.HashTokenHex(plain), now)
}
