package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"wicket/cmd/account"
	"wicket/cmd/internal/auth/reset"
	"wicket/cmd/security/jwt"
	"wicket/cmd/security/password"
	"wicket/cmd/security/token"
)

// ResetGrants is the slice of the reset service the orchestrator needs.
type ResetGrants interface {
	Issue(ctx context.Context, accountID string, meta reset.Meta, now time.Time) (reset.Grant, string, error)
	Consume(ctx context.Context, plain string, now time.Time) (reset.Grant, error)
}

// ResetNotifier delivers a freshly issued reset token to the account
// holder (email, SMS, webhook). The plain token must never be logged.
type ResetNotifier interface {
	Notify(ctx context.Context, acct account.Account, plainToken string, expiresAt time.Time) error
}

// NoopNotifier drops reset tokens on the floor. Useful for tests and
// for deployments where delivery is handled out of band.
type NoopNotifier struct{}

func (NoopNotifier) Notify(context.Context, account.Account, string, time.Time) error { return nil }

// Service implements the high-level credential and session operations.
//
// It issues token pairs (access + refresh), validates access tokens,
// supports per-grant and per-account revocation, and runs the
// forgot/reset password flow with cascading session revocation.
type Service struct {
	cfg      Config
	accounts account.Store
	hasher   *password.Hasher
	codec    *jwt.Codec
	grants   Store
	resets   ResetGrants
	notifier ResetNotifier
	log      *slog.Logger

	// dummyHash absorbs the verification cost for unknown emails so a
	// login miss takes as long as a login mismatch.
	dummyHash string
}

// Option configures the Service.
type Option func(*Service)

// WithNotifier sets the reset-token delivery channel (default: noop).
func WithNotifier(n ResetNotifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithLogger sets the structured logger (default: slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// NewService constructs a Service with the provided configuration and collaborators.
func NewService(cfg Config, accounts account.Store, hasher *password.Hasher, codec *jwt.Codec, grants Store, resets ResetGrants, opts ...Option) (*Service, error) {
	if accounts == nil || hasher == nil || codec == nil || grants == nil || resets == nil {
		return nil, ErrConfig
	}

	dummy, err := hasher.Hash("wicket dummy credential for timing")
	if err != nil {
		return nil, err
	}

	s := &Service{
		cfg:       cfg,
		accounts:  accounts,
		hasher:    hasher,
		codec:     codec,
		grants:    grants,
		resets:    resets,
		notifier:  NoopNotifier{},
		log:       slog.Default(),
		dummyHash: dummy,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Issued is the result of a successful login or refresh.
type Issued struct {
	GrantID   string
	AccountID string
	Roles     []string

	AccessToken     string
	AccessExpiresAt time.Time

	RefreshToken     string
	RefreshExpiresAt time.Time
}

// Register creates a new account. The pre-check on the normalized email
// is a fast path only; the unique index behind account.Store.Create is
// what actually guarantees uniqueness under concurrency.
func (s *Service) Register(ctx context.Context, now time.Time, email, plainPassword string, displayName *string) (account.Account, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return account.Account{}, account.OpError{Op: "session.Register", Kind: account.ErrInvalidInput, Msg: "email is required"}
	}

	hash, err := s.hasher.Hash(plainPassword)
	if err != nil {
		return account.Account{}, err
	}

	if _, err := s.accounts.FindByEmail(ctx, email); err == nil {
		return account.Account{}, ErrEmailInUse
	} else if !account.IsNotFound(err) {
		return account.Account{}, err
	}

	acct, err := s.accounts.Create(ctx, account.CreateInput{
		Email:        email,
		PasswordHash: hash,
		DisplayName:  displayName,
		Now:          now,
	})
	if err != nil {
		if account.IsConflict(err) {
			return account.Account{}, ErrEmailInUse
		}
		return account.Account{}, err
	}

	s.log.InfoContext(ctx, "auth.register", slog.String("account_id", acct.ID))
	return acct, nil
}

// Login authenticates email+password and issues a fresh token pair.
// meta is recorded on the grant row for later session review.
func (s *Service) Login(ctx context.Context, now time.Time, email, plainPassword string, meta Meta) (Issued, error) {
	acct, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		if account.IsNotFound(err) {
			// Burn comparable CPU so a miss is not observably faster.
			_ = s.hasher.Verify(s.dummyHash, plainPassword)
			return Issued{}, ErrInvalidCredentials
		}
		return Issued{}, err
	}

	if !s.hasher.Verify(acct.PasswordHash, plainPassword) {
		return Issued{}, ErrInvalidCredentials
	}
	if acct.Disabled() {
		return Issued{}, ErrAccountDisabled
	}

	issued, err := s.issuePair(ctx, now, acct, meta)
	if err != nil {
		return Issued{}, err
	}

	s.log.InfoContext(ctx, "auth.login", slog.String("account_id", acct.ID), slog.String("grant_id", issued.GrantID))
	return issued, nil
}

// Refresh exchanges a valid refresh token for a new access token.
//
// The refresh token itself is NOT rotated: the grant keeps its digest
// and expiry, so the client session never outlives the original login.
func (s *Service) Refresh(ctx context.Context, now time.Time, refreshToken string) (Issued, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return Issued{}, ErrMissingToken
	}

	claims, err := s.codec.VerifyRefresh(refreshToken)
	if err != nil {
		return Issued{}, ErrInvalidToken
	}

	row, err := s.grants.GetActiveByDigest(ctx, token.HashTokenHex(refreshToken), now)
	if err != nil {
		switch {
		case errors.Is(err, ErrGrantNotFound), errors.Is(err, ErrGrantRevoked), errors.Is(err, ErrGrantExpired):
			return Issued{}, ErrGrantRevoked
		default:
			return Issued{}, err
		}
	}

	// The grant must belong to the token's subject.
	if row.AccountID != claims.Subject {
		return Issued{}, ErrInvalidToken
	}

	// A vanished or disabled account folds into ErrUnauthorized: the
	// caller learns only that the session is no longer usable.
	acct, err := s.accounts.FindByID(ctx, row.AccountID)
	if err != nil {
		if account.IsNotFound(err) {
			return Issued{}, ErrUnauthorized
		}
		return Issued{}, err
	}
	if acct.Disabled() {
		return Issued{}, ErrUnauthorized
	}

	accessToken, err := s.codec.SignAccess(acct.ID, acct.Roles, now)
	if err != nil {
		return Issued{}, err
	}

	if err := s.grants.Touch(ctx, now, row.ID); err != nil {
		// Best-effort; a stale last_used_at is not worth failing a refresh.
		s.log.WarnContext(ctx, "auth.grant_touch.fail", slog.String("grant_id", row.ID), slog.Any("err", err))
	}

	return Issued{
		GrantID:          row.ID,
		AccountID:        acct.ID,
		Roles:            acct.Roles,
		AccessToken:      accessToken,
		AccessExpiresAt:  now.Add(s.cfg.AccessTokenTTL),
		RefreshToken:     refreshToken,
		RefreshExpiresAt: row.ExpiresAt,
	}, nil
}

// Logout revokes the grant behind a refresh token. It is idempotent:
// unknown and already-revoked tokens both succeed, so a client can
// always log out.
func (s *Service) Logout(ctx context.Context, now time.Time, refreshToken string) error {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil
	}

	err := s.grants.RevokeByDigest(ctx, now, token.HashTokenHex(refreshToken), RevokedByLogout)
	if err != nil && !errors.Is(err, ErrGrantNotFound) {
		return err
	}
	return nil
}

// Authenticate verifies a bearer access token.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (jwt.AccessClaims, error) {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return jwt.AccessClaims{}, ErrUnauthorized
	}
	claims, err := s.codec.VerifyAccess(accessToken)
	if err != nil {
		return jwt.AccessClaims{}, ErrUnauthorized
	}
	return claims, nil
}

// ChangePassword rotates the credential of an authenticated account and
// revokes every outstanding grant, forcing all devices to log in again.
func (s *Service) ChangePassword(ctx context.Context, now time.Time, accountID, currentPassword, newPassword string) error {
	acct, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		if account.IsNotFound(err) {
			return ErrUnauthorized
		}
		return err
	}
	if acct.Disabled() {
		return ErrAccountDisabled
	}

	if !s.hasher.Verify(acct.PasswordHash, currentPassword) {
		return ErrCurrentPasswordInvalid
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	if err := s.accounts.UpdateCredential(ctx, acct.ID, hash, now); err != nil {
		return err
	}

	if err := s.grants.RevokeAllForAccount(ctx, now, acct.ID, RevokedByPasswordChange); err != nil {
		// The credential already rotated; surface the failed cascade loudly.
		s.log.ErrorContext(ctx, "auth.cascade_revoke.fail", slog.String("account_id", acct.ID), slog.Any("err", err))
		return err
	}

	s.log.InfoContext(ctx, "auth.password_change", slog.String("account_id", acct.ID))
	return nil
}

// ForgotPassword issues a reset grant and hands the plain token to the
// notifier. Unknown and disabled accounts succeed silently so the
// endpoint cannot be used to enumerate registered emails.
func (s *Service) ForgotPassword(ctx context.Context, now time.Time, email string, meta Meta) error {
	acct, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		if account.IsNotFound(err) {
			return nil
		}
		return err
	}
	if acct.Disabled() {
		return nil
	}

	grant, plain, err := s.resets.Issue(ctx, acct.ID, reset.Meta{UserAgent: meta.UserAgent, IP: meta.IP}, now)
	if err != nil {
		return err
	}

	if err := s.notifier.Notify(ctx, acct, plain, grant.ExpiresAt); err != nil {
		return err
	}

	s.log.InfoContext(ctx, "auth.reset_issued", slog.String("account_id", acct.ID), slog.String("grant_id", grant.ID))
	return nil
}

// ResetPassword consumes a reset token, installs the new credential,
// and revokes every outstanding grant of the account.
func (s *Service) ResetPassword(ctx context.Context, now time.Time, resetToken, newPassword string) error {
	resetToken = strings.TrimSpace(resetToken)
	if resetToken == "" {
		return ErrMissingToken
	}

	grant, err := s.resets.Consume(ctx, resetToken, now)
	if err != nil {
		switch {
		case errors.Is(err, reset.ErrAlreadyUsed):
			return ErrResetTokenUsed
		case errors.Is(err, reset.ErrNotFound), errors.Is(err, reset.ErrExpired), errors.Is(err, reset.ErrInvalidInput):
			return ErrResetTokenInvalid
		default:
			return err
		}
	}

	// The grant's owner must still exist and be allowed in; anything else
	// reads as a dead token, not a distinguishable account state.
	acct, err := s.accounts.FindByID(ctx, grant.AccountID)
	if err != nil {
		if account.IsNotFound(err) {
			return ErrResetTokenInvalid
		}
		return err
	}
	if acct.Disabled() {
		return ErrResetTokenInvalid
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	if err := s.accounts.UpdateCredential(ctx, acct.ID, hash, now); err != nil {
		return err
	}

	if err := s.grants.RevokeAllForAccount(ctx, now, acct.ID, RevokedByPasswordReset); err != nil {
		s.log.ErrorContext(ctx, "auth.cascade_revoke.fail", slog.String("account_id", grant.AccountID), slog.Any("err", err))
		return err
	}

	s.log.InfoContext(ctx, "auth.password_reset", slog.String("account_id", grant.AccountID))
	return nil
}

// issuePair mints an access+refresh pair and records the refresh grant.
func (s *Service) issuePair(ctx context.Context, now time.Time, acct account.Account, meta Meta) (Issued, error) {
	accessToken, err := s.codec.SignAccess(acct.ID, acct.Roles, now)
	if err != nil {
		return Issued{}, err
	}
	refreshToken, err := s.codec.SignRefresh(acct.ID, now)
	if err != nil {
		return Issued{}, err
	}

	refreshExp := now.Add(s.cfg.RefreshTokenTTL)

	grantID, err := s.grants.Create(ctx, now, acct.ID, token.HashTokenHex(refreshToken), refreshExp, meta)
	if err != nil {
		return Issued{}, err
	}

	return Issued{
		GrantID:          grantID,
		AccountID:        acct.ID,
		Roles:            acct.Roles,
		AccessToken:      accessToken,
		AccessExpiresAt:  now.Add(s.cfg.AccessTokenTTL),
		RefreshToken:     refreshToken,
		RefreshExpiresAt: refreshExp,
	}, nil
}
