package session

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
)

// PostgresStore implements Store using PostgreSQL (wicket.session_grants).
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed grant store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Create inserts a new grant row and returns its ULID.
func (s *PostgresStore) Create(ctx context.Context, now time.Time, accountID string, tokenHash string, expiresAt time.Time, meta Meta) (string, error) {
	id := ulid.Make().String()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO wicket.session_grants (
			id, account_id, token_hash, user_agent, ip,
			created_at, last_used_at, expires_at, revoked_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $6, $7, NULL
		)
	`, id, accountID, tokenHash, meta.UserAgent, meta.IP, now, expiresAt)
	if err != nil {
		return "", err
	}

	return id, nil
}

// GetActiveByDigest loads the grant behind a token digest and checks liveness.
func (s *PostgresStore) GetActiveByDigest(ctx context.Context, tokenHash string, now time.Time) (Row, error) {
	var row Row

	err := s.pool.QueryRow(ctx, `
		SELECT
			id, account_id, token_hash, user_agent, ip,
			created_at, last_used_at, expires_at, revoked_at, revocation_reason
		FROM wicket.session_grants
		WHERE token_hash = $1
	`, tokenHash).Scan(
		&row.ID,
		&row.AccountID,
		&row.TokenHash,
		&row.UserAgent,
		&row.IP,
		&row.CreatedAt,
		&row.LastUsedAt,
		&row.ExpiresAt,
		&row.RevokedAt,
		&row.RevokedReason,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Row{}, ErrGrantNotFound
	}
	if err != nil {
		return Row{}, err
	}

	if row.RevokedAt != nil {
		return Row{}, ErrGrantRevoked
	}
	if !row.ExpiresAt.After(now) {
		return Row{}, ErrGrantExpired
	}

	return row, nil
}

// RevokeByDigest revokes the grant behind a token digest (idempotent).
// The first revocation's timestamp and reason stick.
func (s *PostgresStore) RevokeByDigest(ctx context.Context, now time.Time, tokenHash, reason string) error {
	ct, err := s.pool.Exec(ctx, `
		UPDATE wicket.session_grants
		SET revoked_at = COALESCE(revoked_at, $2),
		    revocation_reason = COALESCE(revocation_reason, $3)
		WHERE token_hash = $1
	`, tokenHash, now, reason)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrGrantNotFound
	}
	return nil
}

// RevokeAllForAccount revokes every active grant of an account (idempotent).
func (s *PostgresStore) RevokeAllForAccount(ctx context.Context, now time.Time, accountID, reason string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE wicket.session_grants
		SET revoked_at = COALESCE(revoked_at, $2),
		    revocation_reason = COALESCE(revocation_reason, $3)
		WHERE account_id = $1
		  AND revoked_at IS NULL
	`, accountID, now, reason)
	return err
}

// Touch updates last_used_at for a grant.
func (s *PostgresStore) Touch(ctx context.Context, now time.Time, grantID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE wicket.session_grants
		SET last_used_at = $2
		WHERE id = $1
	`, grantID, now)
	return err
}

// DeleteExpired removes grants past their expiry.
func (s *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	ct, err := s.pool.Exec(ctx, `
		DELETE FROM wicket.session_grants
		WHERE expires_at <= $1
	`, now)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}
