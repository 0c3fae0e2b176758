package reset

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists reset grants in PostgreSQL.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// StoreOption configures PostgresStore.
type StoreOption func(*PostgresStore) error

// WithSchema sets the DB schema used by the store (default: "wicket").
func WithSchema(schema string) StoreOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return ErrInvalidInput
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...StoreOption) (*PostgresStore, error) {
	st := &PostgresStore{pool: pool, schema: "wicket"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, ErrInvalidInput
	}
	return st, nil
}

const grantColumns = `id, account_id, token_hash, user_agent, ip, created_at, expires_at, used_at`

// Create inserts a new grant record.
func (s *PostgresStore) Create(ctx context.Context, in CreateRecord) (Grant, error) {
	if s == nil || s.pool == nil {
		return Grant{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Grant{}, err
	}
	if strings.TrimSpace(in.ID) == "" ||
		strings.TrimSpace(in.AccountID) == "" ||
		strings.TrimSpace(in.TokenHash) == "" {
		return Grant{}, ErrInvalidInput
	}

	grants := pgIdent(s.schema, "reset_grants")

	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+grants+` (
		     id, account_id, token_hash, user_agent, ip, created_at, expires_at
		   ) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		in.ID,
		in.AccountID,
		in.TokenHash,
		in.UserAgent,
		in.IP,
		in.CreatedAt,
		in.ExpiresAt,
	)
	if err != nil {
		return Grant{}, err
	}

	return Grant{
		ID:        in.ID,
		AccountID: in.AccountID,
		TokenHash: in.TokenHash,
		UserAgent: in.UserAgent,
		IP:        in.IP,
		CreatedAt: in.CreatedAt,
		ExpiresAt: in.ExpiresAt,
	}, nil
}

// Consume marks the grant used exactly once. The UPDATE's WHERE clause
// is the atomicity boundary: at most one caller matches the unused,
// unexpired row. Losers are classified by a follow-up read.
func (s *PostgresStore) Consume(ctx context.Context, tokenHash string, now time.Time) (Grant, error) {
	if s == nil || s.pool == nil {
		return Grant{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Grant{}, err
	}
	tokenHash = strings.TrimSpace(tokenHash)
	if tokenHash == "" {
		return Grant{}, ErrInvalidInput
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	grants := pgIdent(s.schema, "reset_grants")

	var out Grant
	err := s.pool.QueryRow(ctx,
		`UPDATE `+grants+`
		    SET used_at = $1
		  WHERE token_hash = $2
		    AND used_at IS NULL
		    AND expires_at > $1
		RETURNING `+grantColumns,
		now,
		tokenHash,
	).Scan(
		&out.ID,
		&out.AccountID,
		&out.TokenHash,
		&out.UserAgent,
		&out.IP,
		&out.CreatedAt,
		&out.ExpiresAt,
		&out.UsedAt,
	)
	if err == nil {
		return out, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Grant{}, err
	}

	// Distinguish missing vs used vs expired.
	var usedAt *time.Time
	var expiresAt time.Time
	selErr := s.pool.QueryRow(ctx,
		`SELECT used_at, expires_at
		   FROM `+grants+`
		  WHERE token_hash = $1`,
		tokenHash,
	).Scan(&usedAt, &expiresAt)
	if selErr != nil {
		if errors.Is(selErr, pgx.ErrNoRows) {
			return Grant{}, ErrNotFound
		}
		return Grant{}, selErr
	}
	if usedAt != nil {
		return Grant{}, ErrAlreadyUsed
	}
	return Grant{}, ErrExpired
}

// DeleteExpired removes grants whose expiry has passed.
func (s *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	grants := pgIdent(s.schema, "reset_grants")

	ct, err := s.pool.Exec(ctx,
		`DELETE FROM `+grants+` WHERE expires_at <= $1`,
		now,
	)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

func pgIdent(schema, table string) string {
	return pgx.Identifier{schema, table}.Sanitize()
}
