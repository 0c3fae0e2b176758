package account

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements account persistence over PostgreSQL.
//
// Design notes:
// - The pgx pool is owned by the caller; this store must NOT close it.
// - Schema/table identifiers are safely quoted to avoid SQL injection via identifiers.
// - Email uniqueness is enforced by the unique index on email_norm, not by
//   read-then-write; concurrent registrations race safely.
// - Errors are mapped to account sentinel kinds where appropriate.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema used by the account store (default "wicket").
// The schema name is validated to be a legal PostgreSQL identifier.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("account: empty schema")
		}
		if !pgIdentIsValid(schema) {
			return fmt.Errorf("account: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore with secure defaults.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "wicket",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("account: nil pool")
	}
	return st, nil
}

const accountColumns = `id, email, email_norm, password_hash, display_name, roles, status, created_at, updated_at`

// Create inserts a new account row.
func (s *PostgresStore) Create(ctx context.Context, in CreateInput) (Account, error) {
	const op = "account.Create"

	if s == nil || s.pool == nil {
		return Account{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}

	email := strings.TrimSpace(in.Email)
	if email == "" {
		return Account{}, pgInvalid(op, "email is required")
	}
	if strings.TrimSpace(in.PasswordHash) == "" {
		return Account{}, pgInvalid(op, "password_hash is required")
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	roles := in.Roles
	if len(roles) == 0 {
		roles = []string{"user"}
	}

	id, err := NewULID(now)
	if err != nil {
		return Account{}, err
	}

	accounts := pgIdent(s.schema, "accounts")

	_, err = s.pool.Exec(ctx,
		`INSERT INTO `+accounts+` (
		     id, email, email_norm, password_hash, display_name, roles, status, created_at, updated_at
		   ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`,
		id,
		email,
		NormalizeEmail(email),
		in.PasswordHash,
		pgTrimPtr(in.DisplayName),
		roles,
		StatusActive,
		now,
	)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return Account{}, ConflictError{Op: op, Field: field}
		}
		return Account{}, err
	}

	return Account{
		ID:           id,
		Email:        email,
		EmailNorm:    NormalizeEmail(email),
		PasswordHash: in.PasswordHash,
		DisplayName:  pgTrimPtr(in.DisplayName),
		Roles:        roles,
		Status:       StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// FindByEmail looks up an account by normalized email.
func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (Account, error) {
	const op = "account.FindByEmail"

	if s == nil || s.pool == nil {
		return Account{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}

	norm := NormalizeEmail(email)
	if norm == "" {
		return Account{}, pgInvalid(op, "email is required")
	}

	accounts := pgIdent(s.schema, "accounts")

	row := s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+`
		   FROM `+accounts+`
		  WHERE email_norm = $1`,
		norm,
	)
	return scanAccount(op, "account", row)
}

// FindByID looks up an account by ID.
func (s *PostgresStore) FindByID(ctx context.Context, id string) (Account, error) {
	const op = "account.FindByID"

	if s == nil || s.pool == nil {
		return Account{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	if strings.TrimSpace(id) == "" {
		return Account{}, pgInvalid(op, "missing id")
	}

	accounts := pgIdent(s.schema, "accounts")

	row := s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+`
		   FROM `+accounts+`
		  WHERE id = $1`,
		id,
	)
	return scanAccount(op, "account", row)
}

// UpdateCredential replaces the stored password hash.
func (s *PostgresStore) UpdateCredential(ctx context.Context, id string, passwordHash string, now time.Time) error {
	const op = "account.UpdateCredential"

	if s == nil || s.pool == nil {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(id) == "" {
		return pgInvalid(op, "missing id")
	}
	if strings.TrimSpace(passwordHash) == "" {
		return pgInvalid(op, "missing password_hash")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	accounts := pgIdent(s.schema, "accounts")

	ct, err := s.pool.Exec(ctx,
		`UPDATE `+accounts+`
		    SET password_hash = $1,
		        updated_at = $2
		  WHERE id = $3`,
		passwordHash, now, id,
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return NotFoundError{Op: op, Resource: "account"}
	}
	return nil
}

// SetStatus transitions the account between active and disabled.
func (s *PostgresStore) SetStatus(ctx context.Context, id string, status string, now time.Time) error {
	const op = "account.SetStatus"

	if s == nil || s.pool == nil {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(id) == "" {
		return pgInvalid(op, "missing id")
	}
	switch status {
	case StatusActive, StatusDisabled:
	default:
		return pgInvalid(op, "unknown status")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	accounts := pgIdent(s.schema, "accounts")

	ct, err := s.pool.Exec(ctx,
		`UPDATE `+accounts+`
		    SET status = $1,
		        updated_at = $2
		  WHERE id = $3`,
		status, now, id,
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return NotFoundError{Op: op, Resource: "account"}
	}
	return nil
}

// ---- helpers ----

func scanAccount(op, resource string, row pgx.Row) (Account, error) {
	var (
		out         Account
		displayName *string
	)
	err := row.Scan(
		&out.ID,
		&out.Email,
		&out.EmailNorm,
		&out.PasswordHash,
		&displayName,
		&out.Roles,
		&out.Status,
		&out.CreatedAt,
		&out.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, NotFoundError{Op: op, Resource: resource}
		}
		return Account{}, err
	}
	out.DisplayName = displayName
	return out, nil
}

// pgTrimPtr trims a string pointer, returning nil if result is empty.
func pgTrimPtr(p *string) *string {
	if p == nil {
		return nil
	}
	s := strings.TrimSpace(*p)
	if s == "" {
		return nil
	}
	return &s
}

// pgInvalid standardizes invalid input errors.
func pgInvalid(op, msg string) error {
	return OpError{Op: op, Kind: ErrInvalidInput, Msg: msg}
}

// pgIdentIsValid checks if a string is a safe Postgres identifier.
func pgIdentIsValid(s string) bool {
	return pgIdentRe.MatchString(s)
}

// pgIdent safely quotes a schema-qualified identifier: "schema"."name".
func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" { // unique_violation
		return "", false
	}

	// Prefer stable schema constraint names; fall back to substring matching.
	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))

	switch c {
	case "uq_accounts_email_norm":
		return "email", true
	default:
		if strings.Contains(c, "email") {
			return "email", true
		}
		return "unique", true
	}
}
