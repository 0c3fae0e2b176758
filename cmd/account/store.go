package account

import (
	"context"
	"time"
)

// Status values for an account.
const (
	StatusActive   = "active"
	StatusDisabled = "disabled"
)

// Account is Wicket's canonical security principal.
type Account struct {
	ID        string
	Email     string
	EmailNorm string

	// PasswordHash is the bcrypt digest; the plaintext is never stored.
	PasswordHash string

	DisplayName *string
	Roles       []string
	Status      string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Disabled reports whether the account may not authenticate.
func (a Account) Disabled() bool { return a.Status == StatusDisabled }

// CreateInput describes an account registration request.
type CreateInput struct {
	Email        string
	PasswordHash string
	DisplayName  *string
	Roles        []string
	Now          time.Time
}

// Store is the account persistence boundary.
type Store interface {
	// Create inserts a new account. Returns ConflictError{Field: "email"}
	// when the normalized email is already taken.
	Create(ctx context.Context, in CreateInput) (Account, error)

	// FindByEmail looks up an account by its normalized email.
	// Returns ErrNotFound when absent.
	FindByEmail(ctx context.Context, email string) (Account, error)

	// FindByID looks up an account by ID. Returns ErrNotFound when absent.
	FindByID(ctx context.Context, id string) (Account, error)

	// UpdateCredential replaces the stored password hash.
	// Returns ErrNotFound when the account does not exist.
	UpdateCredential(ctx context.Context, id string, passwordHash string, now time.Time) error

	// SetStatus transitions the account between active and disabled.
	// Returns ErrNotFound when the account does not exist.
	SetStatus(ctx context.Context, id string, status string, now time.Time) error
}
