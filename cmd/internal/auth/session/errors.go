package session

import "errors"

// Service-level sentinels. The API layer maps these 1:1 to stable
// client error codes, so their set and meaning must stay stable.
var (
	// ErrEmailInUse is returned by Register when the normalized email is taken.
	ErrEmailInUse = errors.New("email already in use")

	// ErrInvalidCredentials is returned by Login for unknown email or wrong
	// password. The two cases are deliberately indistinguishable.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAccountDisabled is returned when the account exists, the credential
	// checks out, but the account may not authenticate.
	ErrAccountDisabled = errors.New("account disabled")

	// ErrMissingToken is returned when a refresh operation receives no token.
	ErrMissingToken = errors.New("missing refresh token")

	// ErrInvalidToken is returned when a token fails verification.
	ErrInvalidToken = errors.New("invalid token")

	// ErrGrantRevoked is returned when a refresh token verifies but its
	// server-side grant is revoked or gone.
	ErrGrantRevoked = errors.New("refresh grant revoked")

	// ErrUnauthorized is returned when an access token is missing or invalid.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrCurrentPasswordInvalid is returned by ChangePassword when the
	// caller's current password does not verify.
	ErrCurrentPasswordInvalid = errors.New("current password invalid")

	// ErrResetTokenInvalid is returned by ResetPassword for unknown or
	// expired reset tokens, and for tokens whose owning account is gone
	// or disabled. The cases are deliberately indistinguishable.
	ErrResetTokenInvalid = errors.New("reset token invalid")

	// ErrResetTokenUsed is returned by ResetPassword when the reset token
	// was already consumed.
	ErrResetTokenUsed = errors.New("reset token already used")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)

// Store-level sentinels for refresh grants.
var (
	// ErrGrantNotFound is returned when a digest matches no grant row.
	ErrGrantNotFound = errors.New("grant not found")

	// ErrGrantExpired is returned when the grant exists but its expiry has passed.
	ErrGrantExpired = errors.New("grant expired")
)
