package password

import "errors"

var (
	// ErrTooShort is returned by Validate when the password is shorter
	// than the policy minimum.
	ErrTooShort = errors.New("password: too short")

	// ErrTooLong is returned by Validate when the password exceeds the
	// policy maximum.
	ErrTooLong = errors.New("password: too long")

	// ErrVeryWeak is returned by Validate for trivially guessable
	// passwords when the policy rejects them.
	ErrVeryWeak = errors.New("password: very weak")
)
