// Package jwt signs and verifies the short-lived bearer tokens issued
// at login and the claims embedded in refresh tokens.
//
// Access and refresh tokens are HS256-signed with two independent
// secrets so a leaked access secret can never mint refresh material.
// Verification is uniform: every failure mode (bad signature, expiry,
// wrong audience of secret, malformed input) collapses into
// ErrInvalidToken so callers cannot leak why a token was rejected.
package jwt
