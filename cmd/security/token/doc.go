// Package token provides opaque-token generation and hashing primitives.
//
// It is the single source of truth for how refresh and reset tokens are
// digested before touching storage: only digests are persisted, never
// the tokens themselves.
//
// Design goals:
// - Default dev mode: SHA-256(token) when no HMAC key is configured.
// - Production-enforced mode: HMAC-SHA256(token, key) when policy requires it.
// - Stable 64-char hex output for storage and constant-time comparison.
//
// Environment:
// - WICKET_TOKEN_HMAC_KEY: when set, enables HMAC mode.
package token
