// Package session implements Wicket's credential and session lifecycle.
//
// It owns the orchestration between the account registry, the password
// hasher, the JWT codec, the refresh-grant store, and the reset-grant
// service: registration, login, refresh, logout, password change and
// the forgot/reset flow all live here.
//
// Access tokens are short-lived HS256 JWTs and are never persisted.
// Refresh tokens are long-lived JWTs whose digests are stored in
// Postgres (HMAC-SHA256 when WICKET_TOKEN_HMAC_KEY is set; otherwise
// SHA-256 for dev). Revoking the stored grant kills the session even
// though the JWT itself is still cryptographically valid.
//
// Transport (HTTP) integration is intentionally out of scope here.
package session
