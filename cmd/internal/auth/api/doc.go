// Package authapi exposes the credential and session lifecycle over
// HTTP: register, login, refresh, logout, password change and the
// reset flow, plus /me for bearer callers.
//
// Browser clients can opt into cookie transport: the refresh token is
// delivered as an HTTP-only cookie and guarded by a double-submit CSRF
// token. Everything else travels in JSON bodies.
package authapi
