// Package account implements Wicket's account registry.
//
// It owns the canonical security principal (the Account), its
// normalized-email uniqueness rules, and the Postgres persistence
// behind them. Credential hashes live here; the plaintext password
// never crosses this boundary.
package account
