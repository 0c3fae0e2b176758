// Package password hashes and verifies account credentials with bcrypt.
//
// The hasher applies a byte-length policy before hashing because bcrypt
// only considers the first 72 bytes of input. Verification is
// deliberately boolean: any malformed stored hash is treated as a
// mismatch rather than surfaced as an error.
package password
