package app

import (
	"errors"

	"wicket/cmd/security/token"
)

// ValidateSecurityConfig enforces the runtime security policy at startup.
// Fail-fast on purpose: silently falling back to weaker digests in
// production is unacceptable.
func ValidateSecurityConfig(cfg Config) error {
	if !cfg.RequireTokenHMAC {
		return nil
	}

	// 32 bytes minimum for an HMAC-SHA256 secret, measured as raw bytes.
	if _, err := token.HMACKeyFromEnv(32); err != nil {
		switch {
		case errors.Is(err, token.ErrHMACKeyMissing):
			return errors.New("security policy: WICKET_REQUIRE_TOKEN_HMAC=true but WICKET_TOKEN_HMAC_KEY is missing")
		case errors.Is(err, token.ErrHMACKeyTooShort):
			return errors.New("security policy: WICKET_REQUIRE_TOKEN_HMAC=true but WICKET_TOKEN_HMAC_KEY is too short (min 32 bytes)")
		default:
			return err
		}
	}

	// Hard assertion: the digest path must actually be in HMAC mode.
	if !token.HMACEnabled() {
		return errors.New("security policy: WICKET_REQUIRE_TOKEN_HMAC=true but token hashing is not in HMAC mode")
	}

	return nil
}
