package session

import (
	"os"
	"time"

	"wicket/cmd/security/jwt"
)

// Config defines all runtime configuration for the session subsystem.
//
// It controls token TTLs, clock skew tolerance, and the HS256 signing
// secrets for access and refresh tokens.
//
// This struct is intentionally explicit and environment-driven so that
// production deployments can tune security parameters without code changes.
type Config struct {
	// Issuer is the value set in the "iss" claim of issued tokens.
	Issuer string

	// AccessTokenTTL defines the lifetime of access tokens.
	AccessTokenTTL time.Duration

	// RefreshTokenTTL defines the lifetime of refresh tokens and their grants.
	RefreshTokenTTL time.Duration

	// ResetTokenTTL defines the lifetime of password-reset grants.
	ResetTokenTTL time.Duration

	// ClockSkew defines the allowed time skew during token validation.
	ClockSkew time.Duration

	// AccessSecret signs access tokens. Must differ from RefreshSecret.
	AccessSecret []byte

	// RefreshSecret signs refresh tokens.
	RefreshSecret []byte
}

// DefaultConfig returns a secure default configuration suitable for development.
//
// Production environments should override values via environment variables.
// Secrets have no default; they must always come from the environment.
func DefaultConfig() Config {
	return Config{
		Issuer:          "wicket",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 720 * time.Hour,
		ResetTokenTTL:   15 * time.Minute,
		ClockSkew:       30 * time.Second,
	}
}

// CodecConfig derives the JWT codec configuration from this config.
func (c Config) CodecConfig() jwt.Config {
	return jwt.Config{
		AccessSecret:  c.AccessSecret,
		RefreshSecret: c.RefreshSecret,
		AccessTTL:     c.AccessTokenTTL,
		RefreshTTL:    c.RefreshTokenTTL,
		Issuer:        c.Issuer,
		Leeway:        c.ClockSkew,
	}
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Required:
//   - WICKET_AUTH_ACCESS_SECRET
//   - WICKET_AUTH_REFRESH_SECRET (must differ from the access secret)
//
// Optional (durations must be valid Go duration strings):
//   - WICKET_AUTH_ISSUER
//   - WICKET_AUTH_ACCESS_TTL
//   - WICKET_AUTH_REFRESH_TTL
//   - WICKET_AUTH_RESET_TTL
//   - WICKET_AUTH_CLOCK_SKEW
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("WICKET_AUTH_ISSUER"); v != "" {
		cfg.Issuer = v
	}

	if v := os.Getenv("WICKET_AUTH_ACCESS_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.AccessTokenTTL = d
	}

	if v := os.Getenv("WICKET_AUTH_REFRESH_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.RefreshTokenTTL = d
	}

	if v := os.Getenv("WICKET_AUTH_RESET_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.ResetTokenTTL = d
	}

	if v := os.Getenv("WICKET_AUTH_CLOCK_SKEW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return Config{}, ErrConfig
		}
		cfg.ClockSkew = d
	}

	cfg.AccessSecret = []byte(os.Getenv("WICKET_AUTH_ACCESS_SECRET"))
	cfg.RefreshSecret = []byte(os.Getenv("WICKET_AUTH_REFRESH_SECRET"))
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return Config{}, ErrConfig
	}

	// Invariant: a leaked access secret must never mint refresh material.
	if string(cfg.AccessSecret) == string(cfg.RefreshSecret) {
		return Config{}, ErrConfig
	}

	// Invariant: an access token must not outlive the grant behind it.
	if cfg.AccessTokenTTL > cfg.RefreshTokenTTL {
		return Config{}, ErrConfig
	}

	return cfg, nil
}
