package jwt

import (
	"errors"
	"fmt"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is the single verification failure surfaced to
// callers. Expired, malformed, mis-signed and wrong-kind tokens are
// indistinguishable from the outside.
var ErrInvalidToken = errors.New("jwt: invalid token")

// Config drives the codec. AccessSecret and RefreshSecret must be
// distinct; the constructor rejects shared material.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	// Leeway absorbs clock skew between signer and verifier.
	Leeway time.Duration
}

// AccessClaims is what a verified access token carries.
type AccessClaims struct {
	Subject   string
	Roles     []string
	ExpiresAt time.Time
}

// RefreshClaims is what a verified refresh token carries. Roles are
// deliberately absent; they are re-read from the account on refresh.
type RefreshClaims struct {
	Subject   string
	ExpiresAt time.Time
}

// Codec signs and verifies both token kinds.
type Codec struct {
	cfg Config
}

// NewCodec validates the config and returns a Codec.
func NewCodec(cfg Config) (*Codec, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("jwt: both secrets are required")
	}
	if string(cfg.AccessSecret) == string(cfg.RefreshSecret) {
		return nil, errors.New("jwt: access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("jwt: token TTLs must be positive")
	}
	return &Codec{cfg: cfg}, nil
}

type accessPayload struct {
	Roles []string `json:"roles,omitempty"`
	jwtv5.RegisteredClaims
}

type refreshPayload struct {
	jwtv5.RegisteredClaims
}

// SignAccess mints an access token for sub carrying roles.
func (c *Codec) SignAccess(sub string, roles []string, now time.Time) (string, error) {
	claims := accessPayload{
		Roles: roles,
		RegisteredClaims: jwtv5.RegisteredClaims{
			Subject:   sub,
			Issuer:    c.cfg.Issuer,
			IssuedAt:  jwtv5.NewNumericDate(now),
			ExpiresAt: jwtv5.NewNumericDate(now.Add(c.cfg.AccessTTL)),
		},
	}
	tok := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims)
	signed, err := tok.SignedString(c.cfg.AccessSecret)
	if err != nil {
		return "", fmt.Errorf("jwt: sign access: %w", err)
	}
	return signed, nil
}

// SignRefresh mints a refresh token for sub. No roles: they would go
// stale over the token's month-long lifetime.
func (c *Codec) SignRefresh(sub string, now time.Time) (string, error) {
	claims := refreshPayload{
		RegisteredClaims: jwtv5.RegisteredClaims{
			Subject:   sub,
			Issuer:    c.cfg.Issuer,
			IssuedAt:  jwtv5.NewNumericDate(now),
			ExpiresAt: jwtv5.NewNumericDate(now.Add(c.cfg.RefreshTTL)),
		},
	}
	tok := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims)
	signed, err := tok.SignedString(c.cfg.RefreshSecret)
	if err != nil {
		return "", fmt.Errorf("jwt: sign refresh: %w", err)
	}
	return signed, nil
}

// VerifyAccess parses and validates an access token.
func (c *Codec) VerifyAccess(raw string) (AccessClaims, error) {
	var payload accessPayload
	if err := c.verify(raw, c.cfg.AccessSecret, &payload); err != nil {
		return AccessClaims{}, ErrInvalidToken
	}
	return AccessClaims{
		Subject:   payload.Subject,
		Roles:     payload.Roles,
		ExpiresAt: payload.ExpiresAt.Time,
	}, nil
}

// VerifyRefresh parses and validates a refresh token.
func (c *Codec) VerifyRefresh(raw string) (RefreshClaims, error) {
	var payload refreshPayload
	if err := c.verify(raw, c.cfg.RefreshSecret, &payload); err != nil {
		return RefreshClaims{}, ErrInvalidToken
	}
	return RefreshClaims{
		Subject:   payload.Subject,
		ExpiresAt: payload.ExpiresAt.Time,
	}, nil
}

func (c *Codec) verify(raw string, secret []byte, into jwtv5.Claims) error {
	opts := []jwtv5.ParserOption{
		jwtv5.WithValidMethods([]string{"HS256"}),
		jwtv5.WithExpirationRequired(),
		jwtv5.WithLeeway(c.cfg.Leeway),
	}
	if c.cfg.Issuer != "" {
		opts = append(opts, jwtv5.WithIssuer(c.cfg.Issuer))
	}
	tok, err := jwtv5.ParseWithClaims(raw, into, func(*jwtv5.Token) (any, error) {
		return secret, nil
	}, opts...)
	if err != nil || !tok.Valid {
		return ErrInvalidToken
	}
	sub, err := tok.Claims.GetSubject()
	if err != nil || sub == "" {
		return ErrInvalidToken
	}
	return nil
}
