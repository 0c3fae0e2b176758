// Package authapi exposes the credential and session lifecycle over HTTP.
package authapi

import (
	"net/http"
	"os"
	"strconv"
	"strings"
)

// Config controls auth API behavior and security defaults.
type Config struct {
	TrustProxy   bool
	MaxBodyBytes int64

	// Browser transport: refresh token in an HTTP-only cookie scoped to
	// /auth, paired with a CSRF double-submit cookie+header.
	WebRefreshCookieEnabled bool
	RefreshCookieName       string
	CSRFCookieName          string
	CSRFHeaderName          string
	CookiePath              string
	CookieDomain            string
	CookieSecure            bool
	CookieSameSite          http.SameSite
}

// LoadConfigFromEnv loads auth API config from environment variables with safe defaults.
func LoadConfigFromEnv() Config {
	cfg := Config{
		TrustProxy:              envBool("WICKET_AUTH_TRUST_PROXY", false),
		MaxBodyBytes:            envInt64("WICKET_AUTH_MAX_BODY_BYTES", 1<<20), // 1 MiB
		WebRefreshCookieEnabled: envBool("WICKET_AUTH_WEB_COOKIES", true),
		RefreshCookieName:       envString("WICKET_AUTH_REFRESH_COOKIE", "wicket_refresh"),
		CSRFCookieName:          envString("WICKET_AUTH_CSRF_COOKIE", "wicket_csrf"),
		CSRFHeaderName:          envString("WICKET_AUTH_CSRF_HEADER", "X-CSRF-Token"),
		CookiePath:              envString("WICKET_AUTH_COOKIE_PATH", "/auth"),
		CookieDomain:            envString("WICKET_AUTH_COOKIE_DOMAIN", ""),
		CookieSecure:            envBool("WICKET_AUTH_COOKIE_SECURE", true),
		CookieSameSite:          envSameSite("WICKET_AUTH_COOKIE_SAMESITE", http.SameSiteLaxMode),
	}

	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	return cfg
}

func envString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envSameSite(key string, def http.SameSite) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "strict":
		return http.SameSiteStrictMode
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return def
	}
}
