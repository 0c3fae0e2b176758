package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string // "json" or "pretty"

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// If true, /readyz returns 503 unless the database is reachable.
	ReadinessRequireDB bool

	// If true, WICKET_TOKEN_HMAC_KEY MUST be set (>= 32 bytes) and
	// token digests must be HMAC-based.
	RequireTokenHMAC bool

	// SweepInterval controls how often expired grants are physically
	// removed. Zero disables the sweeper.
	SweepInterval time.Duration
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("WICKET_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("WICKET_LOG_LEVEL", "info"),
		LogFormat: EnvString("WICKET_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("WICKET_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("WICKET_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("WICKET_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("WICKET_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("WICKET_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("WICKET_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("WICKET_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("WICKET_DB_MIN_CONNS", 0),

		ReadinessRequireDB: EnvBool("WICKET_READINESS_REQUIRE_DB", true),

		RequireTokenHMAC: EnvBool("WICKET_REQUIRE_TOKEN_HMAC", false),

		SweepInterval: EnvDuration("WICKET_SWEEP_INTERVAL", time.Hour),
	}
}

// EnvString reads a string env var with a default.
func EnvString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

// EnvBool reads a bool env var with a default.
func EnvBool(key string, def bool) bool {
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

// EnvInt reads a positive int env var with a default.
func EnvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// EnvInt32 reads a non-negative int32 env var with a default.
func EnvInt32(key string, def int32) int32 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 32)
	if err != nil || n < 0 {
		return def
	}
	return int32(n)
}

// EnvDuration reads a duration env var with a default.
func EnvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return def
	}
	return d
}
