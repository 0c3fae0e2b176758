package password

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Params holds the hashing parameters.
type Params struct {
	// Cost is the bcrypt work factor; cost 12 means 2^12 rounds.
	Cost int
}

// Policy holds validation rules applied before hashing.
type Policy struct {
	MinLength int
	// MaxLength must not exceed 72; bcrypt silently truncates beyond that.
	MaxLength      int
	RejectVeryWeak bool
}

// Config bundles hashing params and validation policy.
type Config struct {
	Params Params
	Policy Policy
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Params: Params{Cost: 12},
		Policy: Policy{
			MinLength:      8,
			MaxLength:      72,
			RejectVeryWeak: true,
		},
	}
}

// FromEnv builds a Config from environment variables, starting from
// DefaultConfig. Unset variables keep their defaults; malformed or
// out-of-range values return an error.
//
//	WICKET_PASSWORD_COST
//	WICKET_PASSWORD_MIN_LEN
//	WICKET_PASSWORD_MAX_LEN
//	WICKET_PASSWORD_REJECT_VERY_WEAK
func FromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("WICKET_PASSWORD_COST"); v != "" {
		n, err := atoiBounded(v, bcrypt.MinCost, bcrypt.MaxCost)
		if err != nil {
			return Config{}, fmt.Errorf("WICKET_PASSWORD_COST: %w", err)
		}
		cfg.Params.Cost = n
	}
	if v := os.Getenv("WICKET_PASSWORD_MIN_LEN"); v != "" {
		n, err := atoiBounded(v, 1, 72)
		if err != nil {
			return Config{}, fmt.Errorf("WICKET_PASSWORD_MIN_LEN: %w", err)
		}
		// Env may tighten the minimum but never weaken it below 8.
		if n < 8 {
			n = 8
		}
		cfg.Policy.MinLength = n
	}
	if v := os.Getenv("WICKET_PASSWORD_MAX_LEN"); v != "" {
		n, err := atoiBounded(v, 1, 72)
		if err != nil {
			return Config{}, fmt.Errorf("WICKET_PASSWORD_MAX_LEN: %w", err)
		}
		cfg.Policy.MaxLength = n
	}
	if v := os.Getenv("WICKET_PASSWORD_REJECT_VERY_WEAK"); v != "" {
		b, err := parseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("WICKET_PASSWORD_REJECT_VERY_WEAK: %w", err)
		}
		cfg.Policy.RejectVeryWeak = b
	}

	if cfg.Policy.MinLength > cfg.Policy.MaxLength {
		return Config{}, fmt.Errorf("min length %d exceeds max length %d", cfg.Policy.MinLength, cfg.Policy.MaxLength)
	}
	return cfg, nil
}

func atoiBounded(s string, minVal, maxVal int) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("not an integer: %q", s)
	}
	if n < minVal || n > maxVal {
		return 0, fmt.Errorf("value %d out of range [%d, %d]", n, minVal, maxVal)
	}
	return n, nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "t", "true", "y", "yes", "on":
		return true, nil
	case "0", "f", "false", "n", "no", "off":
		return false, nil
	}
	return false, fmt.Errorf("not a boolean: %q", s)
}
