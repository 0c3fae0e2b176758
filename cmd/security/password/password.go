package password

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Hasher hashes and verifies passwords with bcrypt.
type Hasher struct {
	cfg Config
}

// NewHasher returns a Hasher using the given config.
func NewHasher(cfg Config) *Hasher {
	return &Hasher{cfg: cfg}
}

// Validate applies the configured policy to a candidate plaintext.
func (h *Hasher) Validate(plaintext string) error {
	return h.cfg.Policy.Validate(plaintext)
}

// Hash validates the plaintext and returns its bcrypt hash in the
// standard $2a$ encoding.
func (h *Hasher) Hash(plaintext string) (string, error) {
	if err := h.cfg.Policy.Validate(plaintext); err != nil {
		return "", err
	}
	out, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cfg.Params.Cost)
	if err != nil {
		return "", fmt.Errorf("password: hash: %w", err)
	}
	return string(out), nil
}

// Verify reports whether plaintext matches the stored hash. It never
// errors: a malformed or truncated stored hash verifies as false, so a
// corrupted credential row behaves like a wrong password.
func (h *Hasher) Verify(hashed, plaintext string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plaintext)) == nil
}

// Cost extracts the work factor from a stored hash. It is used to
// decide whether a credential should be re-hashed after a successful
// verification when the configured cost has been raised.
func (h *Hasher) Cost(hashed string) (int, error) {
	c, err := bcrypt.Cost([]byte(hashed))
	if err != nil {
		return 0, fmt.Errorf("password: cost: %w", err)
	}
	return c, nil
}

// NeedsRehash reports whether the stored hash was produced with a
// lower cost than currently configured.
func (h *Hasher) NeedsRehash(hashed string) bool {
	c, err := h.Cost(hashed)
	if err != nil {
		return false
	}
	return c < h.cfg.Params.Cost
}
