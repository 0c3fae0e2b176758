package password

import (
	"strings"
	"unicode/utf8"
)

// Validate checks a plaintext password against the policy. Length is
// measured in bytes because bcrypt operates on bytes, not runes.
func (p Policy) Validate(plaintext string) error {
	if len(plaintext) < p.MinLength {
		return ErrTooShort
	}
	if len(plaintext) > p.MaxLength {
		return ErrTooLong
	}
	if p.RejectVeryWeak && looksVeryWeak(plaintext) {
		return ErrVeryWeak
	}
	return nil
}

// looksVeryWeak flags passwords that are a single repeated rune or a
// short list of notorious choices. It is a tripwire, not a strength
// estimator.
func looksVeryWeak(s string) bool {
	if s == "" {
		return true
	}
	first, _ := utf8.DecodeRuneInString(s)
	same := true
	for _, r := range s {
		if r != first {
			same = false
			break
		}
	}
	if same {
		return true
	}
	switch strings.ToLower(s) {
	case "password", "password1", "passw0rd", "12345678", "123456789",
		"qwertyui", "qwerty123", "iloveyou", "letmein1":
		return true
	}
	return false
}
