package vault

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Password length limits, counted in characters.
const (
	MinPasswordLength = 8
	MaxPasswordLength = 128
)

// PasswordStrength represents the strength level of a password
type PasswordStrength int

const (
	PasswordWeak PasswordStrength = iota
	PasswordFair
	PasswordGood
	PasswordStrong
)

// String returns a human-readable representation of password strength
func (s PasswordStrength) String() string {
	switch s {
	case PasswordWeak:
		return "weak"
	case PasswordFair:
		return "fair"
	case PasswordGood:
		return "good"
	case PasswordStrong:
		return "strong"
	default:
		return "unknown"
	}
}

// PasswordValidationResult contains the result of password validation
type PasswordValidationResult struct {
	Valid    bool             // Whether password meets minimum requirements
	Strength PasswordStrength // Estimated strength
	Warnings []string         // Suggestions for improvement (not errors)
}

// ValidateMasterPassword checks a new vault password. Only the length limits
// are hard requirements; complexity produces warnings. The vault itself
// accepts any password, so callers decide whether to enforce this.
func ValidateMasterPassword(password string) *PasswordValidationResult {
	n := utf8.RuneCountInString(password)
	if n < MinPasswordLength {
		return &PasswordValidationResult{
			Strength: PasswordWeak,
			Warnings: []string{fmt.Sprintf("Password must be at least %d characters", MinPasswordLength)},
		}
	}
	if n > MaxPasswordLength {
		return &PasswordValidationResult{
			Strength: PasswordWeak,
			Warnings: []string{fmt.Sprintf("Password must be at most %d characters", MaxPasswordLength)},
		}
	}

	result := &PasswordValidationResult{Valid: true}
	classes := characterClasses(password)

	if classes < 2 {
		result.Warnings = append(result.Warnings,
			"Consider using a mix of uppercase, lowercase, numbers, and symbols")
	}
	if n < 12 {
		result.Warnings = append(result.Warnings,
			"Longer passwords (12+ characters) are more secure")
	}
	if looksLikeMnemonic(password) {
		result.Warnings = append(result.Warnings,
			"Do not reuse words from your recovery phrase as the password")
	}

	switch {
	case classes >= 3 && n >= 16:
		result.Strength = PasswordStrong
	case classes >= 2 && n >= 12:
		result.Strength = PasswordGood
	case classes >= 2 || n >= 12:
		result.Strength = PasswordFair
	default:
		result.Strength = PasswordWeak
	}
	return result
}

// characterClasses counts how many of upper, lower, digit and other
// (punctuation, symbols, spaces) appear in s.
func characterClasses(s string) int {
	var upper, lower, digit, other bool
	for _, r := range s {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		default:
			other = true
		}
	}
	n := 0
	for _, b := range []bool{upper, lower, digit, other} {
		if b {
			n++
		}
	}
	return n
}

// looksLikeMnemonic flags passwords made of several lowercase words, the
// shape of a pasted recovery phrase.
func looksLikeMnemonic(s string) bool {
	words := strings.Fields(s)
	if len(words) < 3 {
		return false
	}
	for _, w := range words {
		for _, r := range w {
			if !unicode.IsLower(r) {
				return false
			}
		}
	}
	return true
}
