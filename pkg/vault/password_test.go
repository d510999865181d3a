package vault

import (
	"strings"
	"testing"
)

func TestValidateMasterPassword(t *testing.T) {
	tests := []struct {
		name            string
		password        string
		expectValid     bool
		expectStrength  PasswordStrength
		minWarningCount int
	}{
		// Hard requirement failures
		{"too short", "abc123", false, PasswordWeak, 1},
		{"empty password", "", false, PasswordWeak, 1},
		{"just under minimum", "1234567", false, PasswordWeak, 1},
		{"too long", strings.Repeat("a", MaxPasswordLength+1), false, PasswordWeak, 1},

		// Valid passwords with varying strengths
		{"exactly minimum length, simple", "password", true, PasswordWeak, 2},
		{"8 chars with numbers", "pass1234", true, PasswordFair, 1},
		{"12 chars mixed case", "Password1234", true, PasswordGood, 0},
		{"16 chars with all types", "Password1234!@#$", true, PasswordStrong, 0},
		{"maximum length single class", strings.Repeat("x", MaxPasswordLength), true, PasswordFair, 1},

		// Length is counted in characters, not bytes
		{"multibyte at minimum", "пароль12", true, PasswordFair, 1},
		{"multibyte under minimum", "пароль1", false, PasswordWeak, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateMasterPassword(tt.password)

			if result.Valid != tt.expectValid {
				t.Errorf("Valid = %v, want %v", result.Valid, tt.expectValid)
			}
			if result.Strength != tt.expectStrength {
				t.Errorf("Strength = %v, want %v", result.Strength, tt.expectStrength)
			}
			if len(result.Warnings) < tt.minWarningCount {
				t.Errorf("got %d warnings, want at least %d: %v", len(result.Warnings), tt.minWarningCount, result.Warnings)
			}
			if tt.minWarningCount == 0 && len(result.Warnings) != 0 {
				t.Errorf("unexpected warnings: %v", result.Warnings)
			}
		})
	}
}

func TestValidateMasterPasswordWarnsOnPhrase(t *testing.T) {
	result := ValidateMasterPassword("abandon ability able about")
	if !result.Valid {
		t.Fatal("expected phrase-shaped password to be accepted")
	}

	found := false
	for _, w := range result.Warnings {
		if strings.Contains(w, "recovery phrase") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a recovery phrase warning, got %v", result.Warnings)
	}

	result = ValidateMasterPassword("Correct Horse Battery 9")
	for _, w := range result.Warnings {
		if strings.Contains(w, "recovery phrase") {
			t.Errorf("unexpected recovery phrase warning for mixed-case password")
		}
	}
}

func TestPasswordStrengthString(t *testing.T) {
	tests := map[PasswordStrength]string{
		PasswordWeak:         "weak",
		PasswordFair:         "fair",
		PasswordGood:         "good",
		PasswordStrong:       "strong",
		PasswordStrength(99): "unknown",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("PasswordStrength(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}
