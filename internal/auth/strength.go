// ABOUTME: Password strength rules reporting every unmet requirement at once
// ABOUTME: Rules are minimum length plus lowercase, uppercase, digit, and special character

package auth

import (
	"unicode"
	"unicode/utf8"
)

// Violation names one unmet password rule.
type Violation string

const (
	ViolationTooShort      Violation = "too_short"
	ViolationNoLowercase   Violation = "missing_lowercase"
	ViolationNoUppercase   Violation = "missing_uppercase"
	ViolationNoDigit       Violation = "missing_digit"
	ViolationNoSpecialChar Violation = "missing_special_character"
)

// StrengthReport is the outcome of a strength check.
type StrengthReport struct {
	Valid      bool
	Violations []Violation
}

// CheckPasswordStrength evaluates every rule against password. Length is
// counted in characters, not bytes.
func CheckPasswordStrength(password string, minLength int) StrengthReport {
	var lower, upper, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r) || unicode.IsSpace(r):
			special = true
		}
	}

	var violations []Violation
	if utf8.RuneCountInString(password) < minLength {
		violations = append(violations, ViolationTooShort)
	}
	if !lower {
		violations = append(violations, ViolationNoLowercase)
	}
	if !upper {
		violations = append(violations, ViolationNoUppercase)
	}
	if !digit {
		violations = append(violations, ViolationNoDigit)
	}
	if !special {
		violations = append(violations, ViolationNoSpecialChar)
	}

	return StrengthReport{Valid: len(violations) == 0, Violations: violations}
}
