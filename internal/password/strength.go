package password

import (
	"unicode"
	"unicode/utf8"
)

// MinLength is the minimum number of characters in a password.
const MinLength = 8

// MaxBytes is the longest password bcrypt accepts.
const MaxBytes = 72

// Strength rule messages, in evaluation order.
const (
	ReasonTooShort    = "password must be at least 8 characters"
	ReasonTooLong     = "password must be at most 72 bytes"
	ReasonNoUppercase = "password must contain an uppercase letter"
	ReasonNoLowercase = "password must contain a lowercase letter"
	ReasonNoDigit     = "password must contain a digit"
	ReasonNoSymbol    = "password must contain a symbol"
)

// ValidateStrength returns nil when candidate passes every strength rule,
// otherwise a *PolicyError for the first rule that fails. Rules are checked
// in a fixed order: minimum length, maximum length, uppercase, lowercase,
// digit, symbol.
func ValidateStrength(candidate string) error {
	if utf8.RuneCountInString(candidate) < MinLength {
		return weak(ReasonTooShort)
	}
	if len(candidate) > MaxBytes {
		return weak(ReasonTooLong)
	}
	var upper, lower, digit, symbol bool
	for _, r := range candidate {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case !unicode.IsLetter(r):
			symbol = true
		}
	}
	switch {
	case !upper:
		return weak(ReasonNoUppercase)
	case !lower:
		return weak(ReasonNoLowercase)
	case !digit:
		return weak(ReasonNoDigit)
	case !symbol:
		return weak(ReasonNoSymbol)
	}
	return nil
}
