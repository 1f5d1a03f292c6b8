package credential

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	minPasswordChars = 8
	specialChars     = `!@#$%^&*(),.?":{}|<>`
)

var commonPasswords = map[string]struct{}{
	"password":   {},
	"12345678":   {},
	"qwerty":     {},
	"abc123":     {},
	"password1":  {},
	"12345":      {},
	"1234567890": {},
	"letmein":    {},
	"welcome":    {},
	"monkey":     {},
}

var weakSequences = []string{"012", "123", "234", "345", "456", "567", "678", "789", "abc", "bcd", "cde"}

// PolicyError lists every rule a password violates.
type PolicyError struct {
	Violations []string
}

func (e *PolicyError) Error() string {
	return strings.Join(e.Violations, "; ")
}

type charClasses struct {
	upper, lower, digit, special bool
}

func classify(password string) charClasses {
	var c charClasses
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			c.upper = true
		case unicode.IsLower(r):
			c.lower = true
		case unicode.IsDigit(r):
			c.digit = true
		}
		if strings.ContainsRune(specialChars, r) {
			c.special = true
		}
	}
	return c
}

// ValidatePolicy returns a *PolicyError when the password is too short, too
// long for bcrypt, lacks a required character class, or is a common password.
func ValidatePolicy(password string) error {
	var violations []string

	if utf8.RuneCountInString(password) < minPasswordChars {
		violations = append(violations, "password must be at least 8 characters")
	}
	if len(password) > MaxPasswordBytes {
		violations = append(violations, "password must not exceed 72 bytes")
	}

	c := classify(password)
	if !c.upper {
		violations = append(violations, "password must contain an uppercase letter")
	}
	if !c.lower {
		violations = append(violations, "password must contain a lowercase letter")
	}
	if !c.digit {
		violations = append(violations, "password must contain a digit")
	}
	if !c.special {
		violations = append(violations, "password must contain a special character")
	}
	if _, common := commonPasswords[strings.ToLower(password)]; common {
		violations = append(violations, "password is too common")
	}

	if len(violations) > 0 {
		return &PolicyError{Violations: violations}
	}
	return nil
}

// StrengthScore rates a password from 0 to 100.
func StrengthScore(password string) int {
	n := utf8.RuneCountInString(password)
	score := min(n*2, 30)

	c := classify(password)
	for _, ok := range []bool{c.lower, c.upper, c.digit, c.special} {
		if ok {
			score += 10
		}
	}

	lower := strings.ToLower(password)
	sequential := false
	for _, seq := range weakSequences {
		if strings.Contains(lower, seq) {
			sequential = true
			break
		}
	}
	if !sequential {
		score += 10
	}
	if !hasRun(password, 3) {
		score += 10
	}
	if n >= 12 {
		score += 10
	}

	return min(score, 100)
}

// hasRun reports whether any rune repeats n or more times in a row.
func hasRun(s string, n int) bool {
	var prev rune
	count := 0
	for i, r := range s {
		if i > 0 && r == prev {
			count++
		} else {
			count = 1
		}
		if count >= n {
			return true
		}
		prev = r
	}
	return false
}
