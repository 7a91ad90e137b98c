package password

import (
	"fmt"
	"strings"
	"unicode"
)

// DefaultSpecialCharacters is the set counted as special characters.
const DefaultSpecialCharacters = `!@#$%^&*(),.?":{}|<>`

// DefaultCommonPasswords are rejected when they appear anywhere in a
// password, case-insensitively.
var DefaultCommonPasswords = []string{
	"password",
	"123456",
	"qwerty",
	"admin",
	"letmein",
	"welcome",
	"monkey",
	"1234567890",
	"password123",
}

// Policy describes password strength requirements.
type Policy struct {
	MinLength      int
	RequireUpper   bool
	RequireLower   bool
	RequireDigit   bool
	RequireSpecial bool
	Specials       string
	Common         []string
}

// DefaultPolicy requires 12 characters with upper, lower, digit and special
// characters and rejects common passwords.
func DefaultPolicy() Policy {
	return Policy{
		MinLength:      12,
		RequireUpper:   true,
		RequireLower:   true,
		RequireDigit:   true,
		RequireSpecial: true,
		Specials:       DefaultSpecialCharacters,
		Common:         DefaultCommonPasswords,
	}
}

// PolicyError lists every violated rule.
type PolicyError struct {
	Violations []string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("%v: %s", ErrWeakPassword, strings.Join(e.Violations, "; "))
}

func (e *PolicyError) Unwrap() error { return ErrWeakPassword }

// Check returns the violated rules in a stable order.
func (p Policy) Check(password string) []string {
	var violations []string

	if len([]rune(password)) < p.MinLength {
		violations = append(violations, fmt.Sprintf("must be at least %d characters long", p.MinLength))
	}

	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z':
			lower = true
		case unicode.IsDigit(r) && r < unicode.MaxASCII:
			digit = true
		}
		if strings.ContainsRune(p.Specials, r) {
			special = true
		}
	}
	if p.RequireUpper && !upper {
		violations = append(violations, "must contain at least one uppercase letter")
	}
	if p.RequireLower && !lower {
		violations = append(violations, "must contain at least one lowercase letter")
	}
	if p.RequireDigit && !digit {
		violations = append(violations, "must contain at least one number")
	}
	if p.RequireSpecial && !special {
		violations = append(violations, "must contain at least one special character")
	}

	lowered := strings.ToLower(password)
	for _, common := range p.Common {
		if common != "" && strings.Contains(lowered, strings.ToLower(common)) {
			violations = append(violations, "contains common words or patterns")
			break
		}
	}
	return violations
}

// Validate returns a *PolicyError when password violates p.
func (p Policy) Validate(password string) error {
	if v := p.Check(password); len(v) > 0 {
		return &PolicyError{Violations: v}
	}
	return nil
}
