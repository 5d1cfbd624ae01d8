package auth

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultBcryptCost = 12
	MinPasswordLen    = 8
	MaxPasswordLen    = 128
)

// PasswordValidationError lists every strength rule a password failed.
type PasswordValidationError struct {
	Rules []string
}

func (e *PasswordValidationError) Error() string {
	if len(e.Rules) == 0 {
		return "password does not meet requirements"
	}
	return "password " + strings.Join(e.Rules, ", ")
}

// Common weak passwords to reject
var commonPasswords = map[string]bool{
	"password1!":   true,
	"password123!": true,
	"passw0rd!":    true,
	"p@ssw0rd":     true,
	"p@ssword1":    true,
	"qwerty123!":   true,
	"welcome1!":    true,
	"letmein1!":    true,
	"admin123!":    true,
	"bookswap1!":   true,
}

// PasswordHasher hashes and verifies passwords with bcrypt.
type PasswordHasher struct {
	cost int
	// dummy is compared against when no account exists so the response time
	// does not reveal whether an email is registered.
	dummy []byte
}

// NewPasswordHasher returns a hasher using cost, or DefaultBcryptCost when cost
// is outside bcrypt's accepted range.
func NewPasswordHasher(cost int) *PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	dummy, _ := bcrypt.GenerateFromPassword([]byte("dummy-password-for-timing"), cost)
	return &PasswordHasher{cost: cost, dummy: dummy}
}

func (h *PasswordHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

// Compare reports whether password matches hashed.
func (h *PasswordHasher) Compare(hashed, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(password)) == nil
}

// CompareDummy spends the same time as a real comparison and always fails.
func (h *PasswordHasher) CompareDummy(password string) {
	_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(password))
}

// ValidatePassword enforces strong password requirements
func ValidatePassword(password string) error {
	rules := make([]string, 0)

	length := len([]rune(password))
	if length < MinPasswordLen {
		rules = append(rules, fmt.Sprintf("must be at least %d characters", MinPasswordLen))
	}
	if length > MaxPasswordLen {
		rules = append(rules, fmt.Sprintf("must be at most %d characters", MaxPasswordLen))
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}

	if !hasUpper {
		rules = append(rules, "must contain an uppercase letter")
	}
	if !hasLower {
		rules = append(rules, "must contain a lowercase letter")
	}
	if !hasDigit {
		rules = append(rules, "must contain a digit")
	}
	if !hasSpecial {
		rules = append(rules, "must contain a symbol")
	}

	if commonPasswords[strings.ToLower(password)] {
		rules = append(rules, "is too common")
	}

	if len(rules) > 0 {
		return &PasswordValidationError{Rules: rules}
	}
	return nil
}
