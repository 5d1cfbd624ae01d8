package auth

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name      string
		password  string
		wantRules []string
	}{
		{name: "valid strong password", password: "SecureP@ss123"},
		{name: "valid with unicode letters", password: "Ünïcødé#1x"},
		{name: "too short", password: "Pa@1", wantRules: []string{"at least 8"}},
		{name: "missing uppercase", password: "securepass@123", wantRules: []string{"uppercase"}},
		{name: "missing lowercase", password: "SECUREPASS@123", wantRules: []string{"lowercase"}},
		{name: "missing digit", password: "SecurePass@xyz", wantRules: []string{"digit"}},
		{name: "missing symbol", password: "SecurePass123", wantRules: []string{"symbol"}},
		{name: "common password", password: "Password123!", wantRules: []string{"too common"}},
		{name: "too long", password: "Aa1!" + strings.Repeat("x", MaxPasswordLen), wantRules: []string{"at most 128"}},
		{name: "empty lists everything", password: "", wantRules: []string{"at least 8", "uppercase", "lowercase", "digit", "symbol"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePassword(tt.password)
			if len(tt.wantRules) == 0 {
				assert.NoError(t, err)
				return
			}

			var pve *PasswordValidationError
			require.True(t, errors.As(err, &pve))
			assert.Len(t, pve.Rules, len(tt.wantRules))
			for _, rule := range tt.wantRules {
				assert.Contains(t, err.Error(), rule)
			}
		})
	}
}

func TestPasswordHasher(t *testing.T) {
	h := NewPasswordHasher(bcrypt.MinCost)
	password := "SecureP@ss123"

	hash, err := h.Hash(password)
	require.NoError(t, err)
	assert.NotEqual(t, password, hash)

	assert.True(t, h.Compare(hash, password))
	assert.False(t, h.Compare(hash, "WrongPassword123!"))
	assert.False(t, h.Compare("not-a-hash", password))

	_, err = h.Hash("")
	assert.Error(t, err)
}

func TestNewPasswordHasher_InvalidCostFallsBack(t *testing.T) {
	h := NewPasswordHasher(0)
	assert.Equal(t, DefaultBcryptCost, h.cost)
}
