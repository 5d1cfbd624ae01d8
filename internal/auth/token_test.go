package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/bookswap/internal/models"
)

const testSecret = "test-secret-32-characters-long!!"

func testUser() *models.User {
	return &models.User{ID: "user-1", Email: "alice@example.com", Role: models.RoleUser}
}

func TestTokenManager_RoundTrip(t *testing.T) {
	tm := NewTokenManager(testSecret, 7*24*time.Hour)

	token, issued, err := tm.Generate(testUser())
	require.NoError(t, err)
	assert.NotEmpty(t, issued.ID)

	claims, err := tm.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.Equal(t, models.RoleUser, claims.Role)
	assert.Equal(t, issued.ID, claims.ID)
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), claims.ExpiresAt.Time, time.Minute)
}

func TestTokenManager_UniqueJTI(t *testing.T) {
	tm := NewTokenManager(testSecret, time.Hour)
	_, a, err := tm.Generate(testUser())
	require.NoError(t, err)
	_, b, err := tm.Generate(testUser())
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestTokenManager_RejectsExpired(t *testing.T) {
	tm := NewTokenManager(testSecret, time.Hour)
	tm.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, _, err := tm.Generate(testUser())
	require.NoError(t, err)

	tm.now = time.Now
	_, err = tm.Validate(token)
	assert.Error(t, err)
}

func TestTokenManager_RejectsWrongSecret(t *testing.T) {
	token, _, err := NewTokenManager(testSecret, time.Hour).Generate(testUser())
	require.NoError(t, err)

	_, err = NewTokenManager("another-secret-that-is-long-enough", time.Hour).Validate(token)
	assert.Error(t, err)
}

func TestTokenManager_RejectsOtherAlgorithms(t *testing.T) {
	claims := &models.TokenClaims{
		UserID: "user-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "jti",
			Issuer:    tokenIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = NewTokenManager(testSecret, time.Hour).Validate(token)
	assert.Error(t, err)
}

func TestTokenManager_RemainingLifetime(t *testing.T) {
	tm := NewTokenManager(testSecret, time.Hour)
	_, claims, err := tm.Generate(testUser())
	require.NoError(t, err)

	assert.InDelta(t, time.Hour.Seconds(), tm.RemainingLifetime(claims).Seconds(), 5)
	assert.Zero(t, tm.RemainingLifetime(nil))
}
