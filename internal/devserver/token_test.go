package devserver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenService_RoundTrip(t *testing.T) {
	svc := NewTokenService("secret", time.Hour, "fuelcard-devserver")

	token, expiresAt, err := svc.Generate(42, "user@example.com")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, "user@example.com", claims.Email)
}

func TestTokenService_RejectsWrongSecret(t *testing.T) {
	issuer := NewTokenService("secret-a", time.Hour, "fuelcard-devserver")
	verifier := NewTokenService("secret-b", time.Hour, "fuelcard-devserver")

	token, _, err := issuer.Generate(42, "user@example.com")
	require.NoError(t, err)

	_, err = verifier.Validate(token)
	assert.Error(t, err)
}

func TestTokenService_RejectsExpired(t *testing.T) {
	svc := NewTokenService("secret", -time.Minute, "fuelcard-devserver")

	token, _, err := svc.Generate(42, "user@example.com")
	require.NoError(t, err)

	_, err = svc.Validate(token)
	assert.Error(t, err)
}

func TestTokenService_RejectsGarbage(t *testing.T) {
	svc := NewTokenService("secret", time.Hour, "fuelcard-devserver")

	_, err := svc.Validate("not.a.token")
	assert.Error(t, err)
}
