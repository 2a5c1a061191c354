package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	require.NoError(t, err)
	return string(hash)
}

func TestIssueTokenAndValidateRoundTrip(t *testing.T) {
	hash := hashPassword(t, "correct-horse")
	a := NewAuthenticator("secret", "operator", hash)

	token, err := a.IssueToken("operator", "correct-horse")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := a.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "operator", claims.Username)
}

func TestIssueTokenRejectsWrongPassword(t *testing.T) {
	hash := hashPassword(t, "correct-horse")
	a := NewAuthenticator("secret", "operator", hash)

	_, err := a.IssueToken("operator", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestIssueTokenRejectsUnknownUser(t *testing.T) {
	hash := hashPassword(t, "correct-horse")
	a := NewAuthenticator("secret", "operator", hash)

	_, err := a.IssueToken("someone-else", "correct-horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestReissuingTokenRevokesThePreviousOne(t *testing.T) {
	hash := hashPassword(t, "correct-horse")
	a := NewAuthenticator("secret", "operator", hash)

	first, err := a.IssueToken("operator", "correct-horse")
	require.NoError(t, err)

	second, err := a.IssueToken("operator", "correct-horse")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	_, err = a.Validate(first)
	assert.ErrorIs(t, err, ErrTokenRevoked)

	_, err = a.Validate(second)
	assert.NoError(t, err)
}

func TestValidateRejectsGarbageToken(t *testing.T) {
	a := NewAuthenticator("secret", "operator", hashPassword(t, "x"))
	_, err := a.Validate("not-a-jwt")
	assert.Error(t, err)
}
