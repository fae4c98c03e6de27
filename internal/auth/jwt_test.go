package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIssuedToken(t *testing.T) {
	parser := NewParser("secret")

	raw, err := parser.Issue("GCLIENT", time.Hour)
	require.NoError(t, err)

	principal, err := parser.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "GCLIENT", principal.AccountID)
}

func TestParseFallsBackToSubject(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "GSUBJECT",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	raw, err := token.SignedString([]byte("secret"))
	require.NoError(t, err)

	principal, err := NewParser("secret").Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "GSUBJECT", principal.AccountID)
}

func TestParseRejects(t *testing.T) {
	parser := NewParser("secret")

	other, err := NewParser("other").Issue("GCLIENT", time.Hour)
	require.NoError(t, err)
	_, err = parser.Parse(other)
	require.ErrorIs(t, err, ErrInvalidToken)

	expired, err := parser.Issue("GCLIENT", -time.Hour)
	require.NoError(t, err)
	_, err = parser.Parse(expired)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = parser.Parse("")
	require.ErrorIs(t, err, ErrInvalidToken)

	anonymous := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	raw, err := anonymous.SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = parser.Parse(raw)
	require.ErrorIs(t, err, ErrMissingClaim)
}
