package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("test-jwt-secret")

func sign(t *testing.T, key []byte, method jwt.SigningMethod, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func TestParseAndValidateToken(t *testing.T) {
	tok := sign(t, secret, jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u-1", "email": "admin@loja", "role": "admin", "typ": "access",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	c, err := ParseAndValidateToken(secret, tok, "access")
	require.NoError(t, err)
	assert.Equal(t, "u-1", c.Subject)
	assert.Equal(t, "admin@loja", c.Email)
	assert.Equal(t, "admin", c.Role)

	_, err = ParseAndValidateToken(secret, tok, "refresh")
	assert.Error(t, err)
}

func TestParseAndValidateToken_Rejects(t *testing.T) {
	expired := sign(t, secret, jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u", "exp": time.Now().Add(-time.Minute).Unix()})
	wrongKey := sign(t, []byte("other"), jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u"})

	for name, tok := range map[string]string{"expired": expired, "wrong key": wrongKey, "garbage": "a.b.c"} {
		_, err := ParseAndValidateToken(secret, tok, "")
		assert.Error(t, err, name)
	}

	_, err := ParseAndValidateToken(nil, wrongKey, "")
	assert.Error(t, err)
}
