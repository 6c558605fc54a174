package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	token, expires, err := GenerateToken("secret", "jdoe1234", time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, 5*time.Second)

	utorid, err := ParseToken("secret", token)
	require.NoError(t, err)
	assert.Equal(t, "jdoe1234", utorid)

	_, err = ParseToken("other", token)
	assert.Error(t, err)
}

func TestParseTokenRejects(t *testing.T) {
	expired, _, err := GenerateToken("secret", "jdoe1234", -time.Minute)
	require.NoError(t, err)
	_, err = ParseToken("secret", expired)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"utorid": "jdoe1234"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = ParseToken("secret", unsigned)
	assert.Error(t, err)

	anonymous := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "x"})
	signed, err := anonymous.SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = ParseToken("secret", signed)
	assert.Error(t, err)
}
