package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("secret")
	require.NoError(t, err)
	assert.NoError(t, CheckPassword(hash, "secret"))
	assert.Error(t, CheckPassword(hash, "wrong"))
}

func TestAccessTokenRoundTrip(t *testing.T) {
	token, err := NewAccessToken("test-secret", "test-issuer", time.Minute, "S100")
	require.NoError(t, err)

	claims, err := ParseToken("test-secret", "test-issuer", token)
	require.NoError(t, err)
	assert.Equal(t, "S100", claims.StudentID)
	assert.Equal(t, "S100", claims.Subject)
}

func TestAccessTokenRejections(t *testing.T) {
	token, err := NewAccessToken("test-secret", "test-issuer", time.Minute, "S100")
	require.NoError(t, err)

	_, err = ParseToken("other-secret", "test-issuer", token)
	assert.Error(t, err)
	_, err = ParseToken("test-secret", "other-issuer", token)
	assert.Error(t, err)

	expired, err := NewAccessToken("test-secret", "test-issuer", -time.Minute, "S100")
	require.NoError(t, err)
	_, err = ParseToken("test-secret", "test-issuer", expired)
	assert.Error(t, err)

	_, err = NewAccessToken("", "test-issuer", time.Minute, "S100")
	assert.Error(t, err)
}
