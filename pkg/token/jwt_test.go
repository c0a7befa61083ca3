package token

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndVerifyToken(t *testing.T) {
	m := NewJWTManager("test-secret", 2, 7)

	tokenString, err := m.GenerateToken(42, "alice", "user")
	require.NoError(t, err)
	require.NotEmpty(t, tokenString)

	claims, err := m.VerifyToken(tokenString)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "user", claims.Role)
}

func TestVerifyTokenWrongSecret(t *testing.T) {
	m := NewJWTManager("test-secret", 2, 7)
	other := NewJWTManager("another-secret", 2, 7)

	tokenString, err := m.GenerateToken(42, "alice", "user")
	require.NoError(t, err)

	_, err = other.VerifyToken(tokenString)
	assert.Error(t, err)
}

func TestVerifyTokenGarbage(t *testing.T) {
	m := NewJWTManager("test-secret", 2, 7)

	_, err := m.VerifyToken("not.a.token")
	assert.Error(t, err)
}

func TestGenerateRandomString(t *testing.T) {
	pattern := regexp.MustCompile(`^[a-zA-Z0-9]+$`)

	for _, length := range []int{1, 8, 32} {
		s := GenerateRandomString(length)
		assert.Len(t, s, length)
		assert.Regexp(t, pattern, s)
	}

	// 非法长度回退到 8
	assert.Len(t, GenerateRandomString(0), 8)
	assert.Len(t, GenerateRandomString(-3), 8)
}
