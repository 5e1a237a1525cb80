package oauth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseScope(t *testing.T) {
	assert.Nil(t, ParseScope(""))
	assert.Nil(t, ParseScope("   "))
	assert.Equal(t, []string{"profile"}, ParseScope("profile"))
	assert.Equal(t, []string{"openid", "profile"}, ParseScope(" openid  profile openid "))
}

func TestIntersectScopes(t *testing.T) {
	allowed := []string{"profile", "email"}

	assert.Equal(t, []string{"email", "profile"}, IntersectScopes([]string{"email", "admin", "profile", "email"}, allowed))
	assert.Equal(t, []string{}, IntersectScopes([]string{"admin"}, allowed))
	assert.Equal(t, []string{}, IntersectScopes(nil, allowed))
}

func TestFormatScope(t *testing.T) {
	assert.Equal(t, "openid profile", FormatScope([]string{"openid", "profile"}))
	assert.Equal(t, "", FormatScope(nil))
}

func TestGenerateToken(t *testing.T) {
	a := generateToken(authorizationCodeBytes)
	b := generateToken(authorizationCodeBytes)

	assert.Len(t, a, 2*authorizationCodeBytes)
	assert.Regexp(t, "^[0-9a-f]+$", a)
	assert.NotEqual(t, a, b)
	assert.Len(t, generateToken(refreshTokenBytes), 128)
}
