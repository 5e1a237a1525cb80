package oauth

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	secret := []byte("secret")
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	token, err := signAccessToken(secret, "web", "user-1", "https://app.example.com/cb", []string{"profile"}, now)
	require.NoError(t, err)

	claims, err := parseAccessToken(secret, token, now.Add(AccessTokenTTL-time.Second))
	require.NoError(t, err)
	assert.Equal(t, "web", claims.ClientID)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "https://app.example.com/cb", claims.Audience)
	assert.Equal(t, []string{"profile"}, claims.Scope)
	assert.Equal(t, now.Unix(), claims.IssuedAt.Unix())
	assert.Equal(t, now.Add(AccessTokenTTL).Unix(), claims.ExpiresAt.Unix())

	_, err = parseAccessToken(secret, token, now.Add(AccessTokenTTL))
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	_, err = parseAccessToken([]byte("other"), token, now)
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
}

func TestAccessTokenWireFormat(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	token, err := signAccessToken([]byte("secret"), "web", "user-1", "https://app.example.com/cb", []string{"profile"}, now)
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)

	header, err := base64.RawURLEncoding.DecodeString(parts[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"alg":"HS256","typ":"JWT"}`, string(header))

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)

	var claims map[string]any
	require.NoError(t, json.Unmarshal(payload, &claims))
	assert.Equal(t, "https://app.example.com/cb", claims["aud"], "aud is a single string")
	assert.Equal(t, []any{"profile"}, claims["scope"])
	assert.EqualValues(t, now.Unix(), claims["iat"])
	assert.EqualValues(t, now.Unix()+600, claims["exp"])
}
