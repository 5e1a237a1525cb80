package oauth

import (
	"crypto/rand"
	"encoding/hex"
	"slices"
	"strings"
	"time"
)

const (
	AuthorizationCodeTTL = 5 * time.Minute
	AccessTokenTTL       = 10 * time.Minute
	RefreshTokenTTL      = 30 * 24 * time.Hour

	// ProfileScope is the only scope granted at signup.
	ProfileScope = "profile"

	TokenTypeBearer = "Bearer"

	authorizationCodeBytes = 32
	refreshTokenBytes      = 64
)

// SupportedScopes lists every scope this server can grant.
var SupportedScopes = []string{ProfileScope}

// ParseScope splits a space-delimited scope string, dropping empty and
// repeated entries.
func ParseScope(scope string) []string {
	var scopes []string
	for _, s := range strings.Fields(scope) {
		if !slices.Contains(scopes, s) {
			scopes = append(scopes, s)
		}
	}
	return scopes
}

// IntersectScopes keeps the requested scopes that are also allowed, in
// request order.
func IntersectScopes(requested, allowed []string) []string {
	granted := []string{}
	for _, s := range requested {
		if slices.Contains(allowed, s) && !slices.Contains(granted, s) {
			granted = append(granted, s)
		}
	}
	return granted
}

func FormatScope(scopes []string) string {
	return strings.Join(scopes, " ")
}

// generateToken returns n bytes of crypto/rand output, hex encoded.
func generateToken(n int) string {
	bytes := make([]byte, n)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}
