package models

import "time"

// RefreshToken is a long-lived credential bound to the client it was issued
// to. Aud carries the redirect URI of the original authorization forward.
type RefreshToken struct {
	Token     string    `json:"refresh_token"`
	ClientID  string    `json:"client_id"`
	UserID    string    `json:"user_id"`
	Aud       string    `json:"aud"`
	Scope     []string  `json:"scope"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the token is past its expiry at now.
func (t *RefreshToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// TokenResponse is returned by both grants of the token endpoint.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}
