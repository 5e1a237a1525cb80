package models

import (
	"slices"
	"time"
)

// Client represents an OAuth client application. Clients are provisioned
// outside of this service and are read-only here.
type Client struct {
	ID           string   `json:"client_id" yaml:"client_id"`
	Secret       string   `json:"client_secret,omitempty" yaml:"client_secret,omitempty"`
	RedirectURIs []string `json:"redirect_uris" yaml:"redirect_uris"`
}

// IsConfidential reports whether the client holds a secret.
func (c *Client) IsConfidential() bool {
	return c.Secret != ""
}

// HasRedirectURI reports whether uri is registered for the client.
func (c *Client) HasRedirectURI(uri string) bool {
	return slices.Contains(c.RedirectURIs, uri)
}

// AuthorizationCode represents a single-use authorization code
type AuthorizationCode struct {
	Code                string    `json:"code"`
	ClientID            string    `json:"client_id"`
	RedirectURI         string    `json:"redirect_uri"`
	Scope               []string  `json:"scope"`
	UserID              string    `json:"user_id"`
	CodeChallenge       string    `json:"code_challenge,omitempty"`
	CodeChallengeMethod string    `json:"code_challenge_method,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
	ExpiresAt           time.Time `json:"expires_at"`
}

// Expired reports whether the code is past its expiry at now.
func (c *AuthorizationCode) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
