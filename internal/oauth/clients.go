package oauth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/Salint/oauth2-system/internal/storage"
)

// ClientStatus is the outcome of validating a client.
type ClientStatus int

const (
	ClientOK ClientStatus = iota
	ClientNotFound
	ClientInvalidSecret
	ClientInvalidRedirect
)

func (s ClientStatus) String() string {
	switch s {
	case ClientOK:
		return "ok"
	case ClientNotFound:
		return "not-found"
	case ClientInvalidSecret:
		return "invalid-client-secret"
	case ClientInvalidRedirect:
		return "invalid-redirect-uri"
	}
	return fmt.Sprintf("ClientStatus(%d)", int(s))
}

// ClientResult reports whether a client passed validation and, if it
// exists, whether it is confidential.
type ClientResult struct {
	Status       ClientStatus
	Confidential bool
}

func (r ClientResult) Valid() bool {
	return r.Status == ClientOK
}

// Err maps a failed status to its sentinel error, or nil for ClientOK.
func (r ClientResult) Err() error {
	switch r.Status {
	case ClientNotFound:
		return ErrClientNotFound
	case ClientInvalidSecret:
		return ErrInvalidClientSecret
	case ClientInvalidRedirect:
		return ErrInvalidRedirectURI
	}
	return nil
}

// ValidateClient checks that clientID exists and, when supplied, that the
// secret and redirect URI are bound to it. Empty arguments skip their check.
// The returned error is reserved for store failures; validation outcomes are
// reported through ClientResult.
func (s *Service) ValidateClient(ctx context.Context, clientID, clientSecret, redirectURI string) (ClientResult, error) {
	client, err := s.store.GetClient(ctx, clientID)
	if errors.Is(err, storage.ErrNotFound) {
		return ClientResult{Status: ClientNotFound}, nil
	}
	if err != nil {
		return ClientResult{}, fmt.Errorf("failed to get client: %w", err)
	}

	result := ClientResult{Status: ClientOK, Confidential: client.IsConfidential()}

	if clientSecret != "" && client.IsConfidential() {
		if subtle.ConstantTimeCompare([]byte(clientSecret), []byte(client.Secret)) != 1 {
			result.Status = ClientInvalidSecret
			return result, nil
		}
	}

	if redirectURI != "" && !client.HasRedirectURI(redirectURI) {
		result.Status = ClientInvalidRedirect
		return result, nil
	}

	return result, nil
}
