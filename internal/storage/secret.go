package storage

import "context"

// StaticSecretStorage serves a secret fixed at startup.
type StaticSecretStorage []byte

func (s StaticSecretStorage) SigningSecret(ctx context.Context) ([]byte, error) {
	if len(s) == 0 {
		return nil, ErrSecretNotFound
	}
	return []byte(s), nil
}
