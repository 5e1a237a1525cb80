package storage

import (
	"bytes"
	"context"
	"fmt"
	"os"
)

// FilesystemSecretStorage reads the signing secret from a file on every
// call, so a rotated secret is picked up without a restart.
type FilesystemSecretStorage struct {
	path string
}

func NewFilesystemSecretStorage(path string) (*FilesystemSecretStorage, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to stat secret file %s: %w", path, err)
	}

	return &FilesystemSecretStorage{
		path: path,
	}, nil
}

func (f *FilesystemSecretStorage) SigningSecret(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, f.path)
		}
		return nil, fmt.Errorf("failed to read secret file: %w", err)
	}

	secret := bytes.TrimSpace(data)
	if len(secret) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrSecretNotFound, f.path)
	}
	return secret, nil
}
