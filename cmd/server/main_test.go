package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/Salint/oauth2-system/internal/models"
	"github.com/Salint/oauth2-system/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadClients(t *testing.T) {
	path := writeFile(t, "clients.yaml", `
clients:
  - client_id: web
    client_secret: s3cret
    redirect_uris:
      - https://app.example.com/callback
  - client_id: spa
    redirect_uris:
      - https://spa.example.com/callback
      - http://localhost:3000/callback
`)

	clients, err := loadClients(path)
	require.NoError(t, err)
	require.Len(t, clients, 2)

	assert.Equal(t, "web", clients[0].ID)
	assert.True(t, clients[0].IsConfidential())
	assert.False(t, clients[1].IsConfidential())
	assert.Equal(t, []string{"https://spa.example.com/callback", "http://localhost:3000/callback"}, clients[1].RedirectURIs)

	store := storage.NewMemoryStorage()
	defer store.Close()
	require.NoError(t, provisionClients(context.Background(), store, clients))

	got, err := store.GetClient(context.Background(), "spa")
	require.NoError(t, err)
	assert.Equal(t, clients[1], *got)
}

func TestLoadClientsInvalid(t *testing.T) {
	tests := map[string]string{
		"missing id":       "clients:\n  - redirect_uris: [https://a.example.com]\n",
		"missing redirect": "clients:\n  - client_id: web\n",
		"duplicate":        "clients:\n  - client_id: web\n    redirect_uris: [https://a.example.com]\n  - client_id: web\n    redirect_uris: [https://b.example.com]\n",
		"not yaml":         "clients: [",
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := loadClients(writeFile(t, "clients.yaml", content))
			assert.Error(t, err)
		})
	}

	_, err := loadClients(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestProvisionClientsUpserts(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	defer store.Close()

	require.NoError(t, provisionClients(ctx, store, []models.Client{{ID: "web", RedirectURIs: []string{"https://a.example.com"}}}))
	require.NoError(t, provisionClients(ctx, store, []models.Client{{ID: "web", Secret: "s", RedirectURIs: []string{"https://b.example.com"}}}))

	got, err := store.GetClient(ctx, "web")
	require.NoError(t, err)
	assert.Equal(t, "s", got.Secret)
	assert.Equal(t, []string{"https://b.example.com"}, got.RedirectURIs)
}

func TestParseConfig(t *testing.T) {
	cfg, err := parseConfig([]string{
		"--jwt-secret", "secret",
		"--storage-mode", "sqlite",
		"--cors-origin", "https://a.example.com",
		"--cors-origin", "https://b.example.com",
		"--redis-db", "2",
	})
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "sqlite", cfg.StorageMode)
	assert.Equal(t, "static", cfg.SecretMode)
	assert.Equal(t, 10, cfg.BcryptCost)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORSOrigins)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, "oauth:", cfg.Redis.Prefix)
}

func TestParseConfigErrors(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := parseConfig(nil)
	assert.Error(t, err, "static mode needs a secret")

	_, err = parseConfig([]string{"--jwt-secret", "s", "--storage-mode", "dynamo"})
	assert.Error(t, err)

	cfg, err := parseConfig([]string{"--secret-mode", "file"})
	require.NoError(t, err)
	assert.Equal(t, "file", cfg.SecretMode)
}

func TestNewSecretStorage(t *testing.T) {
	ctx := context.Background()

	secrets, err := newSecretStorage(&Config{SecretMode: "static", JWTSecret: "abc"}, zap.NewNop())
	require.NoError(t, err)
	got, err := secrets.SigningSecret(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)

	path := writeFile(t, "secret", "from-file\n")
	secrets, err = newSecretStorage(&Config{SecretMode: "file", SecretFile: path}, zap.NewNop())
	require.NoError(t, err)
	got, err = secrets.SigningSecret(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("from-file"), got)

	_, err = newSecretStorage(&Config{SecretMode: "vault"}, zap.NewNop())
	assert.Error(t, err)
}

func TestNewCredentialStorage(t *testing.T) {
	ctx := context.Background()

	store, closer, err := newCredentialStorage(ctx, &Config{StorageMode: "memory"}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &storage.MemoryStorage{}, store)
	assert.NoError(t, closer.Close())

	store, closer, err = newCredentialStorage(ctx, &Config{
		StorageMode: "sqlite",
		SQLitePath:  filepath.Join(t.TempDir(), "oauth.db"),
	}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &storage.SQLStorage{}, store)
	assert.NoError(t, closer.Close())

	_, _, err = newCredentialStorage(ctx, &Config{StorageMode: "dynamo"}, zap.NewNop())
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	logger, err := newLogger("console", "debug")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zap.DebugLevel))

	logger, err = newLogger("json", "warn")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zap.InfoLevel))

	_, err = newLogger("json", "loud")
	assert.Error(t, err)
}
