package oauth

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Salint/oauth2-system/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// taggedHasher prefixes every hash with its tag and records what it was
// asked to compare.
type taggedHasher struct {
	tag string

	mu       sync.Mutex
	compared [][]byte
}

func (h *taggedHasher) Generate(password []byte) ([]byte, error) {
	return append([]byte(h.tag+":"), password...), nil
}

func (h *taggedHasher) Compare(hashedPassword, password []byte) error {
	h.mu.Lock()
	h.compared = append(h.compared, hashedPassword)
	h.mu.Unlock()

	if !bytes.Equal(hashedPassword, append([]byte(h.tag+":"), password...)) {
		return errors.New("mismatch")
	}
	return nil
}

func TestAuthenticateUnknownEmailUsesOwnHasher(t *testing.T) {
	store := storage.NewMemoryStorage()
	defer store.Close()

	first := &taggedHasher{tag: "first"}
	second := &taggedHasher{tag: "second"}
	svcFirst := NewService(store, storage.StaticSecretStorage("s"), WithHasher(first))
	svcSecond := NewService(store, storage.StaticSecretStorage("s"), WithHasher(second))

	ctx := context.Background()
	_, err := svcFirst.Authenticate(ctx, "nobody@example.com", "pw")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svcSecond.Authenticate(ctx, "nobody@example.com", "pw")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svcSecond.Authenticate(ctx, "other@example.com", "pw")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	require.Len(t, first.compared, 1)
	assert.True(t, bytes.HasPrefix(first.compared[0], []byte("first:")))

	require.Len(t, second.compared, 2)
	for _, hash := range second.compared {
		assert.True(t, bytes.HasPrefix(hash, []byte("second:")), "compared against %q", hash)
	}
	assert.Equal(t, second.compared[0], second.compared[1], "dummy hash is generated once per service")
}
