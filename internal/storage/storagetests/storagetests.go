// Package storagetests provides common acceptance tests for
// storage.CredentialStorage implementations.
package storagetests

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Salint/oauth2-system/internal/models"
	"github.com/Salint/oauth2-system/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCode(value string, now time.Time) *models.AuthorizationCode {
	return &models.AuthorizationCode{
		Code:        value,
		ClientID:    "c1",
		RedirectURI: "https://app/cb",
		Scope:       []string{"profile"},
		UserID:      "u1",
		CreatedAt:   now,
		ExpiresAt:   now.Add(5 * time.Minute),
	}
}

func newRefresh(value string, now time.Time) *models.RefreshToken {
	return &models.RefreshToken{
		Token:     value,
		ClientID:  "c1",
		UserID:    "u1",
		Aud:       "https://app/cb",
		Scope:     []string{"profile"},
		CreatedAt: now,
		ExpiresAt: now.Add(30 * 24 * time.Hour),
	}
}

func rotation(value string, now time.Time) storage.Rotation {
	return storage.Rotation{
		Token:     value,
		CreatedAt: now,
		ExpiresAt: now.Add(30 * 24 * time.Hour),
	}
}

func Run(t *testing.T, newStore func() storage.CredentialStorage) {
	ctx := context.Background()

	t.Run("TestClientRoundTrip", func(t *testing.T) {
		store := newStore()

		client := &models.Client{ID: "c1", Secret: "s3cret", RedirectURIs: []string{"https://app/cb"}}
		require.NoError(t, store.SaveClient(ctx, client))

		got, err := store.GetClient(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, client, got)

		client.RedirectURIs = append(client.RedirectURIs, "https://app/other")
		require.NoError(t, store.SaveClient(ctx, client), "saving an existing client should update it")
		got, err = store.GetClient(ctx, "c1")
		require.NoError(t, err)
		assert.Len(t, got.RedirectURIs, 2)

		_, err = store.GetClient(ctx, "missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("TestCreateUser", func(t *testing.T) {
		store := newStore()
		now := time.Now().UTC().Truncate(time.Millisecond)

		user := &models.User{
			ID:            "u1",
			Email:         "a@b.com",
			PasswordHash:  []byte("hash"),
			AllowedScopes: []string{"profile"},
			CreatedAt:     now,
		}
		require.NoError(t, store.CreateUser(ctx, user))

		byEmail, err := store.GetUserByEmail(ctx, "a@b.com")
		require.NoError(t, err)
		assert.Equal(t, "u1", byEmail.ID)
		assert.Equal(t, []string{"profile"}, byEmail.AllowedScopes)
		assert.Equal(t, []byte("hash"), byEmail.PasswordHash)
		assert.True(t, now.Equal(byEmail.CreatedAt))

		byID, err := store.GetUser(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "a@b.com", byID.Email)

		_, err = store.GetUserByEmail(ctx, "nobody@b.com")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("TestCreateUserDuplicateEmail", func(t *testing.T) {
		store := newStore()

		first := &models.User{ID: "u1", Email: "a@b.com", PasswordHash: []byte("x"), AllowedScopes: []string{"profile"}}
		second := &models.User{ID: "u2", Email: "a@b.com", PasswordHash: []byte("y"), AllowedScopes: []string{"profile"}}

		require.NoError(t, store.CreateUser(ctx, first))
		assert.ErrorIs(t, store.CreateUser(ctx, second), storage.ErrAlreadyExists)

		_, err := store.GetUser(ctx, "u2")
		assert.ErrorIs(t, err, storage.ErrNotFound, "losing insert must not leave a user behind")
	})

	t.Run("TestCreateUserConcurrentSameEmail", func(t *testing.T) {
		store := newStore()

		var (
			wg        sync.WaitGroup
			successes atomic.Int32
		)
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				err := store.CreateUser(ctx, &models.User{
					ID:            fmt.Sprintf("u%d", i),
					Email:         "race@b.com",
					PasswordHash:  []byte("x"),
					AllowedScopes: []string{"profile"},
				})
				if err == nil {
					successes.Add(1)
				}
			}(i)
		}
		wg.Wait()
		assert.Equal(t, int32(1), successes.Load())
	})

	t.Run("TestAuthorizationCodeRoundTrip", func(t *testing.T) {
		store := newStore()
		now := time.Now().UTC().Truncate(time.Millisecond)

		code := newCode("code-1", now)
		code.CodeChallenge = "challenge"
		code.CodeChallengeMethod = "S256"
		require.NoError(t, store.SaveAuthorizationCode(ctx, code))

		got, err := store.GetAuthorizationCode(ctx, "code-1")
		require.NoError(t, err)
		assert.Equal(t, code.ClientID, got.ClientID)
		assert.Equal(t, code.RedirectURI, got.RedirectURI)
		assert.Equal(t, code.Scope, got.Scope)
		assert.Equal(t, code.UserID, got.UserID)
		assert.Equal(t, "challenge", got.CodeChallenge)
		assert.Equal(t, "S256", got.CodeChallengeMethod)
		assert.True(t, code.ExpiresAt.Equal(got.ExpiresAt))

		_, err = store.GetAuthorizationCode(ctx, "missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("TestRedeemAuthorizationCodeOnce", func(t *testing.T) {
		store := newStore()
		now := time.Now().UTC()

		require.NoError(t, store.SaveAuthorizationCode(ctx, newCode("code-1", now)))

		require.NoError(t, store.RedeemAuthorizationCode(ctx, "code-1", newRefresh("rt-1", now)))
		err := store.RedeemAuthorizationCode(ctx, "code-1", newRefresh("rt-2", now))
		assert.ErrorIs(t, err, storage.ErrNotFound)

		_, err = store.GetAuthorizationCode(ctx, "code-1")
		assert.ErrorIs(t, err, storage.ErrNotFound)

		// Only the first redemption produced a usable refresh token.
		_, err = store.RotateRefreshToken(ctx, "rt-2", "c1", rotation("rt-3", now))
		assert.ErrorIs(t, err, storage.ErrNotFound)
		_, err = store.RotateRefreshToken(ctx, "rt-1", "c1", rotation("rt-4", now))
		assert.NoError(t, err)
	})

	t.Run("TestRedeemAuthorizationCodeConcurrent", func(t *testing.T) {
		store := newStore()
		now := time.Now().UTC()

		require.NoError(t, store.SaveAuthorizationCode(ctx, newCode("code-1", now)))

		var (
			wg        sync.WaitGroup
			successes atomic.Int32
		)
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				err := store.RedeemAuthorizationCode(ctx, "code-1", newRefresh(fmt.Sprintf("rt-%d", i), now))
				if err == nil {
					successes.Add(1)
				} else {
					assert.ErrorIs(t, err, storage.ErrNotFound)
				}
			}(i)
		}
		wg.Wait()
		assert.Equal(t, int32(1), successes.Load())
	})

	t.Run("TestRotateRefreshToken", func(t *testing.T) {
		store := newStore()
		now := time.Now().UTC().Truncate(time.Millisecond)

		require.NoError(t, store.SaveRefreshToken(ctx, newRefresh("rt-1", now)))

		_, err := store.RotateRefreshToken(ctx, "rt-1", "other-client", rotation("rt-2", now))
		assert.ErrorIs(t, err, storage.ErrNotFound, "wrong client must not match")

		old, err := store.RotateRefreshToken(ctx, "rt-1", "c1", rotation("rt-2", now))
		require.NoError(t, err)
		assert.Equal(t, "rt-1", old.Token)
		assert.Equal(t, "u1", old.UserID)
		assert.Equal(t, "https://app/cb", old.Aud)
		assert.Equal(t, []string{"profile"}, old.Scope)

		_, err = store.RotateRefreshToken(ctx, "rt-1", "c1", rotation("rt-3", now))
		assert.ErrorIs(t, err, storage.ErrNotFound, "rotated token must not be redeemable")

		replaced, err := store.RotateRefreshToken(ctx, "rt-2", "c1", rotation("rt-3", now))
		require.NoError(t, err)
		assert.Equal(t, "rt-2", replaced.Token)
		assert.Equal(t, "u1", replaced.UserID, "replacement carries the grant forward")
		assert.Equal(t, []string{"profile"}, replaced.Scope)
	})

	t.Run("TestRotateRefreshTokenRejected", func(t *testing.T) {
		store := newStore()
		now := time.Now().UTC()

		require.NoError(t, store.SaveRefreshToken(ctx, newRefresh("rt-1", now)))

		next := rotation("rt-2", now)
		next.Reject = func(*models.RefreshToken) bool { return true }
		old, err := store.RotateRefreshToken(ctx, "rt-1", "c1", next)
		require.NoError(t, err)
		assert.Equal(t, "rt-1", old.Token)

		_, err = store.RotateRefreshToken(ctx, "rt-1", "c1", rotation("rt-3", now))
		assert.ErrorIs(t, err, storage.ErrNotFound)
		_, err = store.RotateRefreshToken(ctx, "rt-2", "c1", rotation("rt-3", now))
		assert.ErrorIs(t, err, storage.ErrNotFound, "rejected rotation must not write a replacement")
	})

	t.Run("TestRotateRefreshTokenConcurrent", func(t *testing.T) {
		store := newStore()
		now := time.Now().UTC()

		require.NoError(t, store.SaveRefreshToken(ctx, newRefresh("rt-1", now)))

		var (
			wg        sync.WaitGroup
			successes atomic.Int32
		)
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := store.RotateRefreshToken(ctx, "rt-1", "c1", rotation(fmt.Sprintf("rt-next-%d", i), now))
				if err == nil {
					successes.Add(1)
				} else {
					assert.ErrorIs(t, err, storage.ErrNotFound)
				}
			}(i)
		}
		wg.Wait()
		assert.Equal(t, int32(1), successes.Load())
	})
}
