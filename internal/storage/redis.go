package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Salint/oauth2-system/internal/models"
	"github.com/redis/go-redis/v9"
)

// redeemCodeScript deletes an authorization code and stores the refresh
// token issued for it in one step.
//
// KEYS[1] = code key, KEYS[2] = refresh token key
// ARGV[1] = refresh token JSON, ARGV[2] = refresh token expiry (unix ms)
//
// Returns 1 on success, 0 if the code no longer exists, -1 if the refresh
// token key is taken.
var redeemCodeScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[2]) == 1 then
    return -1
end
if redis.call('DEL', KEYS[1]) == 0 then
    return 0
end
redis.call('SET', KEYS[2], ARGV[1], 'PXAT', ARGV[2])
return 1
`)

// rotateRefreshScript swaps a refresh token for its replacement, but only if
// the stored record is byte-for-byte the one the caller read and checked.
// A concurrent rotation changes or removes the key, so only one caller can
// win.
//
// KEYS[1] = old token key, KEYS[2] = new token key
// ARGV[1] = old record JSON as read, ARGV[2] = new record JSON (empty to
// consume without replacement), ARGV[3] = new expiry (unix ms)
//
// Returns 1 on success, 0 if the old record changed or vanished, -1 if the
// new key is taken.
var rotateRefreshScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) ~= ARGV[1] then
    return 0
end
if ARGV[2] ~= '' and redis.call('EXISTS', KEYS[2]) == 1 then
    return -1
end
redis.call('DEL', KEYS[1])
if ARGV[2] ~= '' then
    redis.call('SET', KEYS[2], ARGV[2], 'PXAT', ARGV[3])
end
return 1
`)

// createUserScript claims the email index and writes the user record.
//
// KEYS[1] = email index key, KEYS[2] = user key
// ARGV[1] = user ID, ARGV[2] = user JSON
//
// Returns 1 on success, 0 if the email or user ID is taken.
var createUserScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[2]) == 1 then
    return 0
end
if redis.call('SETNX', KEYS[1], ARGV[1]) == 0 then
    return 0
end
redis.call('SET', KEYS[2], ARGV[2])
return 1
`)

type RedisStorage struct {
	client *redis.Client
	prefix string
}

func NewRedisStorage(client *redis.Client, prefix string) *RedisStorage {
	return &RedisStorage{
		client: client,
		prefix: prefix,
	}
}

func (r *RedisStorage) clientKey(clientID string) string {
	return fmt.Sprintf("%sclient:%s", r.prefix, clientID)
}

func (r *RedisStorage) userKey(userID string) string {
	return fmt.Sprintf("%suser:%s", r.prefix, userID)
}

func (r *RedisStorage) emailKey(email string) string {
	return fmt.Sprintf("%suser_email:%s", r.prefix, email)
}

func (r *RedisStorage) codeKey(code string) string {
	return fmt.Sprintf("%sauth_code:%s", r.prefix, code)
}

func (r *RedisStorage) refreshKey(token string) string {
	return fmt.Sprintf("%srefresh_token:%s", r.prefix, token)
}

func (r *RedisStorage) GetClient(ctx context.Context, clientID string) (*models.Client, error) {
	var client models.Client
	if _, err := r.getJSON(ctx, r.clientKey(clientID), &client); err != nil {
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	return &client, nil
}

func (r *RedisStorage) SaveClient(ctx context.Context, client *models.Client) error {
	data, err := json.Marshal(client)
	if err != nil {
		return fmt.Errorf("failed to marshal client: %w", err)
	}
	if err := r.client.Set(ctx, r.clientKey(client.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save client: %w", err)
	}
	return nil
}

func (r *RedisStorage) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	if _, err := r.getJSON(ctx, r.userKey(userID), &user); err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

func (r *RedisStorage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	userID, err := r.client.Get(ctx, r.emailKey(email)).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up email: %w", err)
	}
	return r.GetUser(ctx, userID)
}

func (r *RedisStorage) CreateUser(ctx context.Context, user *models.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}

	keys := []string{r.emailKey(user.Email), r.userKey(user.ID)}
	created, err := createUserScript.Run(ctx, r.client, keys, user.ID, data).Int()
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	if created == 0 {
		return ErrAlreadyExists
	}
	return nil
}

func (r *RedisStorage) SaveAuthorizationCode(ctx context.Context, code *models.AuthorizationCode) error {
	data, err := json.Marshal(code)
	if err != nil {
		return fmt.Errorf("failed to marshal authorization code: %w", err)
	}

	ttl := time.Until(code.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("authorization code already expired")
	}

	ok, err := r.client.SetNX(ctx, r.codeKey(code.Code), data, ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to save authorization code: %w", err)
	}
	if !ok {
		return ErrAlreadyExists
	}
	return nil
}

func (r *RedisStorage) GetAuthorizationCode(ctx context.Context, code string) (*models.AuthorizationCode, error) {
	var authCode models.AuthorizationCode
	if _, err := r.getJSON(ctx, r.codeKey(code), &authCode); err != nil {
		return nil, fmt.Errorf("failed to get authorization code: %w", err)
	}
	return &authCode, nil
}

func (r *RedisStorage) RedeemAuthorizationCode(ctx context.Context, code string, refresh *models.RefreshToken) error {
	data, err := json.Marshal(refresh)
	if err != nil {
		return fmt.Errorf("failed to marshal refresh token: %w", err)
	}

	keys := []string{r.codeKey(code), r.refreshKey(refresh.Token)}
	res, err := redeemCodeScript.Run(ctx, r.client, keys, data, refresh.ExpiresAt.UnixMilli()).Int()
	if err != nil {
		return fmt.Errorf("failed to redeem authorization code: %w", err)
	}
	switch res {
	case 0:
		return ErrNotFound
	case -1:
		return ErrAlreadyExists
	}
	return nil
}

func (r *RedisStorage) SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal refresh token: %w", err)
	}

	ttl := time.Until(token.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("refresh token already expired")
	}

	ok, err := r.client.SetNX(ctx, r.refreshKey(token.Token), data, ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to save refresh token: %w", err)
	}
	if !ok {
		return ErrAlreadyExists
	}
	return nil
}

func (r *RedisStorage) RotateRefreshToken(ctx context.Context, token, clientID string, next Rotation) (*models.RefreshToken, error) {
	var old models.RefreshToken
	raw, err := r.getJSON(ctx, r.refreshKey(token), &old)
	if err != nil {
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}
	if old.ClientID != clientID {
		return nil, ErrNotFound
	}

	var replacement []byte
	if next.Reject == nil || !next.Reject(&old) {
		replacement, err = json.Marshal(next.Replacement(&old))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal refresh token: %w", err)
		}
	}

	keys := []string{r.refreshKey(token), r.refreshKey(next.Token)}
	res, err := rotateRefreshScript.Run(ctx, r.client, keys, raw, string(replacement), next.ExpiresAt.UnixMilli()).Int()
	if err != nil {
		return nil, fmt.Errorf("failed to rotate refresh token: %w", err)
	}
	switch res {
	case 0:
		return nil, ErrNotFound
	case -1:
		return nil, ErrAlreadyExists
	}
	return &old, nil
}

// getJSON loads key into v and returns the raw stored value.
func (r *RedisStorage) getJSON(ctx context.Context, key string, v any) (string, error) {
	data, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return "", fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return data, nil
}

var _ CredentialStorage = (*RedisStorage)(nil)
