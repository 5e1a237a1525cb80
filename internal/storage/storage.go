package storage

import (
	"context"
	"errors"
	"time"

	"github.com/Salint/oauth2-system/internal/models"
)

var (
	// ErrNotFound is returned when a record does not exist, or when the
	// precondition of a conditional operation does not hold.
	ErrNotFound = errors.New("record not found")

	// ErrAlreadyExists is returned when an insert collides with a unique key.
	ErrAlreadyExists = errors.New("record already exists")

	// ErrSecretNotFound is returned by secret stores with no current secret.
	ErrSecretNotFound = errors.New("signing secret not found")
)

type ClientStorage interface {
	GetClient(ctx context.Context, clientID string) (*models.Client, error)
	SaveClient(ctx context.Context, client *models.Client) error
}

type UserStorage interface {
	GetUser(ctx context.Context, userID string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	// CreateUser inserts a user, failing with ErrAlreadyExists when the ID or
	// email is taken.
	CreateUser(ctx context.Context, user *models.User) error
}

type CodeStorage interface {
	SaveAuthorizationCode(ctx context.Context, code *models.AuthorizationCode) error
	GetAuthorizationCode(ctx context.Context, code string) (*models.AuthorizationCode, error)
	// RedeemAuthorizationCode deletes the code and inserts the refresh token
	// as one unit. ErrNotFound means the code was already gone and nothing
	// was written.
	RedeemAuthorizationCode(ctx context.Context, code string, refresh *models.RefreshToken) error
}

type RefreshTokenStorage interface {
	SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error
	// RotateRefreshToken deletes token if it belongs to clientID and inserts
	// a replacement carrying the old grant with the value and times of next.
	// It returns the deleted record. ErrNotFound means no record matched.
	RotateRefreshToken(ctx context.Context, token, clientID string, next Rotation) (*models.RefreshToken, error)
}

// Rotation holds the fresh parts of a rotated refresh token.
type Rotation struct {
	Token     string
	CreatedAt time.Time
	ExpiresAt time.Time
	// Reject is consulted with the deleted record before the replacement is
	// written; returning true consumes the old token without replacing it.
	Reject func(old *models.RefreshToken) bool
}

// CredentialStorage is the full set of records owned by the store.
type CredentialStorage interface {
	ClientStorage
	UserStorage
	CodeStorage
	RefreshTokenStorage
}

// SecretStorage returns the current access token signing secret.
type SecretStorage interface {
	SigningSecret(ctx context.Context) ([]byte, error)
}

// Replacement builds the record that replaces old after a rotation.
func (r Rotation) Replacement(old *models.RefreshToken) *models.RefreshToken {
	return &models.RefreshToken{
		Token:     r.Token,
		ClientID:  old.ClientID,
		UserID:    old.UserID,
		Aud:       old.Aud,
		Scope:     old.Scope,
		CreatedAt: r.CreatedAt,
		ExpiresAt: r.ExpiresAt,
	}
}
