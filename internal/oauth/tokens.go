package oauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Salint/oauth2-system/internal/models"
	"github.com/Salint/oauth2-system/internal/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeRefreshToken      = "refresh_token"
)

// TokenRequest is the body of a token endpoint call.
type TokenRequest struct {
	GrantType    string `json:"grant_type"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Code         string `json:"code"`
	CodeVerifier string `json:"code_verifier"`
	RefreshToken string `json:"refresh_token"`
}

// Exchange dispatches a token request on its grant type.
func (s *Service) Exchange(ctx context.Context, req TokenRequest) (*models.TokenResponse, error) {
	switch req.GrantType {
	case GrantTypeAuthorizationCode:
		if req.ClientID == "" || req.Code == "" {
			return nil, fmt.Errorf("%w: client_id and code are required", ErrInvalidRequest)
		}
		return s.ExchangeCode(ctx, req.ClientID, req.ClientSecret, req.Code, req.CodeVerifier)
	case GrantTypeRefreshToken:
		if req.ClientID == "" || req.RefreshToken == "" {
			return nil, fmt.Errorf("%w: client_id and refresh_token are required", ErrInvalidRequest)
		}
		return s.ExchangeRefresh(ctx, req.ClientID, req.RefreshToken)
	case "":
		return nil, fmt.Errorf("%w: grant_type is required", ErrInvalidRequest)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedGrantType, req.GrantType)
}

// ExchangeCode redeems an authorization code for an access token and a
// refresh token. Public clients authenticate with their PKCE verifier in
// place of a secret.
func (s *Service) ExchangeCode(ctx context.Context, clientID, clientSecret, code, codeVerifier string) (resp *models.TokenResponse, err error) {
	ctx, finish := s.inst.StartSpan(ctx, "oauth.ExchangeCode", attribute.String("client_id", clientID))
	defer func() {
		s.inst.Metrics().RecordCodeExchanged(ctx, clientID, err == nil)
		finish(err)
	}()

	now := s.now()

	result, err := s.ValidateClient(ctx, clientID, clientSecret, "")
	if err != nil {
		return nil, err
	}
	if err := result.Err(); err != nil {
		return nil, err
	}
	if result.Confidential && clientSecret == "" {
		return nil, ErrInvalidClientSecret
	}
	if !result.Confidential && codeVerifier == "" {
		return nil, ErrClientNotConfidential
	}

	authCode, err := s.store.GetAuthorizationCode(ctx, code)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrInvalidAuthorizationCode
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get authorization code: %w", err)
	}
	if authCode.ClientID != clientID {
		s.logger.Warn("authorization code presented by another client",
			zap.String("client_id", clientID),
			zap.String("issued_to", authCode.ClientID),
		)
		return nil, ErrInvalidAuthorizationCode
	}
	if authCode.Expired(now) {
		return nil, fmt.Errorf("%w: expired", ErrInvalidAuthorizationCode)
	}
	if authCode.CodeChallenge != "" {
		if err := verifyPKCE(authCode.CodeChallenge, authCode.CodeChallengeMethod, codeVerifier); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidAuthorizationCode, err)
		}
	} else if !result.Confidential {
		// A public client can only authenticate through PKCE.
		return nil, fmt.Errorf("%w: code was issued without a challenge", ErrInvalidAuthorizationCode)
	}

	secret, err := s.signingSecret(ctx)
	if err != nil {
		return nil, err
	}

	accessToken, err := signAccessToken(secret, clientID, authCode.UserID, authCode.RedirectURI, authCode.Scope, now)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	refresh := &models.RefreshToken{
		Token:     generateToken(refreshTokenBytes),
		ClientID:  clientID,
		UserID:    authCode.UserID,
		Aud:       authCode.RedirectURI,
		Scope:     authCode.Scope,
		CreatedAt: now,
		ExpiresAt: now.Add(RefreshTokenTTL),
	}
	if err := s.store.RedeemAuthorizationCode(ctx, code, refresh); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Lost a race with another redemption of the same code.
			s.inst.Metrics().RecordCodeReuse(ctx, clientID)
			s.logger.Warn("authorization code reused", zap.String("client_id", clientID))
			return nil, ErrInvalidAuthorizationCode
		}
		return nil, fmt.Errorf("failed to redeem authorization code: %w", err)
	}

	s.logger.Info("authorization code exchanged",
		zap.String("client_id", clientID),
		zap.String("user_id", authCode.UserID),
	)

	return tokenResponse(accessToken, refresh.Token), nil
}

// ExchangeRefresh rotates a refresh token and mints a new access token for
// the grant it carried.
func (s *Service) ExchangeRefresh(ctx context.Context, clientID, refreshToken string) (resp *models.TokenResponse, err error) {
	ctx, finish := s.inst.StartSpan(ctx, "oauth.ExchangeRefresh", attribute.String("client_id", clientID))
	defer func() {
		s.inst.Metrics().RecordTokenRefreshed(ctx, clientID, err == nil)
		finish(err)
	}()

	now := s.now()

	// Load the secret before rotating so a secret outage cannot burn the
	// caller's refresh token.
	secret, err := s.signingSecret(ctx)
	if err != nil {
		return nil, err
	}

	next := generateToken(refreshTokenBytes)
	expired := false
	old, err := s.store.RotateRefreshToken(ctx, refreshToken, clientID, storage.Rotation{
		Token:     next,
		CreatedAt: now,
		ExpiresAt: now.Add(RefreshTokenTTL),
		Reject: func(old *models.RefreshToken) bool {
			expired = old.Expired(now)
			return expired
		},
	})
	if errors.Is(err, storage.ErrNotFound) {
		s.inst.Metrics().RecordTokenReuse(ctx, clientID)
		s.logger.Warn("unknown or reused refresh token", zap.String("client_id", clientID))
		return nil, ErrInvalidRefreshToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to rotate refresh token: %w", err)
	}
	if expired {
		return nil, fmt.Errorf("%w: expired", ErrInvalidRefreshToken)
	}

	accessToken, err := signAccessToken(secret, clientID, old.UserID, old.Aud, old.Scope, now)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	s.logger.Info("refresh token rotated",
		zap.String("client_id", clientID),
		zap.String("user_id", old.UserID),
	)

	return tokenResponse(accessToken, next), nil
}

func tokenResponse(accessToken, refreshToken string) *models.TokenResponse {
	return &models.TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    TokenTypeBearer,
		ExpiresIn:    int64(AccessTokenTTL / time.Second),
	}
}

// signingSecret loads the current secret, folding every failure into
// ErrSecretUnavailable.
func (s *Service) signingSecret(ctx context.Context) ([]byte, error) {
	secret, err := s.secrets.SigningSecret(ctx)
	if err != nil {
		if !errors.Is(err, storage.ErrSecretNotFound) {
			s.logger.Error("failed to load signing secret", zap.Error(err))
		}
		return nil, fmt.Errorf("%w: %v", ErrSecretUnavailable, err)
	}
	if len(secret) == 0 {
		return nil, ErrSecretUnavailable
	}
	return secret, nil
}
