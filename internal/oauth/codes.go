package oauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Salint/oauth2-system/internal/models"
	"github.com/Salint/oauth2-system/internal/storage"
	"go.uber.org/zap"
)

// IssueRequest describes the grant an authorization code is bound to.
type IssueRequest struct {
	ClientID     string
	RedirectURI  string
	User         *models.User
	Scope        string
	Confidential bool

	// Required for public clients, optional for confidential ones. Once
	// supplied the code can only be redeemed with the matching verifier.
	CodeChallenge       string
	CodeChallengeMethod string
}

// IssueCode mints a single-use authorization code for an already validated
// client and authenticated user.
func (s *Service) IssueCode(ctx context.Context, req IssueRequest) (*models.AuthorizationCode, error) {
	return s.issueCode(ctx, req, s.now())
}

func (s *Service) issueCode(ctx context.Context, req IssueRequest, now time.Time) (*models.AuthorizationCode, error) {
	// Requested scopes the user was never allowed are dropped, not refused.
	scope := IntersectScopes(ParseScope(req.Scope), req.User.AllowedScopes)
	if len(scope) == 0 {
		return nil, fmt.Errorf("%w: none of %q granted", ErrUnsupportedScope, FormatScope(ParseScope(req.Scope)))
	}

	code := &models.AuthorizationCode{
		Code:        generateToken(authorizationCodeBytes),
		ClientID:    req.ClientID,
		RedirectURI: req.RedirectURI,
		Scope:       scope,
		UserID:      req.User.ID,
		CreatedAt:   now,
		ExpiresAt:   now.Add(AuthorizationCodeTTL),
	}

	if req.CodeChallenge != "" || req.CodeChallengeMethod != "" || !req.Confidential {
		if req.CodeChallenge == "" || req.CodeChallengeMethod == "" {
			return nil, ErrMissingPKCEParameters
		}
		if !supportedChallengeMethod(req.CodeChallengeMethod) {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedChallengeMethod, req.CodeChallengeMethod)
		}
		code.CodeChallenge = req.CodeChallenge
		code.CodeChallengeMethod = req.CodeChallengeMethod
	}

	if err := s.store.SaveAuthorizationCode(ctx, code); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil, fmt.Errorf("authorization code collision: %w", err)
		}
		return nil, fmt.Errorf("failed to save authorization code: %w", err)
	}

	s.inst.Metrics().RecordCodeIssued(ctx, req.ClientID, req.Confidential)
	s.logger.Debug("authorization code issued",
		zap.String("client_id", req.ClientID),
		zap.String("user_id", req.User.ID),
		zap.String("scope", FormatScope(scope)),
	)

	return code, nil
}
