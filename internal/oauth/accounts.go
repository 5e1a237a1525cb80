package oauth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/Salint/oauth2-system/internal/models"
	"github.com/Salint/oauth2-system/internal/storage"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// SignupRequest carries the fields of an account creation.
type SignupRequest struct {
	Email       string
	Password    string
	ClientID    string
	RedirectURI string
	Scope       string
}

func (r SignupRequest) validate() error {
	var missing []string
	for name, v := range map[string]string{
		"email":        r.Email,
		"password":     r.Password,
		"client_id":    r.ClientID,
		"redirect_uri": r.RedirectURI,
		"scope":        r.Scope,
	} {
		if v == "" {
			missing = append(missing, name)
		}
	}
	return missingFields(missing)
}

// LoginRequest carries the fields of a password login.
type LoginRequest struct {
	Email               string
	Password            string
	ClientID            string
	RedirectURI         string
	Scope               string
	CodeChallenge       string
	CodeChallengeMethod string
}

func (r LoginRequest) validate() error {
	var missing []string
	for name, v := range map[string]string{
		"email":        r.Email,
		"password":     r.Password,
		"client_id":    r.ClientID,
		"redirect_uri": r.RedirectURI,
		"scope":        r.Scope,
	} {
		if v == "" {
			missing = append(missing, name)
		}
	}
	return missingFields(missing)
}

// CreateAccount registers a user for a confidential client and logs them in,
// returning an authorization code for the new account.
func (s *Service) CreateAccount(ctx context.Context, req SignupRequest) (code *models.AuthorizationCode, err error) {
	ctx, finish := s.inst.StartSpan(ctx, "oauth.CreateAccount", attribute.String("client_id", req.ClientID))
	defer func() { finish(err) }()

	now := s.now()

	if err := req.validate(); err != nil {
		return nil, err
	}

	result, err := s.ValidateClient(ctx, req.ClientID, "", req.RedirectURI)
	if err != nil {
		return nil, err
	}
	if err := result.Err(); err != nil {
		return nil, err
	}
	if !result.Confidential {
		return nil, ErrClientNotConfidential
	}

	if req.Scope != ProfileScope {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScope, req.Scope)
	}

	_, err = s.store.GetUserByEmail(ctx, req.Email)
	if err == nil {
		return nil, ErrAccountExists
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up email: %w", err)
	}

	hash, err := s.hasher.Generate([]byte(req.Password))
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		ID:            uuid.NewString(),
		Email:         req.Email,
		PasswordHash:  hash,
		AllowedScopes: []string{ProfileScope},
		CreatedAt:     now,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		// The email check above races with concurrent signups; the store's
		// uniqueness constraint settles it.
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil, ErrAccountExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.inst.Metrics().RecordAccountCreated(ctx, req.ClientID)
	s.logger.Info("account created", zap.String("user_id", user.ID), zap.String("client_id", req.ClientID))

	return s.issueCode(ctx, IssueRequest{
		ClientID:     req.ClientID,
		RedirectURI:  req.RedirectURI,
		User:         user,
		Scope:        req.Scope,
		Confidential: result.Confidential,
	}, now)
}

// Authenticate checks an email and password. Unknown emails and wrong
// passwords both return ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, storage.ErrNotFound) {
		// Burn a comparison so unknown emails take as long as bad passwords.
		s.hasher.Compare(s.dummyHash(), []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up email: %w", err)
	}

	if err := s.hasher.Compare(user.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// Login authenticates a user on behalf of a client and issues an
// authorization code.
func (s *Service) Login(ctx context.Context, req LoginRequest) (code *models.AuthorizationCode, err error) {
	ctx, finish := s.inst.StartSpan(ctx, "oauth.Login", attribute.String("client_id", req.ClientID))
	defer func() { finish(err) }()

	now := s.now()

	if err := req.validate(); err != nil {
		return nil, err
	}

	result, err := s.ValidateClient(ctx, req.ClientID, "", req.RedirectURI)
	if err != nil {
		return nil, err
	}
	if err := result.Err(); err != nil {
		return nil, err
	}

	if len(IntersectScopes(ParseScope(req.Scope), SupportedScopes)) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScope, req.Scope)
	}

	user, err := s.Authenticate(ctx, req.Email, req.Password)
	s.inst.Metrics().RecordLogin(ctx, req.ClientID, err == nil)
	if err != nil {
		return nil, err
	}

	return s.issueCode(ctx, IssueRequest{
		ClientID:            req.ClientID,
		RedirectURI:         req.RedirectURI,
		User:                user,
		Scope:               req.Scope,
		Confidential:        result.Confidential,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
	}, now)
}

// dummyHash returns a hash of a random password made by this service's
// hasher, generated on first use.
func (s *Service) dummyHash() []byte {
	s.dummyOnce.Do(func() {
		s.dummyPasswordHash, _ = s.hasher.Generate([]byte(generateToken(16)))
	})
	return s.dummyPasswordHash
}

func missingFields(missing []string) error {
	if len(missing) == 0 {
		return nil
	}
	slices.Sort(missing)
	return fmt.Errorf("%w: missing %s", ErrInvalidRequest, strings.Join(missing, ", "))
}
