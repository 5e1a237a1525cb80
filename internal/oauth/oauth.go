// Package oauth implements the authorization code and refresh token
// lifecycle: client validation, accounts, code issuance, token exchange and
// access token verification.
package oauth

import (
	"net/url"
	"sync"
	"time"

	"github.com/Salint/oauth2-system/internal/instrumentation"
	"github.com/Salint/oauth2-system/internal/storage"
	"go.uber.org/zap"
)

// Service is the credential lifecycle engine. It holds no per-request state;
// every operation re-reads the store.
type Service struct {
	store   storage.CredentialStorage
	secrets storage.SecretStorage
	hasher  Hasher
	logger  *zap.Logger
	inst    *instrumentation.Instrumentation
	now     func() time.Time

	dummyOnce         sync.Once
	dummyPasswordHash []byte
}

// Option configures a Service.
type Option func(*Service)

// WithHasher overrides the default bcrypt hasher.
func WithHasher(h Hasher) Option {
	return func(s *Service) {
		s.hasher = h
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithInstrumentation(inst *instrumentation.Instrumentation) Option {
	return func(s *Service) {
		s.inst = inst
	}
}

// WithClock replaces time.Now. Each operation reads the clock once.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(store storage.CredentialStorage, secrets storage.SecretStorage, opts ...Option) *Service {
	s := &Service{
		store:   store,
		secrets: secrets,
		hasher:  DefaultHasher,
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.inst == nil {
		s.inst = instrumentation.Noop()
	}
	return s
}

// BuildRedirectURL builds the callback URL with code and state
func BuildRedirectURL(redirectURI, code, state string) string {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return redirectURI // fallback
	}

	q := u.Query()
	q.Set("code", code)
	if state != "" {
		q.Set("state", state)
	}
	u.RawQuery = q.Encode()

	return u.String()
}
