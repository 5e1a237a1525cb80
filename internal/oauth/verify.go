package oauth

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Verify checks the signature and expiry of an access token. It never
// consults the credential store.
func (s *Service) Verify(ctx context.Context, token string) (err error) {
	ctx, finish := s.inst.StartSpan(ctx, "oauth.Verify")
	defer func() { finish(err) }()

	now := s.now()

	secret, err := s.signingSecret(ctx)
	if err != nil {
		return err
	}

	if _, err := parseAccessToken(secret, token, now); err != nil {
		s.inst.Metrics().RecordTokenVerified(ctx, false)
		s.logger.Debug("access token rejected", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	s.inst.Metrics().RecordTokenVerified(ctx, true)
	return nil
}
