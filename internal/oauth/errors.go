package oauth

import "errors"

// Input validation errors.
var (
	ErrInvalidRequest             = errors.New("invalid request")
	ErrUnsupportedResponseType    = errors.New("unsupported response_type")
	ErrUnsupportedGrantType       = errors.New("unsupported grant_type")
	ErrUnsupportedScope           = errors.New("unsupported scope")
	ErrMissingPKCEParameters      = errors.New("missing code_challenge or code_challenge_method")
	ErrUnsupportedChallengeMethod = errors.New("unsupported code_challenge_method")
)

// Client errors.
var (
	ErrClientNotFound        = errors.New("client not found")
	ErrInvalidClientSecret   = errors.New("invalid client secret")
	ErrInvalidRedirectURI    = errors.New("invalid redirect_uri")
	ErrClientNotConfidential = errors.New("client does not have a secret")
)

// Account and credential state errors.
var (
	ErrAccountExists            = errors.New("account already exists")
	ErrInvalidCredentials       = errors.New("invalid email or password")
	ErrInvalidAuthorizationCode = errors.New("invalid authorization code")
	ErrInvalidRefreshToken      = errors.New("invalid refresh token")
	ErrInvalidToken             = errors.New("invalid access token")
)

// ErrSecretUnavailable means the signing secret could not be loaded.
var ErrSecretUnavailable = errors.New("signing secret unavailable")
