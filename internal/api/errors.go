package api

import (
	"errors"
	"net/http"

	"github.com/Salint/oauth2-system/internal/oauth"
	"go.uber.org/zap"
)

// OAuth error codes used in error bodies.
const (
	codeInvalidRequest          = "invalid_request"
	codeInvalidClient           = "invalid_client"
	codeInvalidGrant            = "invalid_grant"
	codeInvalidScope            = "invalid_scope"
	codeUnsupportedGrantType    = "unsupported_grant_type"
	codeUnsupportedResponseType = "unsupported_response_type"
	codeAccessDenied            = "access_denied"
	codeAccountExists           = "account_exists"
	codeInvalidToken            = "invalid_token"
	codeServerError             = "server_error"
)

type errorMapping struct {
	err    error
	status int
	code   string
}

// errorMappings is checked in order with errors.Is. Anything unmatched is a
// dependency failure.
var errorMappings = []errorMapping{
	{oauth.ErrInvalidRequest, http.StatusBadRequest, codeInvalidRequest},
	{oauth.ErrUnsupportedResponseType, http.StatusBadRequest, codeUnsupportedResponseType},
	{oauth.ErrUnsupportedGrantType, http.StatusBadRequest, codeUnsupportedGrantType},
	{oauth.ErrMissingPKCEParameters, http.StatusBadRequest, codeInvalidRequest},
	{oauth.ErrUnsupportedChallengeMethod, http.StatusBadRequest, codeInvalidRequest},
	{oauth.ErrInvalidRedirectURI, http.StatusBadRequest, codeInvalidRequest},
	{oauth.ErrClientNotFound, http.StatusBadRequest, codeInvalidClient},
	{oauth.ErrClientNotConfidential, http.StatusBadRequest, codeInvalidClient},
	{oauth.ErrInvalidClientSecret, http.StatusForbidden, codeInvalidClient},
	{oauth.ErrUnsupportedScope, http.StatusForbidden, codeInvalidScope},
	{oauth.ErrAccountExists, http.StatusConflict, codeAccountExists},
	{oauth.ErrInvalidCredentials, http.StatusUnauthorized, codeAccessDenied},
	{oauth.ErrInvalidAuthorizationCode, http.StatusBadRequest, codeInvalidGrant},
	{oauth.ErrInvalidRefreshToken, http.StatusUnauthorized, codeInvalidGrant},
	{oauth.ErrInvalidToken, http.StatusUnauthorized, codeInvalidToken},
}

// writeServiceError maps a service error onto its status and OAuth code.
// Unmapped errors are logged and hidden behind a generic 500.
func writeServiceError(w http.ResponseWriter, logger *zap.Logger, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			writeError(w, m.code, err.Error(), m.status)
			return
		}
	}

	logger.Error("request failed", zap.Error(err))
	writeError(w, codeServerError, "internal server error", http.StatusInternalServerError)
}

func writeError(w http.ResponseWriter, code, description string, status int) {
	if code == codeInvalidToken {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	}
	writeJSON(w, status, map[string]string{
		"error":             code,
		"error_description": description,
	})
}
