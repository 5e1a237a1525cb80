package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Salint/oauth2-system/internal/oauth"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

type Server struct {
	oauthService *oauth.Service
	logger       *zap.Logger
}

func NewServer(oauthService *oauth.Service, logger *zap.Logger) *Server {
	return &Server{
		oauthService: oauthService,
		logger:       logger,
	}
}

// ValidateHandler checks an access token
// POST /validate
func (s *Server) ValidateHandler(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Token string `json:"token"`
	}
	if err := decodeJSON(w, r, &request); err != nil {
		writeError(w, codeInvalidToken, "malformed request body", http.StatusUnauthorized)
		return
	}

	token := request.Token
	if token == "" {
		token = bearerToken(r)
	}
	if token == "" {
		writeError(w, codeInvalidToken, "token is required", http.StatusUnauthorized)
		return
	}

	if err := s.oauthService.Verify(r.Context(), token); err != nil {
		writeServiceError(w, s.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"valid": true})
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// decodeJSON reads a JSON request body into v. An empty body leaves v
// untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("%w: invalid JSON body", oauth.ErrInvalidRequest)
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
