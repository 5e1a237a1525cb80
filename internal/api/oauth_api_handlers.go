package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/Salint/oauth2-system/internal/models"
	"github.com/Salint/oauth2-system/internal/oauth"
	"go.uber.org/zap"
)

type OAuthAPIHandlers struct {
	oauthService *oauth.Service
	logger       *zap.Logger
}

func NewOAuthAPIHandlers(oauthService *oauth.Service, logger *zap.Logger) *OAuthAPIHandlers {
	return &OAuthAPIHandlers{
		oauthService: oauthService,
		logger:       logger,
	}
}

// authorizeRequest holds the parameters shared by signup and login. OAuth
// parameters in the query string take precedence over the JSON body;
// credentials only come from the body.
type authorizeRequest struct {
	Email               string `json:"email"`
	Password            string `json:"password"`
	ResponseType        string `json:"response_type"`
	ClientID            string `json:"client_id"`
	RedirectURI         string `json:"redirect_uri"`
	Scope               string `json:"scope"`
	State               string `json:"state"`
	CodeChallenge       string `json:"code_challenge"`
	CodeChallengeMethod string `json:"code_challenge_method"`
}

func parseAuthorizeRequest(w http.ResponseWriter, r *http.Request) (*authorizeRequest, error) {
	var request authorizeRequest
	if err := decodeJSON(w, r, &request); err != nil {
		return nil, err
	}

	query := r.URL.Query()
	for name, field := range map[string]*string{
		"response_type":         &request.ResponseType,
		"client_id":             &request.ClientID,
		"redirect_uri":          &request.RedirectURI,
		"scope":                 &request.Scope,
		"state":                 &request.State,
		"code_challenge":        &request.CodeChallenge,
		"code_challenge_method": &request.CodeChallengeMethod,
	} {
		if v := query.Get(name); v != "" {
			*field = v
		}
	}

	if request.ResponseType != "" && request.ResponseType != "code" {
		return nil, fmt.Errorf("%w: %s", oauth.ErrUnsupportedResponseType, request.ResponseType)
	}
	return &request, nil
}

// codeResponse is returned by signup and login. redirect_url is the
// client's callback with code and state attached.
type codeResponse struct {
	AuthorizationCode string `json:"authorization_code"`
	RedirectURL       string `json:"redirect_url"`
}

func newCodeResponse(code *models.AuthorizationCode, state string) codeResponse {
	return codeResponse{
		AuthorizationCode: code.Code,
		RedirectURL:       oauth.BuildRedirectURL(code.RedirectURI, code.Code, state),
	}
}

// SignupHandler creates an account and returns its first authorization code
// POST /signup
func (oh *OAuthAPIHandlers) SignupHandler(w http.ResponseWriter, r *http.Request) {
	request, err := parseAuthorizeRequest(w, r)
	if err != nil {
		writeServiceError(w, oh.logger, err)
		return
	}

	code, err := oh.oauthService.CreateAccount(r.Context(), oauth.SignupRequest{
		Email:       request.Email,
		Password:    request.Password,
		ClientID:    request.ClientID,
		RedirectURI: request.RedirectURI,
		Scope:       request.Scope,
	})
	if err != nil {
		writeServiceError(w, oh.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, newCodeResponse(code, request.State))
}

// LoginHandler authenticates a user and returns an authorization code
// POST /login
func (oh *OAuthAPIHandlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	request, err := parseAuthorizeRequest(w, r)
	if err != nil {
		writeServiceError(w, oh.logger, err)
		return
	}

	code, err := oh.oauthService.Login(r.Context(), oauth.LoginRequest{
		Email:               request.Email,
		Password:            request.Password,
		ClientID:            request.ClientID,
		RedirectURI:         request.RedirectURI,
		Scope:               request.Scope,
		CodeChallenge:       request.CodeChallenge,
		CodeChallengeMethod: request.CodeChallengeMethod,
	})
	if err != nil {
		writeServiceError(w, oh.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, newCodeResponse(code, request.State))
}

// TokenHandler exchanges an authorization code or refresh token
// POST /token
func (oh *OAuthAPIHandlers) TokenHandler(w http.ResponseWriter, r *http.Request) {
	var request oauth.TokenRequest

	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := r.ParseForm(); err != nil {
			writeError(w, codeInvalidRequest, "invalid form body", http.StatusBadRequest)
			return
		}
		request = oauth.TokenRequest{
			GrantType:    r.PostForm.Get("grant_type"),
			ClientID:     r.PostForm.Get("client_id"),
			ClientSecret: r.PostForm.Get("client_secret"),
			Code:         r.PostForm.Get("code"),
			CodeVerifier: r.PostForm.Get("code_verifier"),
			RefreshToken: r.PostForm.Get("refresh_token"),
		}
	} else if err := decodeJSON(w, r, &request); err != nil {
		writeServiceError(w, oh.logger, err)
		return
	}

	// client_secret_basic
	if id, secret, ok := r.BasicAuth(); ok && request.ClientID == "" {
		request.ClientID = id
		request.ClientSecret = secret
	}

	resp, err := oh.oauthService.Exchange(r.Context(), request)
	if err != nil {
		writeServiceError(w, oh.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
