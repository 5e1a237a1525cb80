package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/Salint/oauth2-system/internal/api"
	"github.com/Salint/oauth2-system/internal/models"
	"github.com/Salint/oauth2-system/internal/oauth"
	"github.com/Salint/oauth2-system/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"
)

const (
	clientID     = "web"
	clientSecret = "web-secret"
	redirectURI  = "https://app.example.com/callback"
	spaClientID  = "spa"
	spaRedirect  = "https://spa.example.com/callback"
	email        = "ada@example.com"
	password     = "correct horse battery staple"
)

func newHandler(t *testing.T, secrets storage.SecretStorage) http.Handler {
	t.Helper()

	store := storage.NewMemoryStorage()
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	require.NoError(t, store.SaveClient(ctx, &models.Client{ID: clientID, Secret: clientSecret, RedirectURIs: []string{redirectURI}}))
	require.NoError(t, store.SaveClient(ctx, &models.Client{ID: spaClientID, RedirectURIs: []string{spaRedirect}}))

	logger := zaptest.NewLogger(t)
	svc := oauth.NewService(store, secrets,
		oauth.WithHasher(oauth.BcryptHasher{Cost: bcrypt.MinCost}),
		oauth.WithLogger(logger),
	)

	mux := http.NewServeMux()
	api.Routes(mux, api.NewServer(svc, logger), api.NewOAuthAPIHandlers(svc, logger))
	return api.LoggingMiddleware(logger, api.CORSMiddleware([]string{"https://app.example.com"}, mux))
}

func do(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func authorizeQuery(id, redirect string) string {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", id)
	q.Set("redirect_uri", redirect)
	q.Set("scope", "profile")
	q.Set("state", "xyz")
	return q.Encode()
}

func signup(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/signup?"+authorizeQuery(clientID, redirectURI), map[string]string{
		"email":    email,
		"password": password,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	body := decode(t, rec)
	code, _ := body["authorization_code"].(string)
	require.NotEmpty(t, code)
	assert.Equal(t, redirectURI+"?code="+code+"&state=xyz", body["redirect_url"])
	return code
}

func exchange(t *testing.T, h http.Handler, code string) map[string]any {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/token", map[string]string{
		"grant_type":    "authorization_code",
		"client_id":     clientID,
		"client_secret": clientSecret,
		"code":          code,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	return decode(t, rec)
}

func TestFullFlow(t *testing.T) {
	h := newHandler(t, storage.StaticSecretStorage("secret"))

	tokens := exchange(t, h, signup(t, h))
	assert.Equal(t, "Bearer", tokens["token_type"])
	assert.EqualValues(t, 600, tokens["expires_in"])

	rec := do(t, h, http.MethodPost, "/validate", map[string]any{"token": tokens["access_token"]})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["valid"])

	rec = do(t, h, http.MethodPost, "/token", map[string]any{
		"grant_type":    "refresh_token",
		"client_id":     clientID,
		"refresh_token": tokens["refresh_token"],
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEqual(t, tokens["refresh_token"], decode(t, rec)["refresh_token"])

	rec = do(t, h, http.MethodPost, "/token", map[string]any{
		"grant_type":    "refresh_token",
		"client_id":     clientID,
		"refresh_token": tokens["refresh_token"],
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_grant", decode(t, rec)["error"])
}

func TestSignupErrors(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		body       map[string]string
		wantStatus int
		wantCode   string
	}{
		{"missing password", authorizeQuery(clientID, redirectURI), map[string]string{"email": email}, http.StatusBadRequest, "invalid_request"},
		{"unknown client", authorizeQuery("ghost", redirectURI), map[string]string{"email": email, "password": password}, http.StatusBadRequest, "invalid_client"},
		{"public client", authorizeQuery(spaClientID, spaRedirect), map[string]string{"email": email, "password": password}, http.StatusBadRequest, "invalid_client"},
		{"bad redirect", authorizeQuery(clientID, spaRedirect), map[string]string{"email": email, "password": password}, http.StatusBadRequest, "invalid_request"},
		{"bad response type", strings.Replace(authorizeQuery(clientID, redirectURI), "response_type=code", "response_type=token", 1), map[string]string{"email": email, "password": password}, http.StatusBadRequest, "unsupported_response_type"},
		{"bad scope", strings.Replace(authorizeQuery(clientID, redirectURI), "scope=profile", "scope=admin", 1), map[string]string{"email": email, "password": password}, http.StatusForbidden, "invalid_scope"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHandler(t, storage.StaticSecretStorage("secret"))
			rec := do(t, h, http.MethodPost, "/signup?"+tt.query, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())

			body := decode(t, rec)
			assert.Equal(t, tt.wantCode, body["error"])
			assert.NotEmpty(t, body["error_description"])
		})
	}
}

func TestSignupConflict(t *testing.T) {
	h := newHandler(t, storage.StaticSecretStorage("secret"))
	signup(t, h)

	rec := do(t, h, http.MethodPost, "/signup?"+authorizeQuery(clientID, redirectURI), map[string]string{
		"email":    email,
		"password": "other",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "account_exists", decode(t, rec)["error"])
}

func TestSignupParametersFromBody(t *testing.T) {
	h := newHandler(t, storage.StaticSecretStorage("secret"))

	rec := do(t, h, http.MethodPost, "/signup", map[string]string{
		"email":        email,
		"password":     password,
		"client_id":    clientID,
		"redirect_uri": redirectURI,
		"scope":        "profile",
	})
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestLogin(t *testing.T) {
	h := newHandler(t, storage.StaticSecretStorage("secret"))
	signup(t, h)

	rec := do(t, h, http.MethodPost, "/login?"+authorizeQuery(clientID, redirectURI), map[string]string{
		"email":    email,
		"password": password,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	exchange(t, h, decode(t, rec)["authorization_code"].(string))

	rec = do(t, h, http.MethodPost, "/login?"+authorizeQuery(clientID, redirectURI), map[string]string{
		"email":    email,
		"password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "access_denied", decode(t, rec)["error"])

	rec = do(t, h, http.MethodPost, "/login?"+authorizeQuery(spaClientID, spaRedirect), map[string]string{
		"email":    email,
		"password": password,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", decode(t, rec)["error"])
}

func TestPublicClientFlow(t *testing.T) {
	h := newHandler(t, storage.StaticSecretStorage("secret"))
	signup(t, h)

	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	query := authorizeQuery(spaClientID, spaRedirect) + "&code_challenge=" + oauth.S256Challenge(verifier) + "&code_challenge_method=S256"

	rec := do(t, h, http.MethodPost, "/login?"+query, map[string]string{
		"email":    email,
		"password": password,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	code := decode(t, rec)["authorization_code"].(string)

	rec = do(t, h, http.MethodPost, "/token", map[string]string{
		"grant_type":    "authorization_code",
		"client_id":     spaClientID,
		"code":          code,
		"code_verifier": verifier,
	})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestTokenErrors(t *testing.T) {
	h := newHandler(t, storage.StaticSecretStorage("secret"))
	code := signup(t, h)

	tests := []struct {
		name       string
		body       map[string]string
		wantStatus int
		wantCode   string
	}{
		{"unsupported grant", map[string]string{"grant_type": "password", "client_id": clientID}, http.StatusBadRequest, "unsupported_grant_type"},
		{"missing code", map[string]string{"grant_type": "authorization_code", "client_id": clientID}, http.StatusBadRequest, "invalid_request"},
		{"missing refresh token", map[string]string{"grant_type": "refresh_token", "client_id": clientID}, http.StatusBadRequest, "invalid_request"},
		{"wrong secret", map[string]string{"grant_type": "authorization_code", "client_id": clientID, "client_secret": "nope", "code": code}, http.StatusForbidden, "invalid_client"},
		{"unknown client", map[string]string{"grant_type": "authorization_code", "client_id": "ghost", "code": code}, http.StatusBadRequest, "invalid_client"},
		{"public client without verifier", map[string]string{"grant_type": "authorization_code", "client_id": spaClientID, "code": code}, http.StatusBadRequest, "invalid_client"},
		{"unknown code", map[string]string{"grant_type": "authorization_code", "client_id": clientID, "client_secret": clientSecret, "code": "nope"}, http.StatusBadRequest, "invalid_grant"},
		{"unknown refresh token", map[string]string{"grant_type": "refresh_token", "client_id": clientID, "refresh_token": "nope"}, http.StatusUnauthorized, "invalid_grant"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/token", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantCode, decode(t, rec)["error"])
		})
	}

	// None of the failures consumed the code.
	exchange(t, h, code)
}

func TestTokenFormEncodedWithBasicAuth(t *testing.T) {
	h := newHandler(t, storage.StaticSecretStorage("secret"))
	code := signup(t, h)

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)

	req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(clientID, clientSecret)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestTokenSecretUnavailable(t *testing.T) {
	h := newHandler(t, storage.StaticSecretStorage(nil))
	code := signup(t, h)

	rec := do(t, h, http.MethodPost, "/token", map[string]string{
		"grant_type":    "authorization_code",
		"client_id":     clientID,
		"client_secret": clientSecret,
		"code":          code,
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "server_error", body["error"])
	assert.Equal(t, "internal server error", body["error_description"])
}

func TestValidate(t *testing.T) {
	h := newHandler(t, storage.StaticSecretStorage("secret"))
	tokens := exchange(t, h, signup(t, h))

	req := httptest.NewRequest(http.MethodPost, "/validate", nil)
	req.Header.Set("Authorization", "Bearer "+tokens["access_token"].(string))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/validate", map[string]string{"token": "garbage"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_token", decode(t, rec)["error"])
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "invalid_token")

	broken := newHandler(t, storage.StaticSecretStorage(nil))
	rec = do(t, broken, http.MethodPost, "/validate", map[string]any{"token": tokens["access_token"]})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestValidateMissingToken(t *testing.T) {
	h := newHandler(t, storage.StaticSecretStorage("secret"))
	broken := newHandler(t, storage.StaticSecretStorage(nil))

	tests := []struct {
		name    string
		handler http.Handler
		body    string
	}{
		{"empty body", h, ""},
		{"empty object", h, "{}"},
		{"empty token", h, `{"token":""}`},
		{"malformed body", h, `{"token":`},
		{"missing token without a secret", broken, "{}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/validate", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			tt.handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code, rec.Body.String())
			assert.Equal(t, "invalid_token", decode(t, rec)["error"])
			assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "invalid_token")
		})
	}
}

func TestHealth(t *testing.T) {
	h := newHandler(t, storage.StaticSecretStorage("secret"))

	rec := do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode(t, rec)["status"])

	rec = do(t, h, http.MethodPost, "/health", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCORS(t *testing.T) {
	h := newHandler(t, storage.StaticSecretStorage("secret"))

	req := httptest.NewRequest(http.MethodOptions, "/token", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
