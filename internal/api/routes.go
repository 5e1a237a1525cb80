package api

import "net/http"

// Routes registers every endpoint on mux.
func Routes(mux *http.ServeMux, server *Server, oauthHandlers *OAuthAPIHandlers) {
	mux.HandleFunc("POST /signup", oauthHandlers.SignupHandler)
	mux.HandleFunc("POST /login", oauthHandlers.LoginHandler)
	mux.HandleFunc("POST /token", oauthHandlers.TokenHandler)
	mux.HandleFunc("POST /validate", server.ValidateHandler)
	mux.HandleFunc("GET /health", server.HealthHandler)
}
