package router

import (
	"net/http"

	mw "github.com/dropDatabas3/keygate/internal/http/middlewares"
)

// oauthHandler envuelve un endpoint del protocolo con el rate limiter.
func oauthHandler(deps Deps, h http.HandlerFunc) http.Handler {
	return mw.Chain(h, mw.WithRateLimit(deps.Limiter, mw.IPPathRateKey))
}

// registerOAuthRoutes registra los endpoints OAuth2 y la metadata RFC 8414.
func registerOAuthRoutes(mux *http.ServeMux, deps Deps) {
	c := deps.OAuth

	// GET valida y devuelve los datos de consent; POST registra la decisión
	// del usuario autenticado.
	mux.Handle("GET /oauth/authorize", oauthHandler(deps, c.Authorize.Validate))
	mux.Handle("POST /oauth/authorize", mw.Chain(
		http.HandlerFunc(c.Authorize.Decide),
		mw.WithRateLimit(deps.Limiter, mw.IPPathRateKey),
		mw.RequireUser(deps.Issuer),
	))

	// POST /oauth/token - Token endpoint (RFC 6749)
	mux.Handle("/oauth/token", oauthHandler(deps, c.Token.Token))

	// POST /oauth/revoke - Token revocation (RFC 7009)
	mux.Handle("/oauth/revoke", oauthHandler(deps, c.Revoke.Revoke))

	// GET /oauth/userinfo - introspección mínima con bearer token
	mux.Handle("/oauth/userinfo", oauthHandler(deps, c.UserInfo.UserInfo))

	// GET /.well-known/oauth-authorization-server - metadata (RFC 8414)
	mux.Handle("/.well-known/oauth-authorization-server", http.HandlerFunc(c.Discovery.Metadata))
}
