// Package oauth - controllers de los endpoints del protocolo.
package oauth

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dropDatabas3/keygate/internal/metrics"
	"github.com/dropDatabas3/keygate/internal/observability/logger"

	svc "github.com/dropDatabas3/keygate/internal/http/services/oauth"
)

// TokenController handles POST /oauth/token.
type TokenController struct {
	service svc.TokenService
}

// NewTokenController creates the controller.
func NewTokenController(s svc.TokenService) *TokenController {
	return &TokenController{service: s}
}

// clientAuth extrae credenciales del client: Basic auth primero, si no, el form.
func clientAuth(r *http.Request) (id, secret string) {
	if u, p, ok := r.BasicAuth(); ok {
		return u, p
	}
	return strings.TrimSpace(r.PostForm.Get("client_id")),
		strings.TrimSpace(r.PostForm.Get("client_secret"))
}

// Token handles POST /oauth/token.
// Grants: authorization_code (PKCE), client_credentials, refresh_token.
func (c *TokenController) Token(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("oauth.token"))

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeOAuthError(w, http.StatusMethodNotAllowed, "invalid_request", "Only POST method is allowed")
		return
	}

	// 64KB alcanza y sobra para un form OAuth
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	if err := r.ParseForm(); err != nil {
		log.Warn("failed to parse form", logger.Err(err))
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "Invalid form data")
		return
	}

	grantType := strings.TrimSpace(r.PostForm.Get("grant_type"))
	clientID, clientSecret := clientAuth(r)

	var resp *svc.TokenResponse
	var err error

	switch grantType {
	case "authorization_code":
		resp, err = c.service.ExchangeAuthorizationCode(ctx, svc.AuthCodeRequest{
			Code:         strings.TrimSpace(r.PostForm.Get("code")),
			RedirectURI:  strings.TrimSpace(r.PostForm.Get("redirect_uri")),
			ClientID:     clientID,
			ClientSecret: clientSecret,
			CodeVerifier: strings.TrimSpace(r.PostForm.Get("code_verifier")),
		})

	case "client_credentials":
		resp, err = c.service.ExchangeClientCredentials(ctx, svc.ClientCredentialsRequest{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Scope:        strings.TrimSpace(r.PostForm.Get("scope")),
		})

	case "refresh_token":
		resp, err = c.service.ExchangeRefreshToken(ctx, svc.RefreshTokenRequest{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RefreshToken: strings.TrimSpace(r.PostForm.Get("refresh_token")),
			Scope:        strings.TrimSpace(r.PostForm.Get("scope")),
		})

	default:
		metrics.GrantFailures.WithLabelValues("unsupported_grant_type").Inc()
		writeOAuthError(w, http.StatusBadRequest, "unsupported_grant_type", "Grant type not supported")
		return
	}

	if err != nil {
		log.Warn("token exchange failed", logger.Err(err))
		handleServiceError(w, err)
		return
	}
	writeTokenResponse(w, resp)
}

// handleServiceError mapea sentinels del service a errores RFC 6749.
func handleServiceError(w http.ResponseWriter, err error) {
	code := "server_error"
	switch err {
	case svc.ErrTokenInvalidRequest:
		code = "invalid_request"
		writeOAuthError(w, http.StatusBadRequest, code, "Missing or invalid parameters")
	case svc.ErrTokenInvalidClient:
		code = "invalid_client"
		w.Header().Set("WWW-Authenticate", `Basic realm="oauth"`)
		writeOAuthError(w, http.StatusUnauthorized, code, "Client authentication failed")
	case svc.ErrTokenInvalidGrant:
		code = "invalid_grant"
		writeOAuthError(w, http.StatusBadRequest, code, "Invalid or expired grant")
	case svc.ErrTokenUnauthorizedClient:
		code = "unauthorized_client"
		writeOAuthError(w, http.StatusBadRequest, code, "Client not authorized for this grant type")
	case svc.ErrTokenUnsupportedGrantType:
		code = "unsupported_grant_type"
		writeOAuthError(w, http.StatusBadRequest, code, "Grant type not supported")
	case svc.ErrTokenInvalidScope:
		code = "invalid_scope"
		writeOAuthError(w, http.StatusBadRequest, code, "Requested scope is invalid or not allowed")
	default:
		writeOAuthError(w, http.StatusInternalServerError, code, "An unexpected error occurred")
	}
	metrics.GrantFailures.WithLabelValues(code).Inc()
}

type oauthError struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func writeOAuthError(w http.ResponseWriter, status int, errorCode, description string) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(oauthError{Error: errorCode, Description: description})
}

func writeTokenResponse(w http.ResponseWriter, resp *svc.TokenResponse) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}
