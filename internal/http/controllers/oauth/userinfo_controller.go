package oauth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/dropDatabas3/keygate/internal/http/helpers"
	"github.com/dropDatabas3/keygate/internal/observability/logger"

	svc "github.com/dropDatabas3/keygate/internal/http/services/oauth"
)

// UserInfoController expone la introspección mínima de un access token.
type UserInfoController struct {
	service svc.VerifyService
}

// NewUserInfoController creates the controller.
func NewUserInfoController(s svc.VerifyService) *UserInfoController {
	return &UserInfoController{service: s}
}

// UserInfo handles GET /oauth/userinfo con un bearer access token.
// La firma sola no alcanza: el token tiene que seguir vigente en el store.
func (c *UserInfoController) UserInfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("oauth.userinfo"))

	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeOAuthError(w, http.StatusMethodNotAllowed, "invalid_request", "Only GET method is allowed")
		return
	}

	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) <= len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		w.Header().Set("WWW-Authenticate", `Bearer realm="oauth"`)
		writeOAuthError(w, http.StatusUnauthorized, "invalid_token", "Missing bearer token")
		return
	}

	info, err := c.service.VerifyAccess(ctx, strings.TrimSpace(auth[len(prefix):]))
	if err != nil {
		if !errors.Is(err, svc.ErrTokenInactive) {
			log.Debug("access token rejected", logger.Err(err))
		}
		w.Header().Set("WWW-Authenticate", `Bearer realm="oauth", error="invalid_token"`)
		writeOAuthError(w, http.StatusUnauthorized, "invalid_token", "Token is invalid, expired or revoked")
		return
	}
	helpers.WriteJSON(w, http.StatusOK, info)
}
