package oauth

import (
	"net/http"
	"strings"

	"github.com/dropDatabas3/keygate/internal/observability/logger"

	svc "github.com/dropDatabas3/keygate/internal/http/services/oauth"
)

// RevokeController handles POST /oauth/revoke (RFC 7009).
type RevokeController struct {
	service svc.RevokeService
}

// NewRevokeController creates the controller.
func NewRevokeController(s svc.RevokeService) *RevokeController {
	return &RevokeController{service: s}
}

// Revoke handles POST /oauth/revoke. Un token desconocido o ajeno responde
// 200 igual; solo la autenticación del client puede fallar la request.
func (c *RevokeController) Revoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("oauth.revoke"))

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeOAuthError(w, http.StatusMethodNotAllowed, "invalid_request", "Only POST method is allowed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "Invalid form data")
		return
	}

	clientID, clientSecret := clientAuth(r)
	err := c.service.Revoke(ctx, svc.RevokeRequest{
		Token:         strings.TrimSpace(r.PostForm.Get("token")),
		TokenTypeHint: strings.TrimSpace(r.PostForm.Get("token_type_hint")),
		ClientID:      clientID,
		ClientSecret:  clientSecret,
	})
	if err != nil {
		log.Warn("revocation rejected", logger.Err(err))
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
