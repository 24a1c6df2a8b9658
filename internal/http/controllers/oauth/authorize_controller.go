package oauth

import (
	"net/http"
	"strings"

	"github.com/dropDatabas3/keygate/internal/http/helpers"
	"github.com/dropDatabas3/keygate/internal/http/middlewares"
	"github.com/dropDatabas3/keygate/internal/observability/logger"

	svc "github.com/dropDatabas3/keygate/internal/http/services/oauth"
)

// AuthorizeController handles the /oauth/authorize endpoint.
type AuthorizeController struct {
	service svc.AuthorizeService
}

// NewAuthorizeController creates the controller.
func NewAuthorizeController(s svc.AuthorizeService) *AuthorizeController {
	return &AuthorizeController{service: s}
}

func authorizeRequestFromQuery(r *http.Request) svc.AuthorizeRequest {
	q := r.URL.Query()
	return svc.AuthorizeRequest{
		ResponseType:        strings.TrimSpace(q.Get("response_type")),
		ClientID:            strings.TrimSpace(q.Get("client_id")),
		RedirectURI:         strings.TrimSpace(q.Get("redirect_uri")),
		Scope:               strings.TrimSpace(q.Get("scope")),
		State:               q.Get("state"),
		CodeChallenge:       strings.TrimSpace(q.Get("code_challenge")),
		CodeChallengeMethod: strings.TrimSpace(q.Get("code_challenge_method")),
	}
}

// Validate handles GET /oauth/authorize: valida la request y devuelve los
// datos que la pantalla de consentimiento necesita renderizar.
func (c *AuthorizeController) Validate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("oauth.authorize"))

	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeOAuthError(w, http.StatusMethodNotAllowed, "invalid_request", "Only GET method is allowed")
		return
	}

	data, err := c.service.Validate(ctx, authorizeRequestFromQuery(r))
	if err != nil {
		log.Warn("authorize validation failed", logger.Err(err))
		handleServiceError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, data)
}

type decisionBody struct {
	ClientID            string `json:"client_id"`
	RedirectURI         string `json:"redirect_uri"`
	Scope               string `json:"scope"`
	State               string `json:"state"`
	CodeChallenge       string `json:"code_challenge"`
	CodeChallengeMethod string `json:"code_challenge_method"`
	Approved            bool   `json:"approved"`
}

// Decide handles POST /oauth/authorize: registra la decision del usuario
// autenticado y devuelve la URL de redireccion resultante.
func (c *AuthorizeController) Decide(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("oauth.decide"))

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeOAuthError(w, http.StatusMethodNotAllowed, "invalid_request", "Only POST method is allowed")
		return
	}

	userID := middlewares.GetUserID(ctx)
	if userID == "" {
		writeOAuthError(w, http.StatusUnauthorized, "access_denied", "Authentication required")
		return
	}

	var body decisionBody
	if err := helpers.ReadJSON(w, r, &body); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	result, err := c.service.Decide(ctx, svc.DecisionRequest{
		UserID:              userID,
		ClientID:            body.ClientID,
		RedirectURI:         body.RedirectURI,
		Scope:               body.Scope,
		State:               body.State,
		CodeChallenge:       body.CodeChallenge,
		CodeChallengeMethod: body.CodeChallengeMethod,
		Approved:            body.Approved,
	})
	if err != nil {
		log.Warn("authorize decision failed", logger.Err(err))
		handleServiceError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, result)
}
