package oauth

import (
	"net/http"
	"strings"

	"github.com/dropDatabas3/keygate/internal/http/helpers"
)

// DiscoveryController sirve la metadata RFC 8414 del authorization server.
type DiscoveryController struct {
	issuer string
}

// NewDiscoveryController creates the controller.
func NewDiscoveryController(issuer string) *DiscoveryController {
	return &DiscoveryController{issuer: strings.TrimRight(issuer, "/")}
}

type serverMetadata struct {
	Issuer                        string   `json:"issuer"`
	AuthorizationEndpoint         string   `json:"authorization_endpoint"`
	TokenEndpoint                 string   `json:"token_endpoint"`
	RevocationEndpoint            string   `json:"revocation_endpoint"`
	UserinfoEndpoint              string   `json:"userinfo_endpoint"`
	ResponseTypesSupported        []string `json:"response_types_supported"`
	GrantTypesSupported           []string `json:"grant_types_supported"`
	CodeChallengeMethodsSupported []string `json:"code_challenge_methods_supported"`
	TokenEndpointAuthMethods      []string `json:"token_endpoint_auth_methods_supported"`
}

// Metadata handles GET /.well-known/oauth-authorization-server.
func (c *DiscoveryController) Metadata(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeOAuthError(w, http.StatusMethodNotAllowed, "invalid_request", "Only GET method is allowed")
		return
	}
	helpers.WriteJSON(w, http.StatusOK, serverMetadata{
		Issuer:                        c.issuer,
		AuthorizationEndpoint:         c.issuer + "/oauth/authorize",
		TokenEndpoint:                 c.issuer + "/oauth/token",
		RevocationEndpoint:            c.issuer + "/oauth/revoke",
		UserinfoEndpoint:              c.issuer + "/oauth/userinfo",
		ResponseTypesSupported:        []string{"code"},
		GrantTypesSupported:           []string{"authorization_code", "client_credentials", "refresh_token"},
		CodeChallengeMethodsSupported: []string{"S256"},
		TokenEndpointAuthMethods:      []string{"client_secret_basic", "client_secret_post"},
	})
}
