package oauth

import (
	"context"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/keygate/internal/domain/repository"
	"github.com/dropDatabas3/keygate/internal/observability/logger"
	tokens "github.com/dropDatabas3/keygate/internal/security/token"
	"github.com/dropDatabas3/keygate/internal/validation"
)

// AuthorizeService implementa las dos patas de /oauth/authorize:
// validación de la query (GET, datos para la pantalla de consent) y la
// decisión del usuario (POST, emisión del code o denegación).
type AuthorizeService interface {
	// Validate chequea la solicitud de autorización completa y retorna los
	// datos que la UI de consent necesita mostrar. No emite nada.
	Validate(ctx context.Context, req AuthorizeRequest) (*ConsentData, error)

	// Decide procesa la decisión del usuario autenticado. Aprobación emite
	// el code y arma el redirect con code+state; denegación arma el
	// redirect access_denied. Ambas disparan su evento.
	Decide(ctx context.Context, req DecisionRequest) (*DecisionResult, error)
}

// AuthorizeRequest es la query de GET /oauth/authorize.
type AuthorizeRequest struct {
	ResponseType        string
	ClientID            string
	RedirectURI         string
	Scope               string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
}

// ConsentData es el contrato de datos para la pantalla de consent.
type ConsentData struct {
	ClientName  string   `json:"client_name"`
	LogoURL     string   `json:"logo_url,omitempty"`
	Description string   `json:"description,omitempty"`
	ClientID    string   `json:"client_id"`
	RedirectURI string   `json:"redirect_uri"`
	Scopes      []string `json:"scopes"`
	State       string   `json:"state,omitempty"`
}

// DecisionRequest es el body de POST /oauth/authorize.
type DecisionRequest struct {
	UserID              string
	ClientID            string
	RedirectURI         string
	Scope               string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
	Approved            bool
}

// DecisionResult lleva el redirect final hacia el client.
type DecisionResult struct {
	RedirectURL string `json:"redirect_url"`
	Approved    bool   `json:"approved"`
}

// AuthorizeDeps contains dependencies for the authorize service.
type AuthorizeDeps struct {
	Clients repository.ClientRepository
	Codes   repository.CodeRepository
	Events  EventPublisher
	CodeTTL time.Duration
}

type authorizeService struct {
	clients repository.ClientRepository
	codes   repository.CodeRepository
	events  EventPublisher
	codeTTL time.Duration
}

// NewAuthorizeService creates a new AuthorizeService.
func NewAuthorizeService(d AuthorizeDeps) AuthorizeService {
	ttl := d.CodeTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	ev := d.Events
	if ev == nil {
		ev = NopPublisher{}
	}
	return &authorizeService{clients: d.Clients, codes: d.Codes, events: ev, codeTTL: ttl}
}

// validate comparte los chequeos entre Validate y Decide. Cualquier falla
// corta el flujo ANTES de emitir un code.
func (s *authorizeService) validate(ctx context.Context, respType, clientID, redirectURI, scope, challenge, method string) (*repository.Client, []string, error) {
	if respType != "code" {
		return nil, nil, ErrTokenInvalidRequest
	}
	if clientID == "" || redirectURI == "" || challenge == "" {
		return nil, nil, ErrTokenInvalidRequest
	}
	if method != repository.CodeChallengeMethodS256 {
		// plain no se soporta: S256 o nada.
		return nil, nil, ErrTokenInvalidRequest
	}

	client, err := s.clients.GetActiveByClientID(ctx, clientID)
	if err != nil {
		return nil, nil, ErrTokenInvalidClient
	}
	if !client.AllowsGrant(repository.GrantAuthorizationCode) {
		return nil, nil, ErrTokenUnauthorizedClient
	}
	if !client.AllowsRedirectURI(redirectURI) {
		return nil, nil, ErrTokenInvalidGrant
	}

	scopes := validation.ParseScopes(scope)
	if len(scopes) == 0 {
		return nil, nil, ErrTokenInvalidScope
	}
	for _, sc := range scopes {
		if !validation.ValidScopeName(sc) {
			return nil, nil, ErrTokenInvalidScope
		}
	}
	if !validation.ScopesSubset(scopes, client.Scopes) {
		return nil, nil, ErrTokenInvalidScope
	}
	return client, scopes, nil
}

func (s *authorizeService) Validate(ctx context.Context, req AuthorizeRequest) (*ConsentData, error) {
	client, scopes, err := s.validate(ctx, req.ResponseType, req.ClientID, req.RedirectURI,
		req.Scope, req.CodeChallenge, req.CodeChallengeMethod)
	if err != nil {
		return nil, err
	}
	return &ConsentData{
		ClientName:  client.Name,
		LogoURL:     client.LogoURL,
		Description: client.Description,
		ClientID:    client.ClientID,
		RedirectURI: req.RedirectURI,
		Scopes:      scopes,
		State:       req.State,
	}, nil
}

func (s *authorizeService) Decide(ctx context.Context, req DecisionRequest) (*DecisionResult, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("oauth.authorize.decide"))

	if req.UserID == "" {
		return nil, ErrTokenInvalidRequest
	}
	client, scopes, err := s.validate(ctx, "code", req.ClientID, req.RedirectURI,
		req.Scope, req.CodeChallenge, req.CodeChallengeMethod)
	if err != nil {
		return nil, err
	}

	if !req.Approved {
		s.events.Publish(ctx, client.ID, repository.EventAuthorizationDenied, map[string]any{
			"client_id": client.ClientID,
			"user_id":   req.UserID,
			"scope":     validation.JoinScopes(scopes),
		})
		log.Info("authorization denied", logger.ClientID(req.ClientID), logger.UserID(req.UserID))
		return &DecisionResult{
			RedirectURL: buildRedirect(req.RedirectURI, url.Values{
				"error": {"access_denied"},
				"state": {req.State},
			}),
			Approved: false,
		}, nil
	}

	raw, err := tokens.GenerateOpaqueToken(32)
	if err != nil {
		log.Error("failed to generate code", logger.Err(err))
		return nil, ErrTokenServerError
	}
	code := &repository.AuthorizationCode{
		ID:              uuid.NewString(),
		CodeHash:        tokens.SHA256Base64URL(raw),
		ClientID:        client.ID,
		UserID:          req.UserID,
		RedirectURI:     req.RedirectURI,
		Scopes:          scopes,
		CodeChallenge:   req.CodeChallenge,
		ChallengeMethod: repository.CodeChallengeMethodS256,
		ExpiresAt:       time.Now().Add(s.codeTTL),
	}
	if err := s.codes.Create(ctx, code); err != nil {
		log.Error("failed to persist code", logger.Err(err))
		return nil, ErrTokenServerError
	}

	s.events.Publish(ctx, client.ID, repository.EventAuthorizationGrant, map[string]any{
		"client_id": client.ClientID,
		"user_id":   req.UserID,
		"scope":     validation.JoinScopes(scopes),
	})
	log.Info("authorization granted", logger.ClientID(req.ClientID), logger.UserID(req.UserID))

	return &DecisionResult{
		RedirectURL: buildRedirect(req.RedirectURI, url.Values{
			"code":  {raw},
			"state": {req.State},
		}),
		Approved: true,
	}, nil
}

// buildRedirect agrega params a la redirect URI respetando query existente.
// state vacío no viaja.
func buildRedirect(base string, params url.Values) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			if v == "" {
				continue
			}
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}
