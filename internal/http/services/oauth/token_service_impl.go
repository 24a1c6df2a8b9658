package oauth

import (
	"context"
	"crypto/hmac"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/keygate/internal/cache"
	"github.com/dropDatabas3/keygate/internal/domain/repository"
	jwtx "github.com/dropDatabas3/keygate/internal/jwt"
	"github.com/dropDatabas3/keygate/internal/metrics"
	"github.com/dropDatabas3/keygate/internal/observability/logger"
	"github.com/dropDatabas3/keygate/internal/security/password"
	tokens "github.com/dropDatabas3/keygate/internal/security/token"
	"github.com/dropDatabas3/keygate/internal/validation"
)

// TokenDeps contains dependencies for token service.
type TokenDeps struct {
	Clients       repository.ClientRepository
	Codes         repository.CodeRepository
	AccessTokens  repository.AccessTokenRepository
	RefreshTokens repository.RefreshTokenRepository
	Issuer        *jwtx.Issuer
	Cache         cache.Client
	Events        EventPublisher
	RefreshTTL    time.Duration
}

// tokenService implements TokenService.
type tokenService struct {
	clients  repository.ClientRepository
	codes    repository.CodeRepository
	access   repository.AccessTokenRepository
	refresh  repository.RefreshTokenRepository
	issuer   *jwtx.Issuer
	cache    cache.Client
	events   EventPublisher
	refreshTTL time.Duration
}

// NewTokenService creates a new TokenService.
func NewTokenService(d TokenDeps) TokenService {
	ttl := d.RefreshTTL
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	ev := d.Events
	if ev == nil {
		ev = NopPublisher{}
	}
	return &tokenService{
		clients:    d.Clients,
		codes:      d.Codes,
		access:     d.AccessTokens,
		refresh:    d.RefreshTokens,
		issuer:     d.Issuer,
		cache:      d.Cache,
		events:     ev,
		refreshTTL: ttl,
	}
}

// lookupClient resuelve el client activo por client_id público, pasando por
// el cache de lectura del hot path.
func (s *tokenService) lookupClient(ctx context.Context, clientID string) (*repository.Client, error) {
	const prefix = "client:"
	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, prefix+clientID); err == nil {
			var c repository.Client
			if json.Unmarshal([]byte(raw), &c) == nil && c.Active {
				return &c, nil
			}
		}
	}
	c, err := s.clients.GetActiveByClientID(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if b, err := json.Marshal(c); err == nil {
			_ = s.cache.Set(ctx, prefix+clientID, string(b), 0)
		}
	}
	return c, nil
}

// verifyClientAuth chequea el secret según confidencialidad del client.
// Un client público no presenta secret; uno confidencial siempre debe.
func verifyClientAuth(c *repository.Client, secret string) error {
	if !c.Confidential {
		return nil
	}
	if secret == "" {
		return ErrTokenInvalidClient
	}
	if !password.Verify(secret, c.SecretHash) {
		return ErrTokenInvalidClient
	}
	return nil
}

// ExchangeAuthorizationCode handles grant_type=authorization_code (PKCE).
func (s *tokenService) ExchangeAuthorizationCode(ctx context.Context, req AuthCodeRequest) (*TokenResponse, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("oauth.token.authcode"))

	if req.Code == "" || req.RedirectURI == "" || req.ClientID == "" || req.CodeVerifier == "" {
		return nil, ErrTokenInvalidRequest
	}
	if n := len(req.CodeVerifier); n < repository.CodeVerifierMinLength || n > repository.CodeVerifierMaxLength {
		return nil, ErrTokenInvalidRequest
	}

	client, err := s.lookupClient(ctx, req.ClientID)
	if err != nil {
		log.Warn("client not found", logger.ClientID(req.ClientID))
		return nil, ErrTokenInvalidClient
	}
	if !client.AllowsGrant(repository.GrantAuthorizationCode) {
		return nil, ErrTokenUnauthorizedClient
	}
	if err := verifyClientAuth(client, req.ClientSecret); err != nil {
		return nil, err
	}

	// Lookup + mark-used en una sola operación: el perdedor de dos exchanges
	// concurrentes ve ErrNotFound acá.
	ac, err := s.codes.Consume(ctx, tokens.SHA256Base64URL(req.Code))
	if err != nil {
		if repository.IsNotFound(err) {
			log.Warn("authorization code not found, used or expired")
			return nil, ErrTokenInvalidGrant
		}
		log.Error("code consume failed", logger.Err(err))
		return nil, ErrTokenServerError
	}

	if ac.ClientID != client.ID || ac.RedirectURI != req.RedirectURI {
		log.Warn("client/redirect_uri mismatch")
		return nil, ErrTokenInvalidGrant
	}

	// PKCE S256: igualdad byte a byte, sin tolerancia.
	verifierHash := tokens.SHA256Base64URL(req.CodeVerifier)
	if ac.ChallengeMethod != repository.CodeChallengeMethodS256 ||
		!hmac.Equal([]byte(ac.CodeChallenge), []byte(verifierHash)) {
		log.Warn("PKCE verification failed")
		return nil, ErrTokenInvalidGrant
	}

	resp, err := s.mint(ctx, client, &ac.UserID, ac.Scopes, repository.GrantAuthorizationCode, true)
	if err != nil {
		return nil, err
	}
	log.Info("authorization_code exchanged", logger.ClientID(req.ClientID), logger.UserID(ac.UserID))
	return resp, nil
}

// ExchangeClientCredentials handles grant_type=client_credentials (M2M).
func (s *tokenService) ExchangeClientCredentials(ctx context.Context, req ClientCredentialsRequest) (*TokenResponse, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("oauth.token.client_credentials"))

	if req.ClientID == "" || req.ClientSecret == "" {
		return nil, ErrTokenInvalidRequest
	}

	client, err := s.lookupClient(ctx, req.ClientID)
	if err != nil {
		return nil, ErrTokenInvalidClient
	}
	if !client.AllowsGrant(repository.GrantClientCredentials) {
		return nil, ErrTokenUnauthorizedClient
	}
	if !password.Verify(req.ClientSecret, client.SecretHash) {
		return nil, ErrTokenInvalidClient
	}

	// Scope pedido debe ser subset del permitido; sin scope se otorga todo.
	scopes := client.Scopes
	if req.Scope != "" {
		requested := validation.ParseScopes(req.Scope)
		if !validation.ScopesSubset(requested, client.Scopes) {
			return nil, ErrTokenInvalidScope
		}
		scopes = requested
	}

	// Sin usuario y sin refresh token: el token muere y se vuelve a pedir.
	resp, err := s.mint(ctx, client, nil, scopes, repository.GrantClientCredentials, false)
	if err != nil {
		return nil, err
	}
	log.Info("client_credentials granted", logger.ClientID(req.ClientID))
	return resp, nil
}

// ExchangeRefreshToken handles grant_type=refresh_token (rotation).
func (s *tokenService) ExchangeRefreshToken(ctx context.Context, req RefreshTokenRequest) (*TokenResponse, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("oauth.token.refresh"))

	if req.ClientID == "" || req.RefreshToken == "" {
		return nil, ErrTokenInvalidRequest
	}

	client, err := s.lookupClient(ctx, req.ClientID)
	if err != nil {
		return nil, ErrTokenInvalidClient
	}
	if !client.AllowsGrant(repository.GrantRefreshToken) {
		return nil, ErrTokenUnauthorizedClient
	}
	if err := verifyClientAuth(client, req.ClientSecret); err != nil {
		return nil, err
	}

	rt, err := s.refresh.GetByHash(ctx, tokens.SHA256Base64URL(req.RefreshToken))
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrTokenInvalidGrant
		}
		log.Error("refresh lookup failed", logger.Err(err))
		return nil, ErrTokenServerError
	}
	if rt.ClientID != client.ID || !rt.Valid(time.Now()) {
		return nil, ErrTokenInvalidGrant
	}

	// Scope original = el del access token emparejado. Refresh solo puede
	// angostar, nunca ampliar.
	prev, err := s.access.GetByID(ctx, rt.AccessTokenID)
	if err != nil {
		log.Error("paired access token lookup failed", logger.Err(err))
		return nil, ErrTokenServerError
	}
	scopes := prev.Scopes
	if req.Scope != "" {
		requested := validation.ParseScopes(req.Scope)
		if !validation.ScopesSubset(requested, prev.Scopes) {
			return nil, ErrTokenInvalidScope
		}
		scopes = requested
	}

	// Rotación: el UPDATE condicional decide el ganador de un reuse
	// concurrente. Perder acá es señal de replay.
	won, err := s.refresh.Revoke(ctx, rt.ID)
	if err != nil {
		log.Error("refresh revoke failed", logger.Err(err))
		return nil, ErrTokenServerError
	}
	if !won {
		log.Warn("refresh token reuse detected", logger.ClientID(req.ClientID))
		return nil, ErrTokenInvalidGrant
	}
	if err := s.access.Revoke(ctx, rt.AccessTokenID); err != nil {
		log.Error("paired access revoke failed", logger.Err(err))
		return nil, ErrTokenServerError
	}

	resp, err := s.mint(ctx, client, rt.UserID, scopes, repository.GrantRefreshToken, true)
	if err != nil {
		return nil, err
	}
	log.Info("refresh token rotated", logger.ClientID(req.ClientID))
	return resp, nil
}

// mint emite el par access(+refresh) y persiste los registros sombra.
// Compartido por los tres grants.
func (s *tokenService) mint(ctx context.Context, client *repository.Client, userID *string, scopes []string, grant string, withRefresh bool) (*TokenResponse, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("oauth.token.mint"))

	scopeStr := validation.JoinScopes(scopes)
	jti := uuid.NewString()

	signed, exp, err := s.issuer.IssueAccess(userID, client.ClientID, scopeStr, jti)
	if err != nil {
		log.Error("failed to sign access token", logger.Err(err))
		return nil, ErrTokenServerError
	}

	at := &repository.AccessToken{
		ID:        uuid.NewString(),
		TokenHash: tokens.SHA256Hex(jti),
		ClientID:  client.ID,
		UserID:    userID,
		Scopes:    scopes,
		ExpiresAt: exp,
	}
	if err := s.access.Create(ctx, at); err != nil {
		log.Error("failed to persist access token record", logger.Err(err))
		return nil, ErrTokenServerError
	}

	resp := &TokenResponse{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresIn:   int64(time.Until(exp).Seconds()),
		Scope:       scopeStr,
	}

	if withRefresh {
		raw, err := tokens.GenerateOpaqueToken(32)
		if err != nil {
			log.Error("failed to generate refresh token", logger.Err(err))
			return nil, ErrTokenServerError
		}
		rt := &repository.RefreshToken{
			ID:            uuid.NewString(),
			TokenHash:     tokens.SHA256Base64URL(raw),
			AccessTokenID: at.ID,
			ClientID:      client.ID,
			UserID:        userID,
			ExpiresAt:     time.Now().Add(s.refreshTTL),
		}
		if err := s.refresh.Create(ctx, rt); err != nil {
			log.Error("failed to persist refresh token", logger.Err(err))
			return nil, ErrTokenServerError
		}
		resp.RefreshToken = raw
	}

	metrics.TokensIssued.WithLabelValues(grant).Inc()
	s.events.Publish(ctx, client.ID, repository.EventTokenCreated, map[string]any{
		"client_id":  client.ClientID,
		"grant_type": grant,
		"scope":      scopeStr,
	})
	return resp, nil
}
