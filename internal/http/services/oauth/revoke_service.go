package oauth

import (
	"context"

	"github.com/dropDatabas3/keygate/internal/domain/repository"
	jwtx "github.com/dropDatabas3/keygate/internal/jwt"
	"github.com/dropDatabas3/keygate/internal/metrics"
	"github.com/dropDatabas3/keygate/internal/observability/logger"
	tokens "github.com/dropDatabas3/keygate/internal/security/token"
)

// RevokeService implementa RFC 7009. Token inexistente NO es error: el
// endpoint nunca filtra si un token existe.
type RevokeService interface {
	Revoke(ctx context.Context, req RevokeRequest) error
}

// RevokeRequest son los parámetros de POST /oauth/revoke.
type RevokeRequest struct {
	Token         string
	TokenTypeHint string // "" | "access_token" | "refresh_token"
	ClientID      string
	ClientSecret  string
}

// RevokeDeps contains dependencies for revoke service.
type RevokeDeps struct {
	Clients       repository.ClientRepository
	AccessTokens  repository.AccessTokenRepository
	RefreshTokens repository.RefreshTokenRepository
	Issuer        *jwtx.Issuer
	Events        EventPublisher
}

type revokeService struct {
	clients repository.ClientRepository
	access  repository.AccessTokenRepository
	refresh repository.RefreshTokenRepository
	issuer  *jwtx.Issuer
	events  EventPublisher
}

// NewRevokeService creates a new RevokeService.
func NewRevokeService(d RevokeDeps) RevokeService {
	ev := d.Events
	if ev == nil {
		ev = NopPublisher{}
	}
	return &revokeService{
		clients: d.Clients,
		access:  d.AccessTokens,
		refresh: d.RefreshTokens,
		issuer:  d.Issuer,
		events:  ev,
	}
}

func (s *revokeService) Revoke(ctx context.Context, req RevokeRequest) error {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("oauth.revoke"))

	if req.Token == "" || req.ClientID == "" {
		return ErrTokenInvalidRequest
	}
	client, err := s.clients.GetActiveByClientID(ctx, req.ClientID)
	if err != nil {
		return ErrTokenInvalidClient
	}
	if err := verifyClientAuth(client, req.ClientSecret); err != nil {
		return err
	}

	// Salvo hint explícito de refresh, probar primero como access token.
	if req.TokenTypeHint != "refresh_token" {
		if s.revokeAsAccess(ctx, client, req.Token) {
			log.Info("access token revoked", logger.ClientID(req.ClientID))
			return nil
		}
	}
	if s.revokeAsRefresh(ctx, client, req.Token) {
		log.Info("refresh token revoked", logger.ClientID(req.ClientID))
		return nil
	}
	// Con hint de refresh que no matcheó, probar el otro tipo igual.
	if req.TokenTypeHint == "refresh_token" && s.revokeAsAccess(ctx, client, req.Token) {
		log.Info("access token revoked", logger.ClientID(req.ClientID))
		return nil
	}

	// No encontrado: éxito igual, por protocolo.
	log.Info("revoke on unknown token", logger.ClientID(req.ClientID))
	return nil
}

// revokeAsAccess interpreta el token como JWT de access, verifica que sea
// del client y revoca registro sombra + refresh emparejados.
func (s *revokeService) revokeAsAccess(ctx context.Context, client *repository.Client, raw string) bool {
	claims, err := jwtx.ParseAccess(raw, s.issuer)
	if err != nil {
		return false
	}
	if claims.ClientID != client.ClientID {
		return false
	}
	at, err := s.access.GetByHash(ctx, tokens.SHA256Hex(claims.JTI))
	if err != nil {
		return false
	}
	if err := s.access.Revoke(ctx, at.ID); err != nil {
		return false
	}
	_ = s.refresh.RevokeByAccessTokenID(ctx, at.ID)

	metrics.TokensRevoked.Inc()
	s.events.Publish(ctx, client.ID, repository.EventTokenRevoked, map[string]any{
		"client_id":  client.ClientID,
		"token_type": "access_token",
	})
	return true
}

// revokeAsRefresh interpreta el token como refresh opaco y revoca el par.
func (s *revokeService) revokeAsRefresh(ctx context.Context, client *repository.Client, raw string) bool {
	rt, err := s.refresh.GetByHash(ctx, tokens.SHA256Base64URL(raw))
	if err != nil {
		return false
	}
	if rt.ClientID != client.ID {
		return false
	}
	if _, err := s.refresh.Revoke(ctx, rt.ID); err != nil {
		return false
	}
	_ = s.access.Revoke(ctx, rt.AccessTokenID)

	metrics.TokensRevoked.Inc()
	s.events.Publish(ctx, client.ID, repository.EventTokenRevoked, map[string]any{
		"client_id":  client.ClientID,
		"token_type": "refresh_token",
	})
	return true
}
