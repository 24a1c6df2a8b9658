package oauth

import (
	"context"
	"errors"
	"time"

	jwtx "github.com/dropDatabas3/keygate/internal/jwt"
	"github.com/dropDatabas3/keygate/internal/domain/repository"
	tokens "github.com/dropDatabas3/keygate/internal/security/token"
)

// ErrTokenInactive: firma válida pero registro sombra ausente, revocado o
// vencido. Para el caller es indistinguible de un token inexistente.
var ErrTokenInactive = errors.New("token_inactive")

// VerifyService valida access tokens presentados a recursos protegidos.
// La firma sola no alcanza: el registro sombra tiene la última palabra.
type VerifyService interface {
	VerifyAccess(ctx context.Context, raw string) (*AccessInfo, error)
}

// AccessInfo describe un access token aceptado.
type AccessInfo struct {
	Subject   string `json:"sub,omitempty"`
	ClientID  string `json:"client_id"`
	Scope     string `json:"scope"`
	ExpiresAt int64  `json:"exp"`
}

// VerifyDeps contains dependencies for verify service.
type VerifyDeps struct {
	AccessTokens repository.AccessTokenRepository
	Issuer       *jwtx.Issuer
}

type verifyService struct {
	access repository.AccessTokenRepository
	issuer *jwtx.Issuer
}

// NewVerifyService creates a new VerifyService.
func NewVerifyService(d VerifyDeps) VerifyService {
	return &verifyService{access: d.AccessTokens, issuer: d.Issuer}
}

func (s *verifyService) VerifyAccess(ctx context.Context, raw string) (*AccessInfo, error) {
	claims, err := jwtx.ParseAccess(raw, s.issuer)
	if err != nil {
		return nil, ErrTokenInactive
	}

	at, err := s.access.GetValidByHash(ctx, tokens.SHA256Hex(claims.JTI))
	if err != nil || !at.Valid(time.Now()) {
		return nil, ErrTokenInactive
	}

	return &AccessInfo{
		Subject:   claims.Subject,
		ClientID:  claims.ClientID,
		Scope:     claims.Scope,
		ExpiresAt: claims.ExpiresAt.Unix(),
	}, nil
}
