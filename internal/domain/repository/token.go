package repository

import (
	"context"
	"time"
)

// AccessToken es el registro sombra de un JWT emitido: la validez exige
// firma+expiry correctos Y que este registro exista sin revocar.
// TokenHash es el claim jti (sha256 hex de un UUID fresco).
type AccessToken struct {
	ID        string
	TokenHash string
	ClientID  string  // UUID interno del client
	UserID    *string // nil para client_credentials
	Scopes    []string
	ExpiresAt time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
}

// Valid reporta si el registro sombra sigue vigente en el instante dado.
func (t *AccessToken) Valid(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}

// RefreshToken es un token opaco de larga vida, hasheado at-rest, emparejado
// con el access token junto al que se emitió. Single-use via rotación.
type RefreshToken struct {
	ID            string
	TokenHash     string // sha256 base64url del token crudo
	AccessTokenID string
	ClientID      string
	UserID        *string // nil nunca ocurre en la práctica: client_credentials no emite refresh
	ExpiresAt     time.Time
	RevokedAt     *time.Time
	CreatedAt     time.Time
}

// Valid reporta si el refresh token sigue vigente en el instante dado.
func (t *RefreshToken) Valid(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}

// AccessTokenRepository define operaciones sobre registros sombra de access tokens.
type AccessTokenRepository interface {
	// Create persiste el registro sombra de un token recién firmado.
	Create(ctx context.Context, t *AccessToken) error

	// GetByID busca por UUID. Retorna ErrNotFound si no existe.
	GetByID(ctx context.Context, id string) (*AccessToken, error)

	// GetByHash busca por jti hash sin filtrar estado.
	GetByHash(ctx context.Context, tokenHash string) (*AccessToken, error)

	// GetValidByHash busca por jti hash, solo registros vivos
	// (sin revocar y sin expirar).
	GetValidByHash(ctx context.Context, tokenHash string) (*AccessToken, error)

	// Revoke marca el token como revocado. Idempotente: revocar un token ya
	// revocado no es error.
	Revoke(ctx context.Context, id string) error

	// DeleteDead elimina tokens expirados o revocados. Idempotente.
	DeleteDead(ctx context.Context) (int64, error)
}

// RefreshTokenRepository define operaciones sobre refresh tokens.
type RefreshTokenRepository interface {
	// Create persiste un refresh token nuevo.
	Create(ctx context.Context, t *RefreshToken) error

	// GetByHash busca por hash sin filtrar estado.
	GetByHash(ctx context.Context, tokenHash string) (*RefreshToken, error)

	// Revoke marca el token como revocado SOLO si aún no lo estaba.
	// Retorna true si esta llamada efectuó la revocación: en una rotación
	// concurrente, el perdedor observa false y debe fallar el grant.
	Revoke(ctx context.Context, id string) (bool, error)

	// RevokeByAccessTokenID revoca los refresh tokens emparejados con un
	// access token (cascada de RFC 7009).
	RevokeByAccessTokenID(ctx context.Context, accessTokenID string) error

	// DeleteDead elimina tokens expirados o revocados. Idempotente.
	DeleteDead(ctx context.Context) (int64, error)
}
