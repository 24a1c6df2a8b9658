package repository

import (
	"context"
	"time"
)

// PKCE: solo S256. "plain" queda fuera por diseño.
const (
	CodeChallengeMethodS256 = "S256"
	CodeVerifierMinLength   = 43
	CodeVerifierMaxLength   = 128
)

// AuthorizationCode es un code de un solo uso emitido al aprobar el consent.
// Solo se persiste el hash; el valor crudo se retorna una única vez.
type AuthorizationCode struct {
	ID              string
	CodeHash        string // sha256 base64url del code crudo
	ClientID        string // UUID interno del client
	UserID          string
	RedirectURI     string
	Scopes          []string
	CodeChallenge   string
	ChallengeMethod string // siempre "S256"
	ExpiresAt       time.Time
	UsedAt          *time.Time
	CreatedAt       time.Time
}

// CodeRepository define operaciones sobre authorization codes.
type CodeRepository interface {
	// Create persiste un code nuevo.
	Create(ctx context.Context, c *AuthorizationCode) error

	// Consume busca por hash y marca el code como usado en UNA operación
	// atómica. Si el code no existe, ya fue usado o expiró, retorna
	// ErrNotFound: de dos exchanges concurrentes exactamente uno gana.
	Consume(ctx context.Context, codeHash string) (*AuthorizationCode, error)

	// DeleteDead elimina codes usados o expirados. Idempotente.
	DeleteDead(ctx context.Context) (int64, error)
}
