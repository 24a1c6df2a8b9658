package repository

import (
	"context"
	"strings"
	"time"
)

// Grant types soportados. Implicit y device code quedan fuera por diseño.
const (
	GrantAuthorizationCode = "authorization_code"
	GrantClientCredentials = "client_credentials"
	GrantRefreshToken      = "refresh_token"
)

// GrantTypes retorna los grant types soportados en orden canónico.
func GrantTypes() []string {
	return []string{GrantAuthorizationCode, GrantClientCredentials, GrantRefreshToken}
}

// ValidGrantType verifica que el grant type pertenezca al set soportado.
func ValidGrantType(gt string) bool {
	switch gt {
	case GrantAuthorizationCode, GrantClientCredentials, GrantRefreshToken:
		return true
	}
	return false
}

// Límites y formato de credenciales de clients.
const (
	ClientIDPrefix     = "kg_client_"
	ClientIDLength     = 24
	ClientSecretLength = 48
	MaxClientsPerUser  = 10
	MaxRedirectURIs    = 5
)

// Client representa un cliente OAuth registrado por un developer.
type Client struct {
	ID           string // UUID interno
	UserID       string // dueño (developer)
	ClientID     string // identificador público: kg_client_<24 chars>
	SecretHash   string // argon2id PHC; el plaintext se muestra una sola vez
	Name         string
	Description  string
	LogoURL      string
	RedirectURIs []string
	Scopes       []string
	GrantTypes   []string
	Confidential bool
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AllowsGrant verifica si el grant type está permitido para este client.
func (c *Client) AllowsGrant(gt string) bool {
	for _, g := range c.GrantTypes {
		if strings.EqualFold(g, gt) {
			return true
		}
	}
	return false
}

// AllowsRedirectURI verifica match exacto contra las URIs registradas.
func (c *Client) AllowsRedirectURI(uri string) bool {
	for _, ru := range c.RedirectURIs {
		if ru == uri {
			return true
		}
	}
	return false
}

// ClientRepository define operaciones de persistencia sobre OAuth clients.
type ClientRepository interface {
	// Create persiste un client nuevo.
	// Retorna ErrConflict si el client_id ya existe.
	Create(ctx context.Context, c *Client) error

	// GetByID busca por UUID interno. Retorna ErrNotFound si no existe.
	GetByID(ctx context.Context, id string) (*Client, error)

	// GetByClientID busca por client_id público, activo o no.
	GetByClientID(ctx context.Context, clientID string) (*Client, error)

	// GetActiveByClientID busca por client_id público, solo clients activos.
	GetActiveByClientID(ctx context.Context, clientID string) (*Client, error)

	// ListByUser lista los clients de un developer.
	ListByUser(ctx context.Context, userID string) ([]Client, error)

	// CountByUser cuenta los clients de un developer (para el quota check).
	CountByUser(ctx context.Context, userID string) (int, error)

	// Update persiste los campos mutables de un client existente.
	Update(ctx context.Context, c *Client) error

	// UpdateSecretHash reemplaza el hash del secret (rotación).
	// El secret anterior queda inválido de inmediato.
	UpdateSecretHash(ctx context.Context, id, secretHash string) error

	// Deactivate marca el client como inactivo (soft delete).
	Deactivate(ctx context.Context, id string) error

	// Delete elimina el client definitivamente.
	Delete(ctx context.Context, id string) error
}
