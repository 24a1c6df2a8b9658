// Package oauth contiene los services del core OAuth2.
package oauth

import (
	"context"
	"errors"
)

// TokenService handles OAuth2 token endpoint logic.
type TokenService interface {
	// ExchangeAuthorizationCode handles grant_type=authorization_code (PKCE)
	ExchangeAuthorizationCode(ctx context.Context, req AuthCodeRequest) (*TokenResponse, error)

	// ExchangeClientCredentials handles grant_type=client_credentials (M2M)
	ExchangeClientCredentials(ctx context.Context, req ClientCredentialsRequest) (*TokenResponse, error)

	// ExchangeRefreshToken handles grant_type=refresh_token (rotation)
	ExchangeRefreshToken(ctx context.Context, req RefreshTokenRequest) (*TokenResponse, error)
}

// AuthCodeRequest contains parameters for authorization_code grant.
type AuthCodeRequest struct {
	Code         string
	RedirectURI  string
	ClientID     string
	ClientSecret string
	CodeVerifier string
}

// ClientCredentialsRequest contains parameters for client_credentials grant.
type ClientCredentialsRequest struct {
	ClientID     string
	ClientSecret string
	Scope        string
}

// RefreshTokenRequest contains parameters for refresh_token grant.
type RefreshTokenRequest struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	Scope        string
}

// TokenResponse is the standard OAuth2 token response.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// Token endpoint errors (OAuth2 standard).
var (
	ErrTokenInvalidRequest       = errors.New("invalid_request")
	ErrTokenInvalidClient        = errors.New("invalid_client")
	ErrTokenInvalidGrant         = errors.New("invalid_grant")
	ErrTokenUnauthorizedClient   = errors.New("unauthorized_client")
	ErrTokenUnsupportedGrantType = errors.New("unsupported_grant_type")
	ErrTokenInvalidScope         = errors.New("invalid_scope")
	ErrTokenServerError          = errors.New("server_error")
)

// EventPublisher es el punto de enganche hacia el delivery engine de
// webhooks. Publish no bloquea sobre el resultado de las entregas.
type EventPublisher interface {
	Publish(ctx context.Context, clientID, event string, data map[string]any)
}

// NopPublisher descarta eventos. Para tests y para correr sin webhooks.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, string, map[string]any) {}
