// Package developer contiene los services del portal de developers:
// CRUD de OAuth clients y webhooks, siempre bajo sesión first-party.
package developer

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/keygate/internal/cache"
	"github.com/dropDatabas3/keygate/internal/domain/repository"
	"github.com/dropDatabas3/keygate/internal/observability/logger"
	"github.com/dropDatabas3/keygate/internal/security/password"
	tokens "github.com/dropDatabas3/keygate/internal/security/token"
	"github.com/dropDatabas3/keygate/internal/validation"
)

// Errores del portal.
var (
	ErrNotFound      = errors.New("not_found")
	ErrForbidden     = errors.New("forbidden")
	ErrQuotaExceeded = errors.New("quota_exceeded")
	ErrValidation    = errors.New("validation")
	ErrServer        = errors.New("server_error")
)

// ClientInput son los campos editables de un client.
type ClientInput struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	LogoURL      string   `json:"logo_url"`
	RedirectURIs []string `json:"redirect_uris"`
	Scopes       []string `json:"scopes"`
	GrantTypes   []string `json:"grant_types"`
	Confidential *bool    `json:"confidential,omitempty"`
	Active       *bool    `json:"active,omitempty"`
}

// ClientInfo es la vista pública de un client (nunca incluye el secret).
type ClientInfo struct {
	ID           string    `json:"id"`
	ClientID     string    `json:"client_id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	LogoURL      string    `json:"logo_url,omitempty"`
	RedirectURIs []string  `json:"redirect_uris"`
	Scopes       []string  `json:"scopes"`
	GrantTypes   []string  `json:"grant_types"`
	Confidential bool      `json:"confidential"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ClientWithSecret agrega el secret en claro. Solo viaja en register/rotate.
type ClientWithSecret struct {
	ClientInfo
	ClientSecret string `json:"client_secret"`
}

// ClientService gestiona los OAuth clients de un developer.
type ClientService interface {
	Register(ctx context.Context, userID string, in ClientInput) (*ClientWithSecret, error)
	Get(ctx context.Context, userID, id string) (*ClientInfo, error)
	List(ctx context.Context, userID string) ([]ClientInfo, error)
	Update(ctx context.Context, userID, id string, in ClientInput) (*ClientInfo, error)
	RotateSecret(ctx context.Context, userID, id string) (*ClientWithSecret, error)
	Delete(ctx context.Context, userID, id string) error
}

// EventPublisher replica la interfaz del engine de webhooks. Publish
// despacha en background; Dispatch bloquea hasta completar el fan-out, para
// los eventos que deben salir antes de que sus suscripciones desaparezcan.
type EventPublisher interface {
	Publish(ctx context.Context, clientID, event string, data map[string]any)
	Dispatch(ctx context.Context, clientID, event string, data map[string]any) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, string, map[string]any) {}

func (nopPublisher) Dispatch(context.Context, string, string, map[string]any) error { return nil }

// ClientDeps contains dependencies for the client service.
type ClientDeps struct {
	Clients repository.ClientRepository
	Cache   cache.Client
	Events  EventPublisher
}

type clientService struct {
	clients repository.ClientRepository
	cache   cache.Client
	events  EventPublisher
}

// NewClientService creates a new ClientService.
func NewClientService(d ClientDeps) ClientService {
	ev := d.Events
	if ev == nil {
		ev = nopPublisher{}
	}
	return &clientService{clients: d.Clients, cache: d.Cache, events: ev}
}

// validateInput chequea los campos del client. Todos los caminos de escritura
// pasan por acá.
func validateInput(in *ClientInput) error {
	if in.Name == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if len(in.RedirectURIs) > repository.MaxRedirectURIs {
		return fmt.Errorf("%w: at most %d redirect URIs", ErrValidation, repository.MaxRedirectURIs)
	}
	for _, ru := range in.RedirectURIs {
		u, err := url.Parse(ru)
		if err != nil || !u.IsAbs() || (u.Scheme != "https" && u.Scheme != "http") {
			return fmt.Errorf("%w: invalid redirect URI %q", ErrValidation, ru)
		}
	}
	for _, sc := range in.Scopes {
		if !validation.ValidScopeName(sc) {
			return fmt.Errorf("%w: invalid scope name %q", ErrValidation, sc)
		}
	}
	if len(in.GrantTypes) == 0 {
		in.GrantTypes = []string{repository.GrantAuthorizationCode, repository.GrantRefreshToken}
	}
	for _, gt := range in.GrantTypes {
		if !repository.ValidGrantType(gt) {
			return fmt.Errorf("%w: unsupported grant type %q", ErrValidation, gt)
		}
	}
	return nil
}

func toInfo(c *repository.Client) *ClientInfo {
	return &ClientInfo{
		ID:           c.ID,
		ClientID:     c.ClientID,
		Name:         c.Name,
		Description:  c.Description,
		LogoURL:      c.LogoURL,
		RedirectURIs: c.RedirectURIs,
		Scopes:       c.Scopes,
		GrantTypes:   c.GrantTypes,
		Confidential: c.Confidential,
		Active:       c.Active,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

// owned carga el client y verifica pertenencia.
func (s *clientService) owned(ctx context.Context, userID, id string) (*repository.Client, error) {
	c, err := s.clients.GetByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, ErrServer
	}
	if c.UserID != userID {
		return nil, ErrForbidden
	}
	return c, nil
}

func (s *clientService) invalidate(ctx context.Context, clientID string) {
	if s.cache != nil {
		_ = s.cache.Delete(ctx, "client:"+clientID)
	}
}

func (s *clientService) Register(ctx context.Context, userID string, in ClientInput) (*ClientWithSecret, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("developer.clients.register"))

	if err := validateInput(&in); err != nil {
		return nil, err
	}

	n, err := s.clients.CountByUser(ctx, userID)
	if err != nil {
		log.Error("quota check failed", logger.Err(err))
		return nil, ErrServer
	}
	if n >= repository.MaxClientsPerUser {
		return nil, ErrQuotaExceeded
	}

	suffix, err := tokens.GenerateCredential(repository.ClientIDLength)
	if err != nil {
		return nil, ErrServer
	}
	secret, err := tokens.GenerateCredential(repository.ClientSecretLength)
	if err != nil {
		return nil, ErrServer
	}
	hash, err := password.Hash(password.Default, secret)
	if err != nil {
		log.Error("secret hash failed", logger.Err(err))
		return nil, ErrServer
	}

	confidential := true
	if in.Confidential != nil {
		confidential = *in.Confidential
	}
	c := &repository.Client{
		ID:           uuid.NewString(),
		UserID:       userID,
		ClientID:     repository.ClientIDPrefix + suffix,
		SecretHash:   hash,
		Name:         in.Name,
		Description:  in.Description,
		LogoURL:      in.LogoURL,
		RedirectURIs: in.RedirectURIs,
		Scopes:       in.Scopes,
		GrantTypes:   in.GrantTypes,
		Confidential: confidential,
		Active:       true,
	}
	if err := s.clients.Create(ctx, c); err != nil {
		log.Error("client create failed", logger.Err(err))
		return nil, ErrServer
	}

	log.Info("client registered", logger.ClientID(c.ClientID), logger.UserID(userID))
	return &ClientWithSecret{ClientInfo: *toInfo(c), ClientSecret: secret}, nil
}

func (s *clientService) Get(ctx context.Context, userID, id string) (*ClientInfo, error) {
	c, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return toInfo(c), nil
}

func (s *clientService) List(ctx context.Context, userID string) ([]ClientInfo, error) {
	cs, err := s.clients.ListByUser(ctx, userID)
	if err != nil {
		return nil, ErrServer
	}
	out := make([]ClientInfo, 0, len(cs))
	for i := range cs {
		out = append(out, *toInfo(&cs[i]))
	}
	return out, nil
}

func (s *clientService) Update(ctx context.Context, userID, id string, in ClientInput) (*ClientInfo, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("developer.clients.update"))

	c, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := validateInput(&in); err != nil {
		return nil, err
	}

	c.Name = in.Name
	c.Description = in.Description
	c.LogoURL = in.LogoURL
	c.RedirectURIs = in.RedirectURIs
	c.Scopes = in.Scopes
	c.GrantTypes = in.GrantTypes
	if in.Active != nil {
		c.Active = *in.Active
	}
	if err := s.clients.Update(ctx, c); err != nil {
		log.Error("client update failed", logger.Err(err))
		return nil, ErrServer
	}
	s.invalidate(ctx, c.ClientID)

	s.events.Publish(ctx, c.ID, repository.EventClientUpdated, map[string]any{
		"client_id": c.ClientID,
		"name":      c.Name,
		"active":    c.Active,
	})
	log.Info("client updated", logger.ClientID(c.ClientID))
	return toInfo(c), nil
}

func (s *clientService) RotateSecret(ctx context.Context, userID, id string) (*ClientWithSecret, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("developer.clients.rotate_secret"))

	c, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	secret, err := tokens.GenerateCredential(repository.ClientSecretLength)
	if err != nil {
		return nil, ErrServer
	}
	hash, err := password.Hash(password.Default, secret)
	if err != nil {
		return nil, ErrServer
	}
	// El hash nuevo pisa al viejo: el secret anterior muere acá mismo.
	if err := s.clients.UpdateSecretHash(ctx, c.ID, hash); err != nil {
		log.Error("secret rotation failed", logger.Err(err))
		return nil, ErrServer
	}
	s.invalidate(ctx, c.ClientID)

	log.Info("client secret rotated", logger.ClientID(c.ClientID))
	return &ClientWithSecret{ClientInfo: *toInfo(c), ClientSecret: secret}, nil
}

func (s *clientService) Delete(ctx context.Context, userID, id string) error {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("developer.clients.delete"))

	c, err := s.owned(ctx, userID, id)
	if err != nil {
		return err
	}

	// El evento sale sincrónico y antes del DELETE: el fan-out necesita las
	// suscripciones que el ON DELETE CASCADE va a borrar, así que no puede
	// correr en background contra el borrado.
	if err := s.events.Dispatch(ctx, c.ID, repository.EventClientDeleted, map[string]any{
		"client_id": c.ClientID,
		"name":      c.Name,
	}); err != nil {
		log.Warn("client.deleted dispatch failed", logger.Err(err))
	}

	if err := s.clients.Delete(ctx, c.ID); err != nil {
		log.Error("client delete failed", logger.Err(err))
		return ErrServer
	}
	s.invalidate(ctx, c.ClientID)

	log.Info("client deleted", logger.ClientID(c.ClientID))
	return nil
}
