package developer

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/keygate/internal/domain/repository"
	"github.com/dropDatabas3/keygate/internal/observability/logger"
	tokens "github.com/dropDatabas3/keygate/internal/security/token"
)

// WebhookInput son los campos editables de una suscripción.
type WebhookInput struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Active *bool    `json:"active,omitempty"`
}

// WebhookInfo es la vista de una suscripción (sin el secret).
type WebhookInfo struct {
	ID        string    `json:"id"`
	ClientID  string    `json:"client_id"`
	URL       string    `json:"url"`
	Events    []string  `json:"events"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WebhookWithSecret agrega el secret en claro. Solo viaja en el create.
type WebhookWithSecret struct {
	WebhookInfo
	Secret string `json:"secret"`
}

// DeliveryInfo es la vista de una entrega para el portal.
type DeliveryInfo struct {
	ID          string     `json:"id"`
	Event       string     `json:"event"`
	Status      string     `json:"status"`
	HTTPStatus  *int       `json:"http_status,omitempty"`
	Attempts    int        `json:"attempts"`
	NextRetryAt *time.Time `json:"next_retry_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// WebhookService gestiona las suscripciones de webhooks de un client.
type WebhookService interface {
	Create(ctx context.Context, userID, clientID string, in WebhookInput) (*WebhookWithSecret, error)
	List(ctx context.Context, userID, clientID string) ([]WebhookInfo, error)
	Get(ctx context.Context, userID, clientID, webhookID string) (*WebhookInfo, error)
	Update(ctx context.Context, userID, clientID, webhookID string, in WebhookInput) (*WebhookInfo, error)
	Delete(ctx context.Context, userID, clientID, webhookID string) error
	Deliveries(ctx context.Context, userID, clientID, webhookID string, limit int) ([]DeliveryInfo, error)
}

// WebhookDeps contains dependencies for the webhook service.
type WebhookDeps struct {
	Clients    repository.ClientRepository
	Webhooks   repository.WebhookRepository
	Deliveries repository.DeliveryRepository
}

type webhookService struct {
	clients    repository.ClientRepository
	webhooks   repository.WebhookRepository
	deliveries repository.DeliveryRepository
}

// NewWebhookService creates a new WebhookService.
func NewWebhookService(d WebhookDeps) WebhookService {
	return &webhookService{clients: d.Clients, webhooks: d.Webhooks, deliveries: d.Deliveries}
}

func validateWebhookInput(in *WebhookInput) error {
	u, err := url.Parse(in.URL)
	if err != nil || !u.IsAbs() || (u.Scheme != "https" && u.Scheme != "http") {
		return fmt.Errorf("%w: invalid webhook URL", ErrValidation)
	}
	if len(in.Events) == 0 {
		return fmt.Errorf("%w: at least one event is required", ErrValidation)
	}
	for _, e := range in.Events {
		if !repository.ValidWebhookEvent(e) {
			return fmt.Errorf("%w: unknown event %q", ErrValidation, e)
		}
	}
	return nil
}

func toWebhookInfo(w *repository.Webhook) *WebhookInfo {
	return &WebhookInfo{
		ID:        w.ID,
		ClientID:  w.ClientID,
		URL:       w.URL,
		Events:    w.Events,
		Active:    w.Active,
		CreatedAt: w.CreatedAt,
		UpdatedAt: w.UpdatedAt,
	}
}

// ownedClient verifica que el client exista y sea del developer.
func (s *webhookService) ownedClient(ctx context.Context, userID, clientID string) (*repository.Client, error) {
	c, err := s.clients.GetByID(ctx, clientID)
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

// ownedWebhook verifica cadena completa: webhook → client → developer.
func (s *webhookService) ownedWebhook(ctx context.Context, userID, clientID, webhookID string) (*repository.Webhook, error) {
	if _, err := s.ownedClient(ctx, userID, clientID); err != nil {
		return nil, err
	}
	w, err := s.webhooks.GetByID(ctx, webhookID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, ErrServer
	}
	if w.ClientID != clientID {
		return nil, ErrNotFound
	}
	return w, nil
}

func (s *webhookService) Create(ctx context.Context, userID, clientID string, in WebhookInput) (*WebhookWithSecret, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("developer.webhooks.create"))

	c, err := s.ownedClient(ctx, userID, clientID)
	if err != nil {
		return nil, err
	}
	if err := validateWebhookInput(&in); err != nil {
		return nil, err
	}

	n, err := s.webhooks.CountByClient(ctx, c.ID)
	if err != nil {
		log.Error("quota check failed", logger.Err(err))
		return nil, ErrServer
	}
	if n >= repository.MaxWebhooksPerClient {
		return nil, ErrQuotaExceeded
	}

	secret, err := tokens.GenerateCredential(repository.WebhookSecretLength)
	if err != nil {
		return nil, ErrServer
	}
	w := &repository.Webhook{
		ID:       uuid.NewString(),
		UserID:   userID,
		ClientID: c.ID,
		URL:      in.URL,
		Secret:   secret,
		Events:   in.Events,
		Active:   true,
	}
	if err := s.webhooks.Create(ctx, w); err != nil {
		log.Error("webhook create failed", logger.Err(err))
		return nil, ErrServer
	}

	log.Info("webhook created", logger.WebhookID(w.ID), logger.ClientID(c.ClientID))
	return &WebhookWithSecret{WebhookInfo: *toWebhookInfo(w), Secret: secret}, nil
}

func (s *webhookService) List(ctx context.Context, userID, clientID string) ([]WebhookInfo, error) {
	c, err := s.ownedClient(ctx, userID, clientID)
	if err != nil {
		return nil, err
	}
	ws, err := s.webhooks.ListByClient(ctx, c.ID)
	if err != nil {
		return nil, ErrServer
	}
	out := make([]WebhookInfo, 0, len(ws))
	for i := range ws {
		out = append(out, *toWebhookInfo(&ws[i]))
	}
	return out, nil
}

func (s *webhookService) Get(ctx context.Context, userID, clientID, webhookID string) (*WebhookInfo, error) {
	w, err := s.ownedWebhook(ctx, userID, clientID, webhookID)
	if err != nil {
		return nil, err
	}
	return toWebhookInfo(w), nil
}

func (s *webhookService) Update(ctx context.Context, userID, clientID, webhookID string, in WebhookInput) (*WebhookInfo, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("developer.webhooks.update"))

	w, err := s.ownedWebhook(ctx, userID, clientID, webhookID)
	if err != nil {
		return nil, err
	}
	if err := validateWebhookInput(&in); err != nil {
		return nil, err
	}

	w.URL = in.URL
	w.Events = in.Events
	if in.Active != nil {
		w.Active = *in.Active
	}
	if err := s.webhooks.Update(ctx, w); err != nil {
		log.Error("webhook update failed", logger.Err(err))
		return nil, ErrServer
	}
	log.Info("webhook updated", logger.WebhookID(w.ID))
	return toWebhookInfo(w), nil
}

func (s *webhookService) Delete(ctx context.Context, userID, clientID, webhookID string) error {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("developer.webhooks.delete"))

	w, err := s.ownedWebhook(ctx, userID, clientID, webhookID)
	if err != nil {
		return err
	}
	if err := s.webhooks.Delete(ctx, w.ID); err != nil {
		log.Error("webhook delete failed", logger.Err(err))
		return ErrServer
	}
	log.Info("webhook deleted", logger.WebhookID(w.ID))
	return nil
}

func (s *webhookService) Deliveries(ctx context.Context, userID, clientID, webhookID string, limit int) ([]DeliveryInfo, error) {
	w, err := s.ownedWebhook(ctx, userID, clientID, webhookID)
	if err != nil {
		return nil, err
	}
	ds, err := s.deliveries.ListByWebhook(ctx, w.ID, limit)
	if err != nil {
		return nil, ErrServer
	}
	out := make([]DeliveryInfo, 0, len(ds))
	for _, d := range ds {
		out = append(out, DeliveryInfo{
			ID:          d.ID,
			Event:       d.Event,
			Status:      d.Status,
			HTTPStatus:  d.HTTPStatus,
			Attempts:    d.Attempts,
			NextRetryAt: d.NextRetryAt,
			DeliveredAt: d.DeliveredAt,
			CreatedAt:   d.CreatedAt,
		})
	}
	return out, nil
}
