package repository

import (
	"context"
	"time"
)

// Eventos de webhook soportados (set cerrado).
const (
	EventTokenCreated        = "token.created"
	EventTokenRevoked        = "token.revoked"
	EventClientUpdated       = "client.updated"
	EventClientDeleted       = "client.deleted"
	EventAuthorizationGrant  = "authorization.granted"
	EventAuthorizationDenied = "authorization.denied"
)

// WebhookEvents retorna el set de eventos suscribibles en orden canónico.
func WebhookEvents() []string {
	return []string{
		EventTokenCreated,
		EventTokenRevoked,
		EventClientUpdated,
		EventClientDeleted,
		EventAuthorizationGrant,
		EventAuthorizationDenied,
	}
}

// ValidWebhookEvent verifica que el evento pertenezca al set cerrado.
func ValidWebhookEvent(event string) bool {
	for _, e := range WebhookEvents() {
		if e == event {
			return true
		}
	}
	return false
}

// Límites de webhooks.
const (
	MaxWebhooksPerClient = 5
	WebhookSecretLength  = 32
)

// Estados de una entrega de webhook.
const (
	DeliveryPending   = "pending"
	DeliveryDelivered = "delivered"
	DeliveryFailed    = "failed"
	DeliveryAbandoned = "abandoned"
)

// Webhook es una suscripción de un client a eventos de su cuenta.
// El secret HMAC se guarda en claro porque el engine lo necesita para firmar
// cada entrega; se muestra al developer una sola vez.
type Webhook struct {
	ID        string
	UserID    string
	ClientID  string // UUID interno del client
	URL       string
	Secret    string
	Events    []string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Subscribed verifica si el webhook está suscripto al evento.
func (w *Webhook) Subscribed(event string) bool {
	for _, e := range w.Events {
		if e == event {
			return true
		}
	}
	return false
}

// WebhookDelivery es una serie de intentos de entrega de un evento a un webhook.
type WebhookDelivery struct {
	ID           string
	WebhookID    string
	Event        string
	Payload      []byte // JSON del campo data
	Status       string // pending | delivered | failed | abandoned
	HTTPStatus   *int
	ResponseBody string
	Attempts     int
	NextRetryAt  *time.Time
	DeliveredAt  *time.Time
	CreatedAt    time.Time
}

// WebhookRepository define operaciones sobre suscripciones.
type WebhookRepository interface {
	Create(ctx context.Context, w *Webhook) error

	// GetByID busca por UUID. Retorna ErrNotFound si no existe.
	GetByID(ctx context.Context, id string) (*Webhook, error)

	// ListByClient lista todas las suscripciones de un client.
	ListByClient(ctx context.Context, clientID string) ([]Webhook, error)

	// CountByClient cuenta suscripciones de un client (quota check).
	CountByClient(ctx context.Context, clientID string) (int, error)

	// ListActiveByClientAndEvent lista suscripciones activas de un client
	// que incluyen el evento dado.
	ListActiveByClientAndEvent(ctx context.Context, clientID, event string) ([]Webhook, error)

	// Update persiste URL, events y active.
	Update(ctx context.Context, w *Webhook) error

	Delete(ctx context.Context, id string) error
}

// DeliveryRepository define operaciones sobre entregas.
type DeliveryRepository interface {
	Create(ctx context.Context, d *WebhookDelivery) error

	// GetByID busca por UUID. Retorna ErrNotFound si no existe.
	GetByID(ctx context.Context, id string) (*WebhookDelivery, error)

	// Update persiste el resultado de un intento: status, http_status,
	// response_body, attempts, next_retry_at, delivered_at.
	Update(ctx context.Context, d *WebhookDelivery) error

	// ListByWebhook lista entregas de un webhook, más recientes primero.
	ListByWebhook(ctx context.Context, webhookID string, limit int) ([]WebhookDelivery, error)

	// ClaimDue toma entregas pending/failed cuyo next_retry_at ya pasó y
	// corre su next_retry_at a now+lease en la misma operación, de modo que
	// sweeps solapados nunca reclaman la misma fila. Si el runner muere con
	// la entrega reclamada, el lease vence y otro sweep la retoma.
	ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]WebhookDelivery, error)

	// DeleteOlderThan elimina entregas terminales anteriores al corte
	// (retención). Retorna la cantidad eliminada.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
