package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/keygate/internal/domain/repository"
	"github.com/dropDatabas3/keygate/internal/metrics"
	"github.com/dropDatabas3/keygate/internal/observability/logger"
)

// Headers de entrega.
const (
	HeaderSignature = "X-Keygate-Signature"
	HeaderEvent     = "X-Keygate-Event"
	HeaderDelivery  = "X-Keygate-Delivery"
)

const maxResponseBody = 1 << 10 // lo que guardamos del body de respuesta

// Config del engine.
type Config struct {
	Timeout     time.Duration // por intento de POST
	BaseDelay   time.Duration // backoff base; se duplica por intento
	MaxAttempts int           // al agotarse, estado abandoned
}

// Engine firma, envía, registra y reintenta callbacks de webhooks.
type Engine struct {
	webhooks    repository.WebhookRepository
	deliveries  repository.DeliveryRepository
	httpc       *http.Client
	baseDelay   time.Duration
	maxAttempts int
}

// NewEngine crea el engine con sus repos y tuning.
func NewEngine(webhooks repository.WebhookRepository, deliveries repository.DeliveryRepository, cfg Config) *Engine {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	base := cfg.BaseDelay
	if base <= 0 {
		base = time.Minute
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	return &Engine{
		webhooks:    webhooks,
		deliveries:  deliveries,
		httpc:       &http.Client{Timeout: timeout},
		baseDelay:   base,
		maxAttempts: attempts,
	}
}

// Publish despacha el evento sin bloquear al productor: el fan-out corre en
// background desacoplado de la cancelación del request.
func (e *Engine) Publish(ctx context.Context, clientID, event string, data map[string]any) {
	go func() {
		bg := context.WithoutCancel(ctx)
		if err := e.Dispatch(bg, clientID, event, data); err != nil {
			logger.From(bg).Warn("webhook dispatch failed",
				logger.Event(event), logger.Err(err))
		}
	}()
}

// Dispatch hace el fan-out sincrónico: una entrega por suscripción activa
// del client suscripta al evento, todas concurrentes, barrera all-complete.
// El fracaso de una entrega jamás corta a sus hermanas.
func (e *Engine) Dispatch(ctx context.Context, clientID, event string, data map[string]any) error {
	log := logger.From(ctx).With(logger.Layer("webhook"), logger.Op("dispatch"), logger.Event(event))

	subs, err := e.webhooks.ListActiveByClientAndEvent(ctx, clientID, event)
	if err != nil {
		return err
	}
	if len(subs) == 0 {
		return nil
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := range subs {
		sub := subs[i]
		g.Go(func() error {
			// La fila nace con next_retry_at ya programado: si el proceso
			// muere antes de persistir el resultado del primer intento, el
			// sweep de reintentos la retoma en vez de dejarla pending para
			// siempre. El Update del intento lo pisa con el valor real.
			firstRetry := time.Now().Add(e.baseDelay)
			d := &repository.WebhookDelivery{
				ID:          uuid.NewString(),
				WebhookID:   sub.ID,
				Event:       event,
				Payload:     payload,
				Status:      repository.DeliveryPending,
				NextRetryAt: &firstRetry,
			}
			if err := e.deliveries.Create(gctx, d); err != nil {
				log.Error("delivery record create failed",
					logger.WebhookID(sub.ID), logger.Err(err))
				return nil
			}
			e.attempt(gctx, &sub, d)
			// Nunca propagamos el error: dominios de falla independientes.
			return nil
		})
	}
	return g.Wait()
}

// attempt ejecuta UN intento de entrega y persiste el resultado.
func (e *Engine) attempt(ctx context.Context, sub *repository.Webhook, d *repository.WebhookDelivery) {
	log := logger.From(ctx).With(
		logger.Layer("webhook"),
		logger.WebhookID(sub.ID),
		logger.DeliveryID(d.ID),
		logger.Event(d.Event),
	)

	body, err := envelope(d.Event, d.Payload)
	if err != nil {
		log.Error("envelope marshal failed", logger.Err(err))
		return
	}

	d.Attempts++

	start := time.Now()
	status, respBody, err := e.post(ctx, sub, d, body)
	metrics.WebhookDeliveryLatency.Observe(float64(time.Since(start).Milliseconds()))

	if err == nil && status >= 200 && status < 300 {
		now := time.Now()
		d.Status = repository.DeliveryDelivered
		d.HTTPStatus = &status
		d.ResponseBody = respBody
		d.NextRetryAt = nil
		d.DeliveredAt = &now
		metrics.WebhookDeliveries.WithLabelValues(repository.DeliveryDelivered).Inc()
		log.Info("delivered", logger.Status(status), logger.Attempt(d.Attempts))
	} else {
		if status > 0 {
			d.HTTPStatus = &status
		}
		d.ResponseBody = respBody
		if d.Attempts >= e.maxAttempts {
			d.Status = repository.DeliveryAbandoned
			d.NextRetryAt = nil
			metrics.WebhookDeliveries.WithLabelValues(repository.DeliveryAbandoned).Inc()
			log.Warn("abandoned after max attempts", logger.Attempt(d.Attempts), logger.Err(err))
		} else {
			next := time.Now().Add(e.backoff(d.Attempts))
			d.Status = repository.DeliveryFailed
			d.NextRetryAt = &next
			metrics.WebhookDeliveries.WithLabelValues(repository.DeliveryFailed).Inc()
			log.Warn("attempt failed, scheduled retry",
				logger.Attempt(d.Attempts), logger.Status(status), logger.Err(err))
		}
	}

	if err := e.deliveries.Update(ctx, d); err != nil {
		log.Error("delivery record update failed", logger.Err(err))
	}
}

// post arma y ejecuta el POST firmado. Retorna status (0 en error de red)
// y el body de respuesta truncado.
func (e *Engine) post(ctx context.Context, sub *repository.Webhook, d *repository.WebhookDelivery, body []byte) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.URL, bytes.NewReader(body))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "keygate-webhook/1.0")
	req.Header.Set(HeaderSignature, Sign(sub.Secret, body))
	req.Header.Set(HeaderEvent, d.Event)
	req.Header.Set(HeaderDelivery, d.ID)

	resp, err := e.httpc.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	return resp.StatusCode, string(b), nil
}

// backoff: base * 2^(attempts-1). Con base 60s: 60s, 120s, 240s...
func (e *Engine) backoff(attempts int) time.Duration {
	d := e.baseDelay
	for i := 1; i < attempts; i++ {
		d *= 2
	}
	return d
}

// envelope arma el body definitivo {event, timestamp, data}. El timestamp es
// del intento, no del evento: cada reintento viaja re-firmado.
func envelope(event string, payload []byte) ([]byte, error) {
	return json.Marshal(struct {
		Event     string          `json:"event"`
		Timestamp string          `json:"timestamp"`
		Data      json.RawMessage `json:"data"`
	}{
		Event:     event,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data:      payload,
	})
}
