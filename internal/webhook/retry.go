package webhook

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/keygate/internal/domain/repository"
	"github.com/dropDatabas3/keygate/internal/metrics"
	"github.com/dropDatabas3/keygate/internal/observability/logger"
)

const retryBatch = 100

// retryLease mantiene fuera del claim a una entrega reclamada mientras su
// intento está en vuelo. Cubre el timeout del POST con margen; si el runner
// muere a mitad de camino, al vencer el lease otro sweep la retoma.
func (e *Engine) retryLease() time.Duration {
	return e.httpc.Timeout + 30*time.Second
}

// SweepRetries reintenta las entregas vencidas. Seguro bajo corridas
// solapadas y múltiples instancias: cada fila se reclama con un UPDATE
// condicional y solo el runner que ganó el claim la intenta.
// Retorna cuántas entregas intentó.
func (e *Engine) SweepRetries(ctx context.Context) (int, error) {
	log := logger.From(ctx).With(logger.Layer("webhook"), logger.Op("retry_sweep"))

	due, err := e.deliveries.ClaimDue(ctx, time.Now(), e.retryLease(), retryBatch)
	if err != nil {
		return 0, err
	}
	if len(due) == 0 {
		return 0, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i := range due {
		d := due[i]
		g.Go(func() error {
			sub, err := e.webhooks.GetByID(gctx, d.WebhookID)
			switch {
			case repository.IsNotFound(err) || (err == nil && !sub.Active):
				// Webhook borrado o desactivado: la entrega muere acá,
				// sin más reintentos.
				d.Status = repository.DeliveryAbandoned
				d.NextRetryAt = nil
				if uerr := e.deliveries.Update(gctx, &d); uerr != nil {
					log.Error("abandon update failed",
						logger.DeliveryID(d.ID), logger.Err(uerr))
				}
				metrics.WebhookDeliveries.WithLabelValues(repository.DeliveryAbandoned).Inc()
			case err != nil:
				// Error transitorio del store: la fila queda reclamada y
				// vuelve a ser elegible cuando venza el lease.
				log.Warn("webhook lookup failed, delivery left for next sweep",
					logger.DeliveryID(d.ID), logger.Err(err))
			default:
				e.attempt(gctx, sub, &d)
			}
			return nil
		})
	}
	_ = g.Wait()

	log.Info("retry sweep completed", logger.Count(len(due)))
	return len(due), nil
}
