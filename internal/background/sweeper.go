// Package background corre las tareas periódicas del servidor: la purga de
// registros muertos y el reintento de deliveries de webhooks.
package background

import (
	"context"
	"time"

	"github.com/dropDatabas3/keygate/internal/domain/repository"
	"github.com/dropDatabas3/keygate/internal/metrics"
	"github.com/dropDatabas3/keygate/internal/observability/logger"
	"github.com/dropDatabas3/keygate/internal/webhook"
)

// Config controla los intervalos del sweeper.
type Config struct {
	// Interval es el periodo entre purgas de codes y tokens muertos.
	Interval time.Duration
	// RetryInterval es el periodo entre pasadas de reintento de deliveries.
	RetryInterval time.Duration
	// DeliveryRetention define cuánto se conserva el historial de deliveries
	// terminales antes de purgarlo.
	DeliveryRetention time.Duration
}

// Sweeper purga registros vencidos y despacha los reintentos pendientes.
// La expiración real de codes y tokens la deciden las queries de lectura;
// borrar las filas muertas es solo higiene del store.
type Sweeper struct {
	codes      repository.CodeRepository
	access     repository.AccessTokenRepository
	refresh    repository.RefreshTokenRepository
	deliveries repository.DeliveryRepository
	engine     *webhook.Engine
	cfg        Config
}

// NewSweeper creates the sweeper. Intervalos en cero toman un default sano.
func NewSweeper(
	codes repository.CodeRepository,
	access repository.AccessTokenRepository,
	refresh repository.RefreshTokenRepository,
	deliveries repository.DeliveryRepository,
	engine *webhook.Engine,
	cfg Config,
) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 15 * time.Second
	}
	if cfg.DeliveryRetention <= 0 {
		cfg.DeliveryRetention = 30 * 24 * time.Hour
	}
	return &Sweeper{
		codes:      codes,
		access:     access,
		refresh:    refresh,
		deliveries: deliveries,
		engine:     engine,
		cfg:        cfg,
	}
}

// Run bloquea hasta que el context se cancele. Corre la purga y los
// reintentos en sus propios tickers.
func (s *Sweeper) Run(ctx context.Context) {
	log := logger.L().With(logger.Layer("background"), logger.Op("sweeper"))
	log.Info("sweeper started",
		logger.Any("interval", s.cfg.Interval.String()),
		logger.Any("retry_interval", s.cfg.RetryInterval.String()),
	)

	purge := time.NewTicker(s.cfg.Interval)
	retry := time.NewTicker(s.cfg.RetryInterval)
	defer purge.Stop()
	defer retry.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("sweeper stopped")
			return
		case <-purge.C:
			s.purge(ctx)
		case <-retry.C:
			s.retryDeliveries(ctx)
		}
	}
}

// purge borra codes usados o vencidos, tokens muertos y el historial viejo
// de deliveries.
func (s *Sweeper) purge(ctx context.Context) {
	log := logger.L().With(logger.Layer("background"), logger.Op("sweeper.purge"))

	steps := []struct {
		table string
		run   func(context.Context) (int64, error)
	}{
		{"auth_code", s.codes.DeleteDead},
		{"access_token", s.access.DeleteDead},
		{"refresh_token", s.refresh.DeleteDead},
		{"webhook_delivery", func(ctx context.Context) (int64, error) {
			return s.deliveries.DeleteOlderThan(ctx, time.Now().Add(-s.cfg.DeliveryRetention))
		}},
	}

	for _, step := range steps {
		n, err := step.run(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("purge step failed", logger.Any("table", step.table), logger.Err(err))
			continue
		}
		if n > 0 {
			metrics.SweeperPurged.WithLabelValues(step.table).Add(float64(n))
			log.Info("purged dead rows", logger.Any("table", step.table), logger.Any("rows", n))
		}
	}
}

func (s *Sweeper) retryDeliveries(ctx context.Context) {
	n, err := s.engine.SweepRetries(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		logger.L().Error("delivery retry sweep failed",
			logger.Layer("background"), logger.Op("sweeper.retry"), logger.Err(err))
		return
	}
	if n > 0 {
		logger.L().Info("retried pending deliveries",
			logger.Layer("background"), logger.Op("sweeper.retry"), logger.Any("count", n))
	}
}
