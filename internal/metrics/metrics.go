package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Métricas Prometheus del core OAuth. Paquete standalone para evitar ciclos
// de import entre services, webhook y HTTP.

var (
	TokensIssued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oauth_tokens_issued_total",
		Help: "Access tokens emitidos, por grant type",
	}, []string{"grant_type"})

	TokensRevoked = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "oauth_tokens_revoked_total",
		Help: "Tokens revocados vía /oauth/revoke o cascada",
	})

	GrantFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oauth_grant_failures_total",
		Help: "Solicitudes de token rechazadas, por error RFC 6749",
	}, []string{"error"})

	WebhookDeliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_deliveries_total",
		Help: "Resultados de entrega de webhooks",
	}, []string{"status"})

	WebhookDeliveryLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "webhook_delivery_latency_ms",
		Help:    "Latencia del POST de entrega en milisegundos",
		Buckets: prometheus.ExponentialBuckets(1, 2, 14),
	})

	SweeperPurged = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sweeper_rows_purged_total",
		Help: "Filas eliminadas por el sweeper, por tabla",
	}, []string{"table"})
)

// Register registra las métricas en el registry dado (o el default si es nil).
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{
		TokensIssued,
		TokensRevoked,
		GrantFailures,
		WebhookDeliveries,
		WebhookDeliveryLatency,
		SweeperPurged,
	} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
