package pg

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/keygate/internal/domain/repository"
)

type deliveryRepo struct{ pool *pgxpool.Pool }

const deliveryCols = `id, webhook_id, event, payload, status, http_status, response_body,
	attempts, next_retry_at, delivered_at, created_at`

func scanDelivery(row interface{ Scan(...any) error }) (*repository.WebhookDelivery, error) {
	var d repository.WebhookDelivery
	err := row.Scan(&d.ID, &d.WebhookID, &d.Event, &d.Payload, &d.Status,
		&d.HTTPStatus, &d.ResponseBody, &d.Attempts, &d.NextRetryAt,
		&d.DeliveredAt, &d.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &d, nil
}

func (r *deliveryRepo) Create(ctx context.Context, d *repository.WebhookDelivery) error {
	const q = `
		INSERT INTO webhook_delivery (id, webhook_id, event, payload, status, next_retry_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at`
	err := r.pool.QueryRow(ctx, q,
		d.ID, d.WebhookID, d.Event, d.Payload, d.Status, d.NextRetryAt,
	).Scan(&d.CreatedAt)
	return mapErr(err)
}

func (r *deliveryRepo) GetByID(ctx context.Context, id string) (*repository.WebhookDelivery, error) {
	const q = `SELECT ` + deliveryCols + ` FROM webhook_delivery WHERE id = $1`
	return scanDelivery(r.pool.QueryRow(ctx, q, id))
}

func (r *deliveryRepo) Update(ctx context.Context, d *repository.WebhookDelivery) error {
	const q = `
		UPDATE webhook_delivery
		SET status=$2, http_status=$3, response_body=$4, attempts=$5,
		    next_retry_at=$6, delivered_at=$7
		WHERE id = $1`
	tag, err := r.pool.Exec(ctx, q,
		d.ID, d.Status, d.HTTPStatus, d.ResponseBody, d.Attempts,
		d.NextRetryAt, d.DeliveredAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *deliveryRepo) ListByWebhook(ctx context.Context, webhookID string, limit int) ([]repository.WebhookDelivery, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `SELECT ` + deliveryCols + ` FROM webhook_delivery
		WHERE webhook_id = $1 ORDER BY created_at DESC LIMIT $2`
	return r.list(ctx, q, webhookID, limit)
}

// ClaimDue: claim atómico de entregas con reintento vencido. SKIP LOCKED
// hace que instancias corriendo el sweep a la vez repartan filas en vez de
// pisarse; el UPDATE corre el next_retry_at como lease, así una fila
// reclamada no vuelve a ser elegible hasta que el lease venza.
func (r *deliveryRepo) ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]repository.WebhookDelivery, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `
		UPDATE webhook_delivery
		SET next_retry_at = $2
		WHERE id IN (
			SELECT id FROM webhook_delivery
			WHERE status IN ('pending','failed') AND next_retry_at IS NOT NULL AND next_retry_at <= $1
			ORDER BY next_retry_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + deliveryCols
	return r.list(ctx, q, now, now.Add(lease), limit)
}

func (r *deliveryRepo) list(ctx context.Context, q string, args ...any) ([]repository.WebhookDelivery, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []repository.WebhookDelivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (r *deliveryRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM webhook_delivery
		 WHERE status IN ('delivered','abandoned') AND created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
