package pg

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/keygate/internal/domain/repository"
)

type webhookRepo struct{ pool *pgxpool.Pool }

const webhookCols = `id, user_id, client_id, url, secret, events, active, created_at, updated_at`

func scanWebhook(row interface{ Scan(...any) error }) (*repository.Webhook, error) {
	var w repository.Webhook
	err := row.Scan(&w.ID, &w.UserID, &w.ClientID, &w.URL, &w.Secret, &w.Events,
		&w.Active, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &w, nil
}

func (r *webhookRepo) Create(ctx context.Context, w *repository.Webhook) error {
	const q = `
		INSERT INTO webhook (id, user_id, client_id, url, secret, events, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at, updated_at`
	err := r.pool.QueryRow(ctx, q,
		w.ID, w.UserID, w.ClientID, w.URL, w.Secret, w.Events, w.Active,
	).Scan(&w.CreatedAt, &w.UpdatedAt)
	return mapErr(err)
}

func (r *webhookRepo) GetByID(ctx context.Context, id string) (*repository.Webhook, error) {
	const q = `SELECT ` + webhookCols + ` FROM webhook WHERE id = $1`
	return scanWebhook(r.pool.QueryRow(ctx, q, id))
}

func (r *webhookRepo) ListByClient(ctx context.Context, clientID string) ([]repository.Webhook, error) {
	const q = `SELECT ` + webhookCols + ` FROM webhook WHERE client_id = $1 ORDER BY created_at DESC`
	return r.list(ctx, q, clientID)
}

func (r *webhookRepo) CountByClient(ctx context.Context, clientID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM webhook WHERE client_id = $1`, clientID).Scan(&n)
	return n, err
}

func (r *webhookRepo) ListActiveByClientAndEvent(ctx context.Context, clientID, event string) ([]repository.Webhook, error) {
	const q = `SELECT ` + webhookCols + ` FROM webhook
		WHERE client_id = $1 AND active AND $2 = ANY(events)
		ORDER BY created_at`
	return r.list(ctx, q, clientID, event)
}

func (r *webhookRepo) list(ctx context.Context, q string, args ...any) ([]repository.Webhook, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []repository.Webhook
	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}

func (r *webhookRepo) Update(ctx context.Context, w *repository.Webhook) error {
	const q = `
		UPDATE webhook SET url=$2, events=$3, active=$4, updated_at=now()
		WHERE id = $1
		RETURNING updated_at`
	err := r.pool.QueryRow(ctx, q, w.ID, w.URL, w.Events, w.Active).Scan(&w.UpdatedAt)
	return mapErr(err)
}

func (r *webhookRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM webhook WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
