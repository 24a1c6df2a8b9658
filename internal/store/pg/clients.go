package pg

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/keygate/internal/domain/repository"
)

type clientRepo struct{ pool *pgxpool.Pool }

const clientCols = `id, user_id, client_id, secret_hash, name, description, logo_url,
	redirect_uris, scopes, grant_types, confidential, active, created_at, updated_at`

func scanClient(row interface{ Scan(...any) error }) (*repository.Client, error) {
	var c repository.Client
	err := row.Scan(
		&c.ID, &c.UserID, &c.ClientID, &c.SecretHash, &c.Name, &c.Description, &c.LogoURL,
		&c.RedirectURIs, &c.Scopes, &c.GrantTypes, &c.Confidential, &c.Active,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	return &c, nil
}

func (r *clientRepo) Create(ctx context.Context, c *repository.Client) error {
	const q = `
		INSERT INTO oauth_client
			(id, user_id, client_id, secret_hash, name, description, logo_url,
			 redirect_uris, scopes, grant_types, confidential, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING created_at, updated_at`
	err := r.pool.QueryRow(ctx, q,
		c.ID, c.UserID, c.ClientID, c.SecretHash, c.Name, c.Description, c.LogoURL,
		c.RedirectURIs, c.Scopes, c.GrantTypes, c.Confidential, c.Active,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	return mapErr(err)
}

func (r *clientRepo) GetByID(ctx context.Context, id string) (*repository.Client, error) {
	const q = `SELECT ` + clientCols + ` FROM oauth_client WHERE id = $1`
	return scanClient(r.pool.QueryRow(ctx, q, id))
}

func (r *clientRepo) GetByClientID(ctx context.Context, clientID string) (*repository.Client, error) {
	const q = `SELECT ` + clientCols + ` FROM oauth_client WHERE client_id = $1`
	return scanClient(r.pool.QueryRow(ctx, q, clientID))
}

func (r *clientRepo) GetActiveByClientID(ctx context.Context, clientID string) (*repository.Client, error) {
	const q = `SELECT ` + clientCols + ` FROM oauth_client WHERE client_id = $1 AND active`
	return scanClient(r.pool.QueryRow(ctx, q, clientID))
}

func (r *clientRepo) ListByUser(ctx context.Context, userID string) ([]repository.Client, error) {
	const q = `SELECT ` + clientCols + ` FROM oauth_client WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []repository.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r *clientRepo) CountByUser(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM oauth_client WHERE user_id = $1`, userID).Scan(&n)
	return n, err
}

func (r *clientRepo) Update(ctx context.Context, c *repository.Client) error {
	const q = `
		UPDATE oauth_client
		SET name=$2, description=$3, logo_url=$4, redirect_uris=$5, scopes=$6,
		    grant_types=$7, active=$8, updated_at=now()
		WHERE id = $1
		RETURNING updated_at`
	err := r.pool.QueryRow(ctx, q,
		c.ID, c.Name, c.Description, c.LogoURL, c.RedirectURIs, c.Scopes,
		c.GrantTypes, c.Active,
	).Scan(&c.UpdatedAt)
	return mapErr(err)
}

func (r *clientRepo) UpdateSecretHash(ctx context.Context, id, secretHash string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE oauth_client SET secret_hash=$2, updated_at=now() WHERE id=$1`, id, secretHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *clientRepo) Deactivate(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE oauth_client SET active=false, updated_at=now() WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *clientRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM oauth_client WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
