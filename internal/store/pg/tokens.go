package pg

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/keygate/internal/domain/repository"
)

type accessTokenRepo struct{ pool *pgxpool.Pool }

const accessCols = `id, token_hash, client_id, user_id, scopes, expires_at, revoked_at, created_at`

func scanAccess(row interface{ Scan(...any) error }) (*repository.AccessToken, error) {
	var t repository.AccessToken
	err := row.Scan(&t.ID, &t.TokenHash, &t.ClientID, &t.UserID, &t.Scopes,
		&t.ExpiresAt, &t.RevokedAt, &t.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &t, nil
}

func (r *accessTokenRepo) Create(ctx context.Context, t *repository.AccessToken) error {
	const q = `
		INSERT INTO access_token (id, token_hash, client_id, user_id, scopes, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at`
	err := r.pool.QueryRow(ctx, q,
		t.ID, t.TokenHash, t.ClientID, t.UserID, t.Scopes, t.ExpiresAt,
	).Scan(&t.CreatedAt)
	return mapErr(err)
}

func (r *accessTokenRepo) GetByID(ctx context.Context, id string) (*repository.AccessToken, error) {
	const q = `SELECT ` + accessCols + ` FROM access_token WHERE id = $1`
	return scanAccess(r.pool.QueryRow(ctx, q, id))
}

func (r *accessTokenRepo) GetByHash(ctx context.Context, tokenHash string) (*repository.AccessToken, error) {
	const q = `SELECT ` + accessCols + ` FROM access_token WHERE token_hash = $1`
	return scanAccess(r.pool.QueryRow(ctx, q, tokenHash))
}

func (r *accessTokenRepo) GetValidByHash(ctx context.Context, tokenHash string) (*repository.AccessToken, error) {
	const q = `SELECT ` + accessCols + ` FROM access_token
		WHERE token_hash = $1 AND revoked_at IS NULL AND expires_at > now()`
	return scanAccess(r.pool.QueryRow(ctx, q, tokenHash))
}

// Revoke es idempotente: revocar dos veces deja revoked_at del primer intento.
func (r *accessTokenRepo) Revoke(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE access_token SET revoked_at = now() WHERE id = $1 AND revoked_at IS NULL`, id)
	return err
}

func (r *accessTokenRepo) DeleteDead(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM access_token WHERE revoked_at IS NOT NULL OR expires_at <= now()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

type refreshTokenRepo struct{ pool *pgxpool.Pool }

const refreshCols = `id, token_hash, access_token_id, client_id, user_id, expires_at, revoked_at, created_at`

func scanRefresh(row interface{ Scan(...any) error }) (*repository.RefreshToken, error) {
	var t repository.RefreshToken
	err := row.Scan(&t.ID, &t.TokenHash, &t.AccessTokenID, &t.ClientID, &t.UserID,
		&t.ExpiresAt, &t.RevokedAt, &t.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &t, nil
}

func (r *refreshTokenRepo) Create(ctx context.Context, t *repository.RefreshToken) error {
	const q = `
		INSERT INTO refresh_token (id, token_hash, access_token_id, client_id, user_id, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at`
	err := r.pool.QueryRow(ctx, q,
		t.ID, t.TokenHash, t.AccessTokenID, t.ClientID, t.UserID, t.ExpiresAt,
	).Scan(&t.CreatedAt)
	return mapErr(err)
}

func (r *refreshTokenRepo) GetByHash(ctx context.Context, tokenHash string) (*repository.RefreshToken, error) {
	const q = `SELECT ` + refreshCols + ` FROM refresh_token WHERE token_hash = $1`
	return scanRefresh(r.pool.QueryRow(ctx, q, tokenHash))
}

// Revoke condicional: el bool dice si ESTA llamada efectuó la revocación.
// En una rotación concurrente ambas llamadas llegan acá y exactamente una
// recibe rows affected = 1.
func (r *refreshTokenRepo) Revoke(ctx context.Context, id string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE refresh_token SET revoked_at = now() WHERE id = $1 AND revoked_at IS NULL`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *refreshTokenRepo) RevokeByAccessTokenID(ctx context.Context, accessTokenID string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE refresh_token SET revoked_at = now() WHERE access_token_id = $1 AND revoked_at IS NULL`,
		accessTokenID)
	return err
}

func (r *refreshTokenRepo) DeleteDead(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM refresh_token WHERE revoked_at IS NOT NULL OR expires_at <= now()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
