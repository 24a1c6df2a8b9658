package pg

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/keygate/internal/domain/repository"
)

type codeRepo struct{ pool *pgxpool.Pool }

func (r *codeRepo) Create(ctx context.Context, c *repository.AuthorizationCode) error {
	const q = `
		INSERT INTO auth_code
			(id, code_hash, client_id, user_id, redirect_uri, scopes,
			 code_challenge, challenge_method, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at`
	err := r.pool.QueryRow(ctx, q,
		c.ID, c.CodeHash, c.ClientID, c.UserID, c.RedirectURI, c.Scopes,
		c.CodeChallenge, c.ChallengeMethod, c.ExpiresAt,
	).Scan(&c.CreatedAt)
	return mapErr(err)
}

// Consume marca el code como usado y lo devuelve en una sola vuelta al
// servidor. El WHERE condicional garantiza que de N exchanges concurrentes
// exactamente uno reciba la fila; el resto ve cero filas → ErrNotFound.
func (r *codeRepo) Consume(ctx context.Context, codeHash string) (*repository.AuthorizationCode, error) {
	const q = `
		UPDATE auth_code
		SET used_at = now()
		WHERE code_hash = $1 AND used_at IS NULL AND expires_at > now()
		RETURNING id, code_hash, client_id, user_id, redirect_uri, scopes,
		          code_challenge, challenge_method, expires_at, used_at, created_at`
	var c repository.AuthorizationCode
	err := r.pool.QueryRow(ctx, q, codeHash).Scan(
		&c.ID, &c.CodeHash, &c.ClientID, &c.UserID, &c.RedirectURI, &c.Scopes,
		&c.CodeChallenge, &c.ChallengeMethod, &c.ExpiresAt, &c.UsedAt, &c.CreatedAt,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	return &c, nil
}

func (r *codeRepo) DeleteDead(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM auth_code WHERE used_at IS NOT NULL OR expires_at <= now()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
