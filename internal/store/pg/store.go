// Package pg implementa los repositorios del dominio sobre PostgreSQL (pgx).
//
// Toda la coordinación entre instancias pasa por acá: single-use de codes,
// rotación de refresh tokens y claim de reintentos de webhooks se resuelven
// con UPDATEs condicionales, nunca con locks en memoria.
package pg

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/keygate/internal/domain/repository"
)

type Store struct{ pool *pgxpool.Pool }

// Options afina el pool. Cero significa default de pgxpool.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime string
}

func New(ctx context.Context, dsn string, opts Options) (*Store, error) {
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	if opts.MaxOpenConns > 0 {
		pcfg.MaxConns = int32(opts.MaxOpenConns)
	}
	// Mapear MaxIdleConns → MinConns (pgxpool)
	if opts.MaxIdleConns > 0 {
		pcfg.MinConns = int32(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime != "" {
		if d, err := time.ParseDuration(opts.ConnMaxLifetime); err == nil {
			pcfg.MaxConnLifetime = d
			pcfg.MaxConnIdleTime = d
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Pool expone el pool interno para usos avanzados (migraciones/metrics).
func (s *Store) Pool() *pgxpool.Pool {
	if s == nil {
		return nil
	}
	return s.pool
}

// Close cierra el pool subyacente (idempotente).
func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

// Accessors: un repo por entidad, todos sobre el mismo pool.

func (s *Store) Clients() repository.ClientRepository            { return &clientRepo{pool: s.pool} }
func (s *Store) Codes() repository.CodeRepository                { return &codeRepo{pool: s.pool} }
func (s *Store) AccessTokens() repository.AccessTokenRepository  { return &accessTokenRepo{pool: s.pool} }
func (s *Store) RefreshTokens() repository.RefreshTokenRepository {
	return &refreshTokenRepo{pool: s.pool}
}
func (s *Store) Webhooks() repository.WebhookRepository   { return &webhookRepo{pool: s.pool} }
func (s *Store) Deliveries() repository.DeliveryRepository { return &deliveryRepo{pool: s.pool} }

// mapErr traduce errores de pgx a los sentinels del dominio.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return repository.ErrConflict
	}
	return err
}
