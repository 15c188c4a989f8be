package kvstore

import (
	"context"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var _ Store = (*postgresStore)(nil)

type kvRow struct {
	Key   string `db:"key"`
	Value []byte `db:"value"`
}

type postgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// OpenPostgres connects to dsn, applies migrations and returns the store.
func OpenPostgres(ctx context.Context, dsn string, maxConns int32, logger *zap.Logger) (Store, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres DSN: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	if err := NewPostgresMigrator(pool, logger).Up(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	logger.Info("Postgres key-value store opened")
	return NewPostgresStore(pool, logger), nil
}

// NewPostgresStore wraps an already migrated pool. The store owns the pool and closes it.
func NewPostgresStore(pool *pgxpool.Pool, logger *zap.Logger) Store {
	return &postgresStore{pool: pool, logger: logger.Named("PostgresKVStore")}
}

func (s *postgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	var row kvRow
	err := pgxscan.Get(ctx, s.pool, &row, `SELECT key, value FROM kv WHERE key = $1`, key)
	if pgxscan.NotFound(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		s.logger.Error("Failed to read key", zap.String("key", key), zap.Error(err))
		return nil, fmt.Errorf("postgres get %q: %w", key, err)
	}
	return row.Value, nil
}

func (s *postgresStore) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES ($1, $2, NOW())
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		key, value,
	)
	if err != nil {
		s.logger.Error("Failed to write key", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("postgres set %q: %w", key, err)
	}
	return nil
}

func (s *postgresStore) Delete(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM kv WHERE key = $1`, key); err != nil {
		return fmt.Errorf("postgres delete %q: %w", key, err)
	}
	return nil
}

func (s *postgresStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	if err := pgxscan.Select(ctx, s.pool, &keys, `SELECT key FROM kv WHERE starts_with(key, $1)`, prefix); err != nil {
		return nil, fmt.Errorf("postgres keys %q: %w", prefix, err)
	}
	return keys, nil
}

func (s *postgresStore) Close() error {
	s.pool.Close()
	return nil
}
