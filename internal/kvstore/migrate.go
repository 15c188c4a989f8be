package kvstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"storybook/internal/kvstore/migrations"
)

const migrationsTable = "schema_migrations"

// Migrator выполняет миграции схемы SQL-бэкендов.
// Each run opens its own *sql.DB: golang-migrate closes the handle it is given.
type Migrator struct {
	dialect string
	openDB  func() (*sql.DB, error)
	source  fs.FS
	path    string
	logger  *zap.Logger
}

// NewSQLiteMigrator migrates the SQLite database at dsn.
func NewSQLiteMigrator(dsn string, logger *zap.Logger) *Migrator {
	return &Migrator{
		dialect: "sqlite",
		openDB:  func() (*sql.DB, error) { return sql.Open("sqlite", dsn) },
		source:  migrations.SQLite,
		path:    "sqlite",
		logger:  logger.Named("Migrator"),
	}
}

// NewPostgresMigrator migrates the database behind pool.
func NewPostgresMigrator(pool *pgxpool.Pool, logger *zap.Logger) *Migrator {
	return &Migrator{
		dialect: "postgres",
		openDB:  func() (*sql.DB, error) { return stdlib.OpenDBFromPool(pool), nil },
		source:  migrations.Postgres,
		path:    "postgres",
		logger:  logger.Named("Migrator"),
	}
}

// Up применяет все доступные миграции
func (m *Migrator) Up(ctx context.Context) error {
	return m.run(ctx, "apply", func(mg *migrate.Migrate) error { return mg.Up() })
}

// Down откатывает все миграции
func (m *Migrator) Down(ctx context.Context) error {
	return m.run(ctx, "rollback", func(mg *migrate.Migrate) error { return mg.Down() })
}

// Version возвращает текущую версию схемы; 0 если миграций еще не было.
func (m *Migrator) Version(ctx context.Context) (uint, bool, error) {
	mg, err := m.createMigrator(ctx)
	if err != nil {
		return 0, false, err
	}
	defer m.close(mg)

	version, dirty, err := mg.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to get migration version: %w", err)
	}
	return version, dirty, nil
}

func (m *Migrator) run(ctx context.Context, action string, step func(*migrate.Migrate) error) error {
	mg, err := m.createMigrator(ctx)
	if err != nil {
		return err
	}
	defer m.close(mg)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			mg.GracefulStop <- true
		case <-done:
		}
	}()

	if err := step(mg); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to %s %s migrations: %w", action, m.dialect, err)
	}
	m.logger.Info("Database migrations done", zap.String("action", action), zap.String("dialect", m.dialect))
	return nil
}

func (m *Migrator) createMigrator(ctx context.Context) (*migrate.Migrate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	db, err := m.openDB()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s for migrations: %w", m.dialect, err)
	}

	var driver database.Driver
	switch m.dialect {
	case "sqlite":
		driver, err = sqlite.WithInstance(db, &sqlite.Config{MigrationsTable: migrationsTable})
	case "postgres":
		driver, err = postgres.WithInstance(db, &postgres.Config{MigrationsTable: migrationsTable})
	default:
		err = fmt.Errorf("unsupported dialect %q", m.dialect)
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create %s driver: %w", m.dialect, err)
	}

	source, err := iofs.New(m.source, m.path)
	if err != nil {
		_ = driver.Close()
		return nil, fmt.Errorf("failed to create source driver: %w", err)
	}

	mg, err := migrate.NewWithInstance("iofs", source, m.dialect, driver)
	if err != nil {
		_ = driver.Close()
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	mg.LockTimeout = 30 * time.Second
	return mg, nil
}

func (m *Migrator) close(mg *migrate.Migrate) {
	srcErr, dbErr := mg.Close()
	if srcErr != nil || dbErr != nil {
		m.logger.Warn("Failed to close migrator", zap.NamedError("sourceErr", srcErr), zap.NamedError("dbErr", dbErr))
	}
}
