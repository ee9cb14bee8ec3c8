package sqlite

import (
	"context"
	"fmt"
	"log/slog"
)

// Storage bundles the SQLite repositories behind a single connection pool.
type Storage struct {
	*UserRepository
	*PatientRepository
	*AppointmentRepository
	*OutboxRepository

	pool   *ConnectionPool
	logger *slog.Logger
}

// Open connects to the database at dsn using DefaultConfig, or InMemoryConfig
// when dsn is ":memory:".
func Open(dsn string, logger *slog.Logger) (*Storage, error) {
	cfg := DefaultConfig(dsn)
	if dsn == ":memory:" {
		cfg = InMemoryConfig()
	}
	return OpenWithConfig(cfg, logger)
}

// OpenWithConfig connects using an explicit configuration.
func OpenWithConfig(cfg Config, logger *slog.Logger) (*Storage, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := NewConnectionPool(cfg)
	if err != nil {
		return nil, err
	}
	return &Storage{
		UserRepository:        NewUserRepository(pool),
		PatientRepository:     NewPatientRepository(pool),
		AppointmentRepository: NewAppointmentRepository(pool),
		OutboxRepository:      NewOutboxRepository(pool),
		pool:                  pool,
		logger:                logger.With("component", "sqlite"),
	}, nil
}

// Migrate applies pending schema migrations.
func (s *Storage) Migrate(ctx context.Context) error {
	_, err := s.MigrateVersions(ctx)
	return err
}

// MigrateVersions applies pending schema migrations and reports the versions executed.
func (s *Storage) MigrateVersions(ctx context.Context) ([]string, error) {
	executed, err := NewMigrator(s.pool.DB(), s.logger).Run(ctx)
	if err != nil {
		return executed, fmt.Errorf("apply migrations: %w", err)
	}
	return executed, nil
}

// Ping verifies the database is reachable.
func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the underlying connection pool.
func (s *Storage) Close() error {
	return s.pool.Close()
}
