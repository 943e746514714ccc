package backend

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"tresorerie/internal/storage"
	"tresorerie/internal/storage/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		store storage.Store
		err   error
	)
	switch config.Type {
	case SQLiteBackend:
		store, err = f.createSQLiteBackend(config)
	case PostgresBackend:
		store, err = f.createPostgresBackend(ctx, config)
	case MemoryBackend:
		store, err = f.createMemoryBackend(config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	return &BackendResult{Store: store, Cleanup: store.Close}, nil
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (storage.Store, error) {
	store, err := storage.NewSQLiteStore(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
	}
	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	return store, nil
}

func (f *DefaultFactory) createPostgresBackend(ctx context.Context, config Config) (storage.Store, error) {
	store, err := storage.NewPostgresStore(ctx, config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Postgres store: %w", err)
	}
	f.logger.Info("Initialized Postgres backend")
	return store, nil
}

func (f *DefaultFactory) createMemoryBackend(config Config) (storage.Store, error) {
	if config.SeedOwner == "" {
		f.logger.Info("Initialized memory backend")
		return memory.New(), nil
	}

	owner, err := uuid.Parse(config.SeedOwner)
	if err != nil {
		return nil, fmt.Errorf("invalid seed owner: %w", err)
	}
	store, err := memory.NewFromFile(config.SeedFile, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to seed memory backend: %w", err)
	}
	f.logger.Info("Initialized memory backend", "seed_file", config.SeedFile, "seed_owner", owner)
	return store, nil
}
