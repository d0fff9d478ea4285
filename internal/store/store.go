// Package store opens the configured persistence backend and exposes it
// through the repository contracts.
package store

import (
	"context"
	"fmt"
	"log/slog"

	migrations "github.com/garnizeh/contentcrm/db"
	"github.com/garnizeh/contentcrm/internal/config"
	"github.com/garnizeh/contentcrm/internal/db"
	"github.com/garnizeh/contentcrm/internal/repository/postgres"
	"github.com/garnizeh/contentcrm/internal/repository/sqlite"
	"github.com/garnizeh/contentcrm/pkg/repository"
)

// Backend is everything the application needs from persistence.
type Backend interface {
	repository.JobStore
	repository.UserDirectory
	repository.NotificationSink
}

type Store struct {
	Backend
	// SQLite is the raw handle when the sqlite driver is used; nil for postgres.
	SQLite *db.DB

	ping  func(ctx context.Context) error
	close func() error
}

// Open connects to the configured database and applies pending migrations.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		repo, err := postgres.Open(ctx, cfg.Database.URL, logger)
		if err != nil {
			return nil, err
		}
		if err := repo.Migrate(ctx, migrations.PostgresMigrations); err != nil {
			repo.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		logger.Info("store opened", "driver", cfg.Database.Driver)
		return &Store{Backend: repo, ping: repo.Ping, close: repo.Close}, nil

	case config.DriverSQLite, "":
		conn, err := db.New(ctx, cfg.Database.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		if err := db.Migrate(ctx, conn, migrations.Migrations); err != nil {
			conn.Close()
			return nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		logger.Info("store opened", "driver", config.DriverSQLite, "path", cfg.Database.Path)
		return &Store{Backend: sqlite.New(conn, logger), SQLite: conn, ping: conn.Ping, close: conn.Close}, nil

	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.ping(ctx)
}

func (s *Store) Close() error {
	return s.close()
}
