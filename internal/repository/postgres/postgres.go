// Package postgres implements the repository contracts on PostgreSQL through pgxpool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/garnizeh/contentcrm/internal/db"
	"github.com/garnizeh/contentcrm/pkg/repository"
)

// Repo implements repository interfaces on a pgx connection pool.
type Repo struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ repository.JobStore = (*Repo)(nil)
var _ repository.UserDirectory = (*Repo)(nil)
var _ repository.NotificationSink = (*Repo)(nil)

// Open connects to url and verifies the connection.
func Open(ctx context.Context, url string, logger *slog.Logger) (*Repo, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return &Repo{pool: pool, logger: logger}, nil
}

func (r *Repo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *Repo) Close() error {
	r.pool.Close()
	return nil
}

// Migrate applies the .sql files under "postgres/" in migrationFS that are not
// yet recorded, each in its own transaction.
func (r *Repo) Migrate(ctx context.Context, migrationFS fs.FS) error {
	if _, err := r.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY, applied BIGINT NOT NULL)`); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	files, err := db.MigrationFiles(migrationFS, "postgres")
	if err != nil {
		return err
	}
	for _, fname := range files {
		version := strings.TrimSuffix(fname, path.Ext(fname))
		var count int
		if err := r.pool.QueryRow(ctx, `SELECT COUNT(1) FROM schema_migrations WHERE version = $1`, version).Scan(&count); err != nil {
			return fmt.Errorf("scan migration applied count: %w", err)
		}
		if count > 0 {
			continue
		}
		b, err := fs.ReadFile(migrationFS, path.Join("postgres", fname))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", fname, err)
		}
		err = pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, string(b)); err != nil {
				return fmt.Errorf("exec migration %s: %w", fname, err)
			}
			if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version, applied) VALUES ($1, $2)`, version, time.Now().UTC().Unix()); err != nil {
				return fmt.Errorf("record migration %s: %w", fname, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
		r.logger.Info("migration applied", "version", version, "driver", "postgres")
	}
	return nil
}

func now() time.Time {
	return time.Now().UTC()
}

func wrapDuplicate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return errors.Join(repository.ErrDuplicate, err)
	}
	return err
}

// execOne runs a statement addressed at a single row and maps "no row" to ErrNotFound.
func (r *Repo) execOne(ctx context.Context, q string, args ...any) error {
	tag, err := r.pool.Exec(ctx, q, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
