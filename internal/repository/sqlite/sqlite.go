package sqlite

import (
	"errors"
	"log/slog"
	"time"

	moderncsqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/garnizeh/contentcrm/internal/db"
	"github.com/garnizeh/contentcrm/pkg/repository"
)

// SQLiteRepo implements repository interfaces using the internal DB wrapper.
type SQLiteRepo struct {
	conn   *db.DB
	logger *slog.Logger
}

// Ensure SQLiteRepo implements the public interfaces.
var _ repository.JobStore = (*SQLiteRepo)(nil)
var _ repository.UserDirectory = (*SQLiteRepo)(nil)
var _ repository.NotificationSink = (*SQLiteRepo)(nil)

func New(conn *db.DB, logger *slog.Logger) *SQLiteRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLiteRepo{conn: conn, logger: logger}
}

func now() time.Time {
	return time.Now().UTC()
}

func isUniqueViolation(err error) bool {
	var se *moderncsqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}

func wrapDuplicate(err error) error {
	if isUniqueViolation(err) {
		return errors.Join(repository.ErrDuplicate, err)
	}
	return err
}
