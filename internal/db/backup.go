package db

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
)

// Backup writes a consistent copy of the live database to dst. dst must not exist.
func (db *DB) Backup(ctx context.Context, dst string) error {
	if _, err := os.Stat(dst); err == nil {
		return fmt.Errorf("backup target %s already exists", dst)
	}
	if _, err := db.conn.ExecContext(ctx, `VACUUM INTO ?`, dst); err != nil {
		return fmt.Errorf("backup to %s: %w", dst, err)
	}
	return nil
}

// Restore replaces the database file at dst with src. The server must not be
// running against dst.
func Restore(src, dst string) (err error) {
	srcFile, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open backup: %w", err)
	}
	defer srcFile.Close()

	tmp := dst + ".restore"
	dstFile, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}
	defer func() {
		if err != nil {
			os.Remove(tmp)
		}
	}()

	if _, err = io.Copy(dstFile, srcFile); err != nil {
		dstFile.Close()
		return fmt.Errorf("copy backup: %w", err)
	}
	if err = dstFile.Close(); err != nil {
		return err
	}
	// stale WAL files would be replayed over the restored data
	for _, suffix := range []string{"-wal", "-shm"} {
		if rmErr := os.Remove(dst + suffix); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", dst+suffix, rmErr)
		}
	}
	return os.Rename(tmp, dst)
}
