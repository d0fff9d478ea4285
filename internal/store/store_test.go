package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garnizeh/contentcrm/internal/config"
	"github.com/garnizeh/contentcrm/internal/dashboard"
	"github.com/garnizeh/contentcrm/internal/store"
	"github.com/garnizeh/contentcrm/pkg/models"
)

func TestOpenSQLite(t *testing.T) {
	ctx := context.Background()
	cfg := &config.Config{Database: config.DatabaseConfig{Driver: config.DriverSQLite, Path: filepath.Join(t.TempDir(), "crm.db")}}

	s, err := store.Open(ctx, cfg, nil)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Ping(ctx))
	require.NotNil(t, s.SQLite)

	id, err := s.CreateUser(ctx, &models.User{Email: "a@example.com", Name: "A", Role: models.RoleWriter})
	require.NoError(t, err)
	assert.Positive(t, id)

	_, ok := s.Backend.(dashboard.ValueSummer)
	assert.True(t, ok, "sqlite backend totals values in SQL")

	// reopening applies no migration twice
	s2, err := store.Open(ctx, cfg, nil)
	require.NoError(t, err)
	require.NoError(t, s2.Close())
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := store.Open(context.Background(), &config.Config{Database: config.DatabaseConfig{Driver: "oracle"}}, nil)
	assert.Error(t, err)
}
