package db

import "embed"

// Migrations holds the SQLite schema applied by internal/db.Migrate.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// PostgresMigrations holds the equivalent PostgreSQL schema.
//
//go:embed postgres/*.sql
var PostgresMigrations embed.FS
