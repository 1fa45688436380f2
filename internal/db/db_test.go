package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ilm/backend/internal/config"
)

func TestBuildDSNForLibsqlAddsToken(t *testing.T) {
	dsn, err := buildDSN("libsql://ilm.example.turso.io", "abc123")
	require.NoError(t, err)
	assert.Equal(t, "libsql://ilm.example.turso.io?authToken=abc123", dsn)
	assert.Equal(t, "libsql", driverFor(dsn))
}

func TestBuildDSNForFileURL(t *testing.T) {
	dsn, err := buildDSN("file:local.db", "ignored")
	require.NoError(t, err)
	assert.Equal(t, "file:local.db", dsn)
	assert.Equal(t, "sqlite", driverFor(dsn))
}

func TestBuildDSNRejectsEmptyURL(t *testing.T) {
	_, err := buildDSN("  ", "")
	assert.Error(t, err)
}

func TestOpenMigratesLocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queries.db")
	database, err := Open(context.Background(), config.Config{DatabaseURL: "file:" + path})
	require.NoError(t, err)
	defer database.Close()

	var name string
	err = database.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'query_log'`).Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "query_log", name)

	require.NoError(t, Migrate(context.Background(), database))
}
