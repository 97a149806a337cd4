package db_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pat-drk/schedsync/internal/db"
	"github.com/pat-drk/schedsync/internal/events"
	"github.com/pat-drk/schedsync/internal/models"
)

func openTestDB(t *testing.T, path string) *db.DB {
	t.Helper()

	var buf bytes.Buffer
	logger := events.NewTestLogger(events.DebugLevel, "json", &buf)

	database, err := db.Open(path, 5*time.Second, logger)
	require.NoError(t, err)

	t.Cleanup(func() { _ = database.Close() })
	return database
}

func TestOpenCreatesDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "schedule.db")

	database := openTestDB(t, path)
	assert.Equal(t, path, database.Path())
	require.NoError(t, database.Close())

	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestOpenAppliesPragmas(t *testing.T) {
	database := openTestDB(t, filepath.Join(t.TempDir(), "schedule.db"))

	var journalMode string
	err := database.Raw().QueryRow("PRAGMA journal_mode").Scan(&journalMode)
	require.NoError(t, err)
	assert.Equal(t, "wal", journalMode)

	var foreignKeys int
	err = database.Raw().QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys)
	require.NoError(t, err)
	assert.Equal(t, 1, foreignKeys)
}

func TestForeignKeysEnforced(t *testing.T) {
	database := openTestDB(t, filepath.Join(t.TempDir(), "schedule.db"))

	_, err := database.Raw().Exec(`
        CREATE TABLE parents (id INTEGER PRIMARY KEY);
        CREATE TABLE children (
            id INTEGER PRIMARY KEY,
            parent_id INTEGER NOT NULL REFERENCES parents(id)
        );
    `)
	require.NoError(t, err)

	_, err = database.Raw().Exec("INSERT INTO children (parent_id) VALUES (42)")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FOREIGN KEY")
}

func TestMetaRoundTrip(t *testing.T) {
	database := openTestDB(t, filepath.Join(t.TempDir(), "schedule.db"))
	ctx := context.Background()

	require.NoError(t, database.SetMeta(ctx, db.MetaKeySyncUUID, "abc-123"))

	value, err := database.GetMeta(ctx, db.MetaKeySyncUUID)
	require.NoError(t, err)
	assert.Equal(t, "abc-123", value)

	// Overwrite replaces.
	require.NoError(t, database.SetMeta(ctx, db.MetaKeySyncUUID, "def-456"))

	value, err = database.GetMeta(ctx, db.MetaKeySyncUUID)
	require.NoError(t, err)
	assert.Equal(t, "def-456", value)
}

func TestMetaMissingKey(t *testing.T) {
	database := openTestDB(t, filepath.Join(t.TempDir(), "schedule.db"))

	_, err := database.GetMeta(context.Background(), db.MetaKeyLastCheckpoint)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrMetaKeyMissing))
	assert.Contains(t, err.Error(), "lastCheckpoint")
}

func TestMetaSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schedule.db")
	ctx := context.Background()

	database := openTestDB(t, path)
	require.NoError(t, database.SetMeta(ctx, db.MetaKeySyncUUID, "stable"))
	require.NoError(t, database.Close())

	reopened := openTestDB(t, path)
	value, err := reopened.GetMeta(ctx, db.MetaKeySyncUUID)
	require.NoError(t, err)
	assert.Equal(t, "stable", value)
}

func TestCloseIsIdempotent(t *testing.T) {
	database := openTestDB(t, filepath.Join(t.TempDir(), "schedule.db"))

	require.NoError(t, database.Close())
	assert.NoError(t, database.Close())
}
