package client_test

import (
	"bytes"
	"context"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pat-drk/schedsync/internal/client"
	"github.com/pat-drk/schedsync/internal/config"
	"github.com/pat-drk/schedsync/internal/db"
	"github.com/pat-drk/schedsync/internal/events"
	"github.com/pat-drk/schedsync/internal/models"
	"github.com/pat-drk/schedsync/internal/storage"
)

func testLogger() *events.Logger {
	var buf bytes.Buffer
	return events.NewTestLogger(events.ErrorLevel, "json", &buf)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Folder.Backend = "mock"
	cfg.Identity.User = "alice"
	cfg.Identity.MachineIDFile = filepath.Join(t.TempDir(), "machine-id")
	return cfg
}

func TestNewWithMockBackend(t *testing.T) {
	cfg := testConfig(t)

	c, err := client.New(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	defer c.Close()

	assert.NotNil(t, c.Lock)
	assert.NotNil(t, c.Merge)
	assert.IsType(t, &storage.MockFolder{}, c.Folder())

	id := c.Identity()
	assert.Equal(t, "alice", id.User)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{12}$`), id.MachineID)

	assert.Len(t, c.Registry(), 4)
}

func TestNewWithLocalBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Folder.Backend = "local"
	cfg.Folder.Path = filepath.Join(t.TempDir(), "shared")

	c, err := client.New(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	defer c.Close()

	assert.IsType(t, &storage.LocalFolder{}, c.Folder())
	assert.DirExists(t, cfg.Folder.Path)
}

func TestNewUnknownBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Folder.Backend = "ftp"

	_, err := client.New(context.Background(), cfg, testLogger())
	require.ErrorIs(t, err, models.ErrUnknownBackend)
}

func TestMachineIDPersistsAcrossClients(t *testing.T) {
	cfg := testConfig(t)

	first, err := client.New(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	defer first.Close()

	second, err := client.New(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	defer second.Close()

	assert.Equal(t, first.Identity().MachineID, second.Identity().MachineID)
}

func TestDatabasePathDefaultsIntoFolder(t *testing.T) {
	cfg := testConfig(t)
	cfg.Folder.Backend = "local"
	cfg.Folder.Path = filepath.Join(t.TempDir(), "shared")

	c, err := client.New(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	defer c.Close()

	path, err := c.DatabasePath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cfg.Folder.Path, client.DefaultDatabaseName), path)
}

func TestDatabasePathRequiredForMockBackend(t *testing.T) {
	cfg := testConfig(t)

	c, err := client.New(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	defer c.Close()

	_, err = c.DatabasePath()
	require.Error(t, err)
}

func TestDatabaseOpensLazilyAndStampsUser(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Path = filepath.Join(t.TempDir(), "schedule.db")

	c, err := client.New(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	database, err := c.Database(ctx)
	require.NoError(t, err)

	user, err := database.GetMeta(ctx, db.MetaKeyClientUser)
	require.NoError(t, err)
	assert.Equal(t, "alice", user)

	again, err := c.Database(ctx)
	require.NoError(t, err)
	assert.Same(t, database, again, "handle is reused")

	require.NoError(t, c.Close())
	require.NoError(t, c.Close(), "close is idempotent")
}

func TestSchemaManagerOverSharedDatabase(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Path = filepath.Join(t.TempDir(), "schedule.db")

	c, err := client.New(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	defer c.Close()

	manager, err := c.Schema(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, manager)
}
