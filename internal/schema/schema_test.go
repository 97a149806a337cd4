package schema_test

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pat-drk/schedsync/internal/db"
	"github.com/pat-drk/schedsync/internal/events"
	"github.com/pat-drk/schedsync/internal/models"
	"github.com/pat-drk/schedsync/internal/schedule"
	"github.com/pat-drk/schedsync/internal/schema"
)

func openBareDB(t *testing.T) *db.DB {
	t.Helper()

	var buf bytes.Buffer
	logger := events.NewTestLogger(events.DebugLevel, "json", &buf)

	database, err := db.Open(filepath.Join(t.TempDir(), "schedule.db"), 5*time.Second, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	require.NoError(t, schedule.EnsureBaseTables(context.Background(), database.Raw()))
	return database
}

func provisionDB(t *testing.T, user string) (*db.DB, *schema.Manager) {
	t.Helper()

	database := openBareDB(t)

	var buf bytes.Buffer
	logger := events.NewTestLogger(events.DebugLevel, "json", &buf)
	manager := schema.NewManager(database, logger)

	require.NoError(t,
		manager.EnsureSyncTracking(context.Background(), schedule.Registry(), user))
	return database, manager
}

func TestEnsureSyncTrackingAddsColumns(t *testing.T) {
	database, _ := provisionDB(t, "alice")

	rows, err := database.Raw().Query("PRAGMA table_info(people)")
	require.NoError(t, err)
	defer rows.Close()

	found := map[string]bool{}
	for rows.Next() {
		var (
			cid, notNull, pk int
			name, colType    string
			dflt             interface{}
		)
		require.NoError(t, rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk))
		found[name] = true
	}
	require.NoError(t, rows.Err())

	for _, col := range schema.SyncColumns {
		assert.True(t, found[col], "missing column %s", col)
	}
}

func TestEnsureSyncTrackingIsIdempotent(t *testing.T) {
	database, manager := provisionDB(t, "alice")
	ctx := context.Background()

	_, err := database.Raw().Exec("INSERT INTO people (name) VALUES ('Dana')")
	require.NoError(t, err)

	// A second provisioning run must not disturb existing data.
	require.NoError(t, manager.EnsureSyncTracking(ctx, schedule.Registry(), "alice"))

	var count int
	require.NoError(t,
		database.Raw().QueryRow("SELECT COUNT(*) FROM active_people").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestEnsureSyncTrackingMissingTable(t *testing.T) {
	database := openBareDB(t)

	var buf bytes.Buffer
	logger := events.NewTestLogger(events.DebugLevel, "json", &buf)
	manager := schema.NewManager(database, logger)

	err := manager.EnsureSyncTracking(context.Background(), []models.TableSpec{
		{Table: "no_such_table", Columns: []string{"x"}},
	}, "alice")

	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrTableMissing))
}

func TestInsertStampsEnvelope(t *testing.T) {
	database, _ := provisionDB(t, "alice")

	_, err := database.Raw().Exec("INSERT INTO people (name) VALUES ('Dana')")
	require.NoError(t, err)

	var syncID, modifiedAt, modifiedBy string
	require.NoError(t, database.Raw().QueryRow(
		"SELECT syncId, modifiedAt, modifiedBy FROM people WHERE name = 'Dana'").
		Scan(&syncID, &modifiedAt, &modifiedBy))

	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{32}$`), syncID)
	assert.Regexp(t, regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{3}Z$`), modifiedAt)
	assert.Equal(t, "alice", modifiedBy)
}

func TestInsertKeepsProvidedEnvelope(t *testing.T) {
	database, _ := provisionDB(t, "alice")

	// Rows copied from another database arrive with their envelope
	// already set; it must survive untouched.
	_, err := database.Raw().Exec(`
        INSERT INTO people (name, syncId, modifiedAt, modifiedBy)
        VALUES ('Eve', 'aabbccddeeff00112233445566778899', '2020-01-01T00:00:00.000Z', 'carol')
    `)
	require.NoError(t, err)

	var syncID, modifiedAt, modifiedBy string
	require.NoError(t, database.Raw().QueryRow(
		"SELECT syncId, modifiedAt, modifiedBy FROM people WHERE name = 'Eve'").
		Scan(&syncID, &modifiedAt, &modifiedBy))

	assert.Equal(t, "aabbccddeeff00112233445566778899", syncID)
	assert.Equal(t, "2020-01-01T00:00:00.000Z", modifiedAt)
	assert.Equal(t, "carol", modifiedBy)
}

func TestUpdateAdvancesProvenance(t *testing.T) {
	database, _ := provisionDB(t, "alice")
	ctx := context.Background()

	_, err := database.Raw().Exec("INSERT INTO people (name) VALUES ('Dana')")
	require.NoError(t, err)

	var before string
	require.NoError(t, database.Raw().QueryRow(
		"SELECT modifiedAt FROM people WHERE name = 'Dana'").Scan(&before))

	// A different user takes over the session.
	require.NoError(t, database.SetMeta(ctx, db.MetaKeyClientUser, "bob"))

	_, err = database.Raw().Exec(
		"UPDATE people SET email = 'dana@example.com' WHERE name = 'Dana'")
	require.NoError(t, err)

	var after, modifiedBy string
	require.NoError(t, database.Raw().QueryRow(
		"SELECT modifiedAt, modifiedBy FROM people WHERE name = 'Dana'").
		Scan(&after, &modifiedBy))

	assert.Equal(t, "bob", modifiedBy)
	// ISO-8601 strings order lexicographically.
	assert.GreaterOrEqual(t, after, before)
}

func TestTombstoneDelete(t *testing.T) {
	database, _ := provisionDB(t, "alice")
	ctx := context.Background()

	_, err := database.Raw().Exec("INSERT INTO people (name) VALUES ('Dana')")
	require.NoError(t, err)

	n, err := schema.TombstoneDelete(ctx, database.Raw(), "people", "name = ?", "Dana")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// Gone from the active view, still present in the table.
	var activeCount, rawCount int
	require.NoError(t, database.Raw().QueryRow(
		"SELECT COUNT(*) FROM active_people").Scan(&activeCount))
	require.NoError(t, database.Raw().QueryRow(
		"SELECT COUNT(*) FROM people").Scan(&rawCount))
	assert.Equal(t, 0, activeCount)
	assert.Equal(t, 1, rawCount)

	var deletedAt string
	require.NoError(t, database.Raw().QueryRow(
		"SELECT deletedAt FROM people WHERE name = 'Dana'").Scan(&deletedAt))
	assert.NotEmpty(t, deletedAt)

	// Repeating leaves the original tombstone alone.
	n, err = schema.TombstoneDelete(ctx, database.Raw(), "people", "name = ?", "Dana")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestDeletedKeyCanBeReAdded(t *testing.T) {
	database, _ := provisionDB(t, "alice")
	ctx := context.Background()

	insert := func() error {
		_, err := database.Raw().Exec(
			"INSERT INTO trainings (person, role, level) VALUES ('Dana', 'driver', 2)")
		return err
	}

	require.NoError(t, insert())

	// A second live row for the same (person, role) must collide.
	err := insert()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UNIQUE constraint failed")

	// Tombstoning frees the key for legitimate re-adding.
	n, err := schema.TombstoneDelete(ctx, database.Raw(), "trainings",
		"person = ? AND role = ?", "Dana", "driver")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, insert())

	var activeCount, rawCount int
	require.NoError(t, database.Raw().QueryRow(
		"SELECT COUNT(*) FROM active_trainings").Scan(&activeCount))
	require.NoError(t, database.Raw().QueryRow(
		"SELECT COUNT(*) FROM trainings").Scan(&rawCount))
	assert.Equal(t, 1, activeCount)
	assert.Equal(t, 2, rawCount)
}

func TestActiveViewDeleteBecomesTombstone(t *testing.T) {
	database, _ := provisionDB(t, "alice")

	_, err := database.Raw().Exec("INSERT INTO people (name) VALUES ('Dana')")
	require.NoError(t, err)

	// Physical-looking delete against the view is rewritten.
	_, err = database.Raw().Exec("DELETE FROM active_people WHERE name = 'Dana'")
	require.NoError(t, err)

	var rawCount int
	require.NoError(t, database.Raw().QueryRow(
		"SELECT COUNT(*) FROM people WHERE deletedAt IS NOT NULL").Scan(&rawCount))
	assert.Equal(t, 1, rawCount)
}

func TestTouchAdvancesProvenance(t *testing.T) {
	database, _ := provisionDB(t, "alice")
	ctx := context.Background()

	_, err := database.Raw().Exec("INSERT INTO people (name) VALUES ('Dana')")
	require.NoError(t, err)

	require.NoError(t, database.SetMeta(ctx, db.MetaKeyClientUser, "bob"))

	n, err := schema.Touch(ctx, database.Raw(), "people", "name = ?", "Dana")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	var name, modifiedBy string
	require.NoError(t, database.Raw().QueryRow(
		"SELECT name, modifiedBy FROM people WHERE name = 'Dana'").
		Scan(&name, &modifiedBy))
	assert.Equal(t, "Dana", name)
	assert.Equal(t, "bob", modifiedBy)
}

func TestProvisioningBackfillsExistingRows(t *testing.T) {
	database := openBareDB(t)
	ctx := context.Background()

	// Rows created before the envelope existed.
	_, err := database.Raw().Exec("INSERT INTO people (name) VALUES ('Dana'), ('Eve')")
	require.NoError(t, err)

	var buf bytes.Buffer
	logger := events.NewTestLogger(events.DebugLevel, "json", &buf)
	manager := schema.NewManager(database, logger)
	require.NoError(t, manager.EnsureSyncTracking(ctx, schedule.Registry(), "alice"))

	rows, err := database.Raw().Query("SELECT syncId, modifiedBy FROM people")
	require.NoError(t, err)
	defer rows.Close()

	ids := map[string]bool{}
	for rows.Next() {
		var syncID, modifiedBy string
		require.NoError(t, rows.Scan(&syncID, &modifiedBy))
		assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{32}$`), syncID)
		assert.Equal(t, "alice", modifiedBy)
		ids[syncID] = true
	}
	require.NoError(t, rows.Err())

	// Each row got its own identity.
	assert.Len(t, ids, 2)
}

func TestSyncUUIDMintedOnce(t *testing.T) {
	database, manager := provisionDB(t, "alice")
	ctx := context.Background()

	first, err := database.GetMeta(ctx, db.MetaKeySyncUUID)
	require.NoError(t, err)
	assert.NotEmpty(t, first)

	require.NoError(t, manager.EnsureSyncTracking(ctx, schedule.Registry(), "bob"))

	second, err := database.GetMeta(ctx, db.MetaKeySyncUUID)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// The session user does follow the latest provisioning.
	user, err := database.GetMeta(ctx, db.MetaKeyClientUser)
	require.NoError(t, err)
	assert.Equal(t, "bob", user)
}
