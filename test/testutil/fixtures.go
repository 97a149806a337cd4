package testutil

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pat-drk/schedsync/internal/config"
	"github.com/pat-drk/schedsync/internal/db"
	"github.com/pat-drk/schedsync/internal/models"
	"github.com/pat-drk/schedsync/internal/schedule"
	"github.com/pat-drk/schedsync/internal/schema"
)

// FastLockConfig returns lock timings compressed for real-clock tests.
// The threshold stays at the validated 5x heartbeat minimum.
func FastLockConfig() config.LockConfig {
	return config.LockConfig{
		HeartbeatInterval:     50 * time.Millisecond,
		StaleThreshold:        250 * time.Millisecond,
		PropagationWait:       30 * time.Millisecond,
		ExtendedChecks:        0,
		ExtendedCheckInterval: 50 * time.Millisecond,
	}
}

// TestConfig builds a config for one simulated machine sharing folder
// with others. Each machine gets its own machine-id file so identities
// differ while the folder is common.
func TestConfig(t testing.TB, sharedFolder, user string) *config.Config {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Folder.Backend = "local"
	cfg.Folder.Path = sharedFolder
	cfg.Lock = FastLockConfig()
	cfg.Identity.User = user
	cfg.Identity.MachineIDFile = filepath.Join(t.TempDir(), "machine-id")
	cfg.Log.Level = "error"
	cfg.Log.Format = "json"
	require.NoError(t, cfg.Validate())
	return cfg
}

// SeedScheduleDB provisions a schedule database at path with sync
// tracking and a handful of rows, then closes it.
func SeedScheduleDB(t testing.TB, path, user string) {
	t.Helper()

	database, err := db.Open(path, 5*time.Second, NewTestLogger())
	require.NoError(t, err)
	defer func() { require.NoError(t, database.Close()) }()

	ctx := context.Background()
	require.NoError(t, schedule.EnsureBaseTables(ctx, database.Raw()))

	manager := schema.NewManager(database, NewTestLogger())
	require.NoError(t, manager.EnsureSyncTracking(ctx, schedule.Registry(), user))

	seed := []string{
		"INSERT INTO people (name, email) VALUES ('Dana', 'dana@example.com')",
		"INSERT INTO people (name, email) VALUES ('Eve', 'eve@example.com')",
		"INSERT INTO people (name) VALUES ('Frank')",
		"INSERT INTO assignments (person, shift_date, shift, role) VALUES ('Dana', '2024-03-08', 'early', 'driver')",
		"INSERT INTO assignments (person, shift_date, shift, role) VALUES ('Eve', '2024-03-08', 'late', 'dispatcher')",
		"INSERT INTO trainings (person, role, level) VALUES ('Dana', 'driver', 2)",
		"INSERT INTO shift_overrides (person, shift_date, kind, note) VALUES ('Frank', '2024-03-09', 'unavailable', 'travel')",
	}
	for _, stmt := range seed {
		_, err := database.Raw().Exec(stmt)
		require.NoError(t, err)
	}
}

// CloneDatabase copies a database file byte for byte, the way the sync
// layer materializes a conflict copy.
func CloneDatabase(t testing.TB, src, dst string) {
	t.Helper()

	data, err := os.ReadFile(src)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(dst, data, 0644))
}

// WriteClaim drops a lock file into the folder as if the sync client
// had just delivered it: another machine's claim, or one left behind
// by an earlier process on this machine. Returns the file name.
func WriteClaim(t testing.TB, dir string, createdAt time.Time, machineID, user string, heartbeat time.Time) string {
	t.Helper()

	name := models.FormatLockName(createdAt, machineID)
	record := models.NewLockRecord(user, nil, heartbeat)
	data, err := json.Marshal(record)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0644))
	return name
}
