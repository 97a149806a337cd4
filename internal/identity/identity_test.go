package identity_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pat-drk/schedsync/internal/identity"
)

func TestLoadMintsMachineID(t *testing.T) {
	idFile := filepath.Join(t.TempDir(), "ids", "machine-id")

	id, err := identity.Load(idFile, "alice")
	require.NoError(t, err)

	assert.Equal(t, "alice", id.User)
	assert.Regexp(t, `^[0-9a-f]{12}$`, id.MachineID)
	assert.FileExists(t, idFile)
}

func TestLoadIsStableAcrossCalls(t *testing.T) {
	idFile := filepath.Join(t.TempDir(), "machine-id")

	first, err := identity.Load(idFile, "")
	require.NoError(t, err)

	second, err := identity.Load(idFile, "")
	require.NoError(t, err)

	assert.Equal(t, first.MachineID, second.MachineID)
}

func TestLoadReplacesCorruptMachineID(t *testing.T) {
	idFile := filepath.Join(t.TempDir(), "machine-id")
	require.NoError(t, os.WriteFile(idFile, []byte("not-a-machine-id\n"), 0600))

	id, err := identity.Load(idFile, "")
	require.NoError(t, err)

	assert.Regexp(t, `^[0-9a-f]{12}$`, id.MachineID)

	data, err := os.ReadFile(idFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), id.MachineID)
}

func TestLoadUserFallsBackToEnvironment(t *testing.T) {
	idFile := filepath.Join(t.TempDir(), "machine-id")
	t.Setenv("USER", "env-user")

	id, err := identity.Load(idFile, "")
	require.NoError(t, err)

	assert.Equal(t, "env-user", id.User)
}

func TestLoadUserOverrideWins(t *testing.T) {
	idFile := filepath.Join(t.TempDir(), "machine-id")
	t.Setenv("USER", "env-user")

	id, err := identity.Load(idFile, "configured-user")
	require.NoError(t, err)

	assert.Equal(t, "configured-user", id.User)
}
