// Package identity supplies the claimant identity carried into lock
// files and row provenance: a stable per-machine ID embedded in lock
// filenames, and the display user recorded in modifiedBy.
package identity

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// machineIDLen keeps lock filenames fixed-width so lexicographic name
// order stays equal to creation order.
const machineIDLen = 12

var machineIDRe = regexp.MustCompile(`^[0-9a-f]{12}$`)

// Identity identifies this claimant.
type Identity struct {
	// User is the human-facing identity shown to other claimants.
	User string
	// MachineID is the filename-safe per-machine identifier.
	MachineID string
}

// Load resolves the claimant identity. The machine ID persists at
// idFile and is minted on first use; userOverride takes precedence over
// the OS account name.
func Load(idFile, userOverride string) (*Identity, error) {
	machineID, err := loadOrCreateMachineID(idFile)
	if err != nil {
		return nil, err
	}

	return &Identity{
		User:      resolveUser(userOverride),
		MachineID: machineID,
	}, nil
}

// loadOrCreateMachineID reads the persisted machine ID, minting and
// saving a fresh one when the file is missing or unusable. A corrupt
// file cannot preserve identity, so it is replaced rather than fatal.
func loadOrCreateMachineID(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		id := strings.TrimSpace(string(data))
		if machineIDRe.MatchString(id) {
			return id, nil
		}
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("read machine id: %w", err)
	}

	id := newMachineID()

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return "", fmt.Errorf("create machine id directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0600); err != nil {
		return "", fmt.Errorf("write machine id: %w", err)
	}

	return id, nil
}

func newMachineID() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return raw[:machineIDLen]
}

func resolveUser(override string) string {
	if override != "" {
		return override
	}

	if v := os.Getenv("USER"); v != "" {
		return v
	}
	if v := os.Getenv("USERNAME"); v != "" {
		return v
	}

	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}

	return "unknown"
}
