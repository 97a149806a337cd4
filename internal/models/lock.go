package models

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Lock file naming contract: lock-<timestamp>-<machineId>.json, where the
// timestamp is ISO 8601 UTC at millisecond precision with ':' and '.'
// replaced by '-' so the name is portable across filesystems. The fixed
// width makes lexicographic filename order equal creation order. Other
// tooling parses these names; the format must remain stable.
const (
	LockPrefix = "lock-"
	LockSuffix = ".json"

	lockTimeLayout = "2006-01-02T15:04:05.000Z"
)

var lockNameRe = regexp.MustCompile(
	`^lock-(\d{4}-\d{2}-\d{2}T\d{2}-\d{2}-\d{2}-\d{3}Z)-([A-Za-z0-9]+)\.json$`)

var lockStampReplacer = strings.NewReplacer(":", "-", ".", "-")

// FormatLockName builds a lock file name for a claim created at the
// given instant by the given machine.
func FormatLockName(createdAt time.Time, machineID string) string {
	stamp := lockStampReplacer.Replace(createdAt.UTC().Format(lockTimeLayout))
	return LockPrefix + stamp + "-" + machineID + LockSuffix
}

// IsLockName reports whether name matches the lock naming contract.
func IsLockName(name string) bool {
	return lockNameRe.MatchString(name)
}

// LockName is the parsed identity a lock file carries in its filename.
// The name, once created, is immutable proof of when acquisition began,
// independent of later heartbeat edits to the contents.
type LockName struct {
	Name      string
	CreatedAt time.Time
	MachineID string
}

// ParseLockName decodes a lock file name. Returns ErrInvalidLockName for
// names outside the contract (including sync-layer conflict renames).
func ParseLockName(name string) (*LockName, error) {
	m := lockNameRe.FindStringSubmatch(name)
	if m == nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidLockName, name)
	}

	stamp := m[1]
	iso := stamp[:13] + ":" + stamp[14:16] + ":" + stamp[17:19] + "." + stamp[20:23] + "Z"
	createdAt, err := time.Parse(lockTimeLayout, iso)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidLockName, name, err)
	}

	return &LockName{
		Name:      name,
		CreatedAt: createdAt.UTC(),
		MachineID: m[2],
	}, nil
}

// Before reports whether n was created before other. Timestamp ties are
// broken by full filename comparison for determinism.
func (n *LockName) Before(other *LockName) bool {
	if !n.CreatedAt.Equal(other.CreatedAt) {
		return n.CreatedAt.Before(other.CreatedAt)
	}
	return n.Name < other.Name
}

// LockRecord is the JSON payload of a lock file. Key names are a wire
// contract; do not rename.
type LockRecord struct {
	User          string    `json:"user"`
	LastSeenLock  *string   `json:"lastSeenLock"`
	LastHeartbeat time.Time `json:"lastHeartbeat"`
}

// NewLockRecord creates the initial payload for a fresh claim.
func NewLockRecord(user string, lastSeen *string, now time.Time) *LockRecord {
	return &LockRecord{
		User:          user,
		LastSeenLock:  lastSeen,
		LastHeartbeat: now.UTC(),
	}
}

// LockFile pairs a parsed lock name with its decoded contents. Record is
// nil when the bytes were unreadable or had not propagated through the
// sync layer yet, which is routine within the propagation window.
type LockFile struct {
	LockName
	Record *LockRecord
}

// EffectiveHeartbeat returns the newest liveness signal available for
// the lock. An unreadable record falls back to the creation time from
// the filename, so a freshly created claim is never mistaken for stale.
func (f *LockFile) EffectiveHeartbeat() time.Time {
	if f.Record != nil && f.Record.LastHeartbeat.After(f.CreatedAt) {
		return f.Record.LastHeartbeat
	}
	return f.CreatedAt
}

// Stale reports whether the lock's heartbeat age exceeds threshold at
// the given instant. Stale locks are treated as abandoned and may be
// reclaimed.
func (f *LockFile) Stale(now time.Time, threshold time.Duration) bool {
	return now.Sub(f.EffectiveHeartbeat()) > threshold
}

// Owner returns the claimant identity for display: the user recorded in
// the contents when readable, otherwise the machine ID from the name.
func (f *LockFile) Owner() string {
	if f.Record != nil && f.Record.User != "" {
		return f.Record.User
	}
	return f.MachineID
}
