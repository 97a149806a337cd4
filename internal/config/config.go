package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Shared folder carrying the database and lock files
	Folder FolderConfig `json:"folder" mapstructure:"folder"`

	// Lock coordination behavior
	Lock LockConfig `json:"lock" mapstructure:"lock"`

	// Merge analysis behavior
	Merge MergeConfig `json:"merge" mapstructure:"merge"`

	// Database access
	Database DatabaseConfig `json:"database" mapstructure:"database"`

	// Claimant identity
	Identity IdentityConfig `json:"identity" mapstructure:"identity"`

	// Logging
	Log LogConfig `json:"log" mapstructure:"log"`
}

// FolderConfig locates the shared folder. The folder is replicated
// between machines by an external sync client; nothing here assumes it
// behaves like a consistent filesystem.
type FolderConfig struct {
	Backend  string `json:"backend" mapstructure:"backend"`                       // local, s3
	Path     string `json:"path" mapstructure:"path"`                             // local: the synced directory
	S3Bucket string `json:"s3_bucket,omitempty" mapstructure:"s3_bucket"`         // s3: bucket name
	S3Prefix string `json:"s3_prefix,omitempty" mapstructure:"s3_prefix"`         // s3: key prefix
}

// LockConfig for lock coordination timing. The propagation wait and the
// staleness threshold are heuristics tuned to the sync provider's
// typical latency, not provable bounds; both stay configurable.
type LockConfig struct {
	HeartbeatInterval     time.Duration `json:"heartbeat_interval" mapstructure:"heartbeat_interval"`           // Refresh own lock this often
	StaleThreshold        time.Duration `json:"stale_threshold" mapstructure:"stale_threshold"`                 // Heartbeat age that marks a lock abandoned
	PropagationWait       time.Duration `json:"propagation_wait" mapstructure:"propagation_wait"`               // Wait after creating own lock before re-checking
	ExtendedChecks        int           `json:"extended_checks" mapstructure:"extended_checks"`                 // Late conflict re-checks after acquisition
	ExtendedCheckInterval time.Duration `json:"extended_check_interval" mapstructure:"extended_check_interval"` // Spacing between late checks
}

// MergeConfig for divergence reporting.
type MergeConfig struct {
	SampleLimit int `json:"sample_limit" mapstructure:"sample_limit"` // Max human-readable rows shown per side
}

// DatabaseConfig for the shared SQLite file.
type DatabaseConfig struct {
	Path        string        `json:"path" mapstructure:"path"`                 // Database file (usually inside the shared folder)
	BusyTimeout time.Duration `json:"busy_timeout" mapstructure:"busy_timeout"` // SQLite busy handler timeout
}

// IdentityConfig for the claimant's identity.
type IdentityConfig struct {
	User          string `json:"user,omitempty" mapstructure:"user"`                 // Display identity; defaults to the OS user
	MachineIDFile string `json:"machine_id_file" mapstructure:"machine_id_file"`     // Where the generated machine ID persists
}

// LogConfig for logging behavior.
type LogConfig struct {
	Level      string `json:"level" mapstructure:"level"`             // debug, info, warn, error
	Format     string `json:"format" mapstructure:"format"`           // text, json
	File       string `json:"file" mapstructure:"file"`               // Log file path (empty = stdout)
	MaxSizeMB  int    `json:"max_size_mb" mapstructure:"max_size_mb"` // Rotate after this size
	MaxBackups int    `json:"max_backups" mapstructure:"max_backups"` // Rotated files to keep
	MaxAgeDays int    `json:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `json:"compress" mapstructure:"compress"` // Gzip rotated files
}

// DefaultConfig returns config with sensible defaults.
func DefaultConfig() *Config {
	configDir := ".schedsync"
	if home, err := os.UserHomeDir(); err == nil {
		configDir = filepath.Join(home, ".config", "schedsync")
	}

	return &Config{
		Folder: FolderConfig{
			Backend: "local",
		},
		Lock: LockConfig{
			HeartbeatInterval:     30 * time.Second,
			StaleThreshold:        5 * time.Minute,
			PropagationWait:       5 * time.Second,
			ExtendedChecks:        3,
			ExtendedCheckInterval: 10 * time.Second,
		},
		Merge: MergeConfig{
			SampleLimit: 3,
		},
		Database: DatabaseConfig{
			BusyTimeout: 5 * time.Second,
		},
		Identity: IdentityConfig{
			MachineIDFile: filepath.Join(configDir, "machine-id"),
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			File:       "",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 7,
			Compress:   false,
		},
	}
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	switch c.Folder.Backend {
	case "local":
		if c.Folder.Path == "" {
			return errors.New("folder.path is required for the local backend")
		}
	case "s3":
		if c.Folder.S3Bucket == "" {
			return errors.New("folder.s3_bucket is required for the s3 backend")
		}
	case "mock":
		// In-memory backend used by tests.
	default:
		return fmt.Errorf("invalid folder.backend: %s", c.Folder.Backend)
	}

	if c.Lock.HeartbeatInterval <= 0 {
		return errors.New("lock.heartbeat_interval must be positive")
	}

	// Several consecutive missed beats from a slow sync layer must not
	// get a live claimant reclaimed out from under its edit session.
	if c.Lock.StaleThreshold < 5*c.Lock.HeartbeatInterval {
		return fmt.Errorf("lock.stale_threshold (%s) must be at least 5x lock.heartbeat_interval (%s)",
			c.Lock.StaleThreshold, c.Lock.HeartbeatInterval)
	}

	if c.Lock.PropagationWait <= 0 {
		return errors.New("lock.propagation_wait must be positive")
	}

	if c.Lock.ExtendedChecks < 0 {
		return errors.New("lock.extended_checks cannot be negative")
	}

	if c.Lock.ExtendedChecks > 0 && c.Lock.ExtendedCheckInterval <= 0 {
		return errors.New("lock.extended_check_interval must be positive")
	}

	if c.Merge.SampleLimit <= 0 {
		return errors.New("merge.sample_limit must be positive")
	}

	if c.Database.BusyTimeout <= 0 {
		return errors.New("database.busy_timeout must be positive")
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("invalid log format: %s", c.Log.Format)
	}

	return nil
}

// EnsureDirectories creates required directories.
func (c *Config) EnsureDirectories() error {
	var dirs []string

	if c.Folder.Backend == "local" && c.Folder.Path != "" {
		dirs = append(dirs, c.Folder.Path)
	}

	if c.Identity.MachineIDFile != "" {
		dirs = append(dirs, filepath.Dir(c.Identity.MachineIDFile))
	}

	if c.Log.File != "" {
		dirs = append(dirs, filepath.Dir(c.Log.File))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}
