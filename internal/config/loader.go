package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader handles configuration loading from defaults, file, and
// environment. Precedence: env > file > defaults.
type Loader struct {
	configPath string
	v          *viper.Viper
}

// NewLoader creates a config loader. An empty configPath searches the
// default locations instead of requiring a file.
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
		v:          viper.New(),
	}
}

// Load reads configuration from file and environment.
func (l *Loader) Load() (*Config, error) {
	l.registerDefaults()

	if l.configPath != "" {
		l.v.SetConfigFile(l.configPath)
	} else {
		l.v.SetConfigName("schedsync")
		l.v.SetConfigType("json")
		l.v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			l.v.AddConfigPath(filepath.Join(home, ".config", "schedsync"))
		}
	}

	l.v.SetEnvPrefix("SCHEDSYNC")
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if l.configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("load config file: %w", err)
		}
		// No config file anywhere in the search path; defaults and
		// environment still apply.
	}

	cfg := &Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// registerDefaults seeds viper with DefaultConfig values so environment
// overrides resolve even for keys absent from the config file.
func (l *Loader) registerDefaults() {
	def := DefaultConfig()

	l.v.SetDefault("folder.backend", def.Folder.Backend)
	l.v.SetDefault("folder.path", def.Folder.Path)
	l.v.SetDefault("folder.s3_bucket", def.Folder.S3Bucket)
	l.v.SetDefault("folder.s3_prefix", def.Folder.S3Prefix)

	l.v.SetDefault("lock.heartbeat_interval", def.Lock.HeartbeatInterval)
	l.v.SetDefault("lock.stale_threshold", def.Lock.StaleThreshold)
	l.v.SetDefault("lock.propagation_wait", def.Lock.PropagationWait)
	l.v.SetDefault("lock.extended_checks", def.Lock.ExtendedChecks)
	l.v.SetDefault("lock.extended_check_interval", def.Lock.ExtendedCheckInterval)

	l.v.SetDefault("merge.sample_limit", def.Merge.SampleLimit)

	l.v.SetDefault("database.path", def.Database.Path)
	l.v.SetDefault("database.busy_timeout", def.Database.BusyTimeout)

	l.v.SetDefault("identity.user", def.Identity.User)
	l.v.SetDefault("identity.machine_id_file", def.Identity.MachineIDFile)

	l.v.SetDefault("log.level", def.Log.Level)
	l.v.SetDefault("log.format", def.Log.Format)
	l.v.SetDefault("log.file", def.Log.File)
	l.v.SetDefault("log.max_size_mb", def.Log.MaxSizeMB)
	l.v.SetDefault("log.max_backups", def.Log.MaxBackups)
	l.v.SetDefault("log.max_age_days", def.Log.MaxAgeDays)
	l.v.SetDefault("log.compress", def.Log.Compress)
}

// SaveExample writes an example config file with default values.
// Durations are written as strings so the file stays hand-editable.
func SaveExample(path string) error {
	example := `{
  "folder": {
    "backend": "local",
    "path": "/path/to/SchedulingShared"
  },
  "database": {
    "path": "/path/to/SchedulingShared/schedule.db",
    "busy_timeout": "5s"
  },
  "lock": {
    "heartbeat_interval": "30s",
    "stale_threshold": "5m",
    "propagation_wait": "5s",
    "extended_checks": 3,
    "extended_check_interval": "10s"
  },
  "merge": {
    "sample_limit": 3
  },
  "identity": {
    "user": ""
  },
  "log": {
    "level": "info",
    "format": "text",
    "file": ""
  }
}
`

	if err := os.WriteFile(path, []byte(example), 0600); err != nil {
		return fmt.Errorf("write file: %w", err)
	}

	return nil
}
