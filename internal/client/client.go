// Package client wires configuration into the services the CLI drives:
// the shared-folder backend, the claimant identity, the lock
// coordinator, the merge engine, and database access.
package client

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/pat-drk/schedsync/internal/clock"
	"github.com/pat-drk/schedsync/internal/config"
	"github.com/pat-drk/schedsync/internal/db"
	"github.com/pat-drk/schedsync/internal/events"
	"github.com/pat-drk/schedsync/internal/identity"
	"github.com/pat-drk/schedsync/internal/models"
	"github.com/pat-drk/schedsync/internal/schedule"
	"github.com/pat-drk/schedsync/internal/schema"
	"github.com/pat-drk/schedsync/internal/services/lock"
	"github.com/pat-drk/schedsync/internal/services/merge"
	"github.com/pat-drk/schedsync/internal/storage"
)

// DefaultDatabaseName is the database filename assumed when the config
// does not name one explicitly and the folder backend is local.
const DefaultDatabaseName = "schedule.db"

// Client provides the high-level API for coordination operations.
type Client struct {
	Lock  *lock.Coordinator
	Merge *merge.Engine

	config *config.Config
	logger *events.Logger
	folder storage.Folder
	id     *identity.Identity

	// The database opens lazily: lock-only commands must not create
	// WAL side files inside the shared folder.
	dbMu     sync.Mutex
	database *db.DB
}

// New creates a client from validated configuration.
func New(ctx context.Context, cfg *config.Config, logger *events.Logger) (*Client, error) {
	folder, err := newFolder(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	id, err := identity.Load(cfg.Identity.MachineIDFile, cfg.Identity.User)
	if err != nil {
		return nil, fmt.Errorf("resolve identity: %w", err)
	}

	return &Client{
		Lock:   lock.NewCoordinator(folder, clock.NewSystem(), id, &cfg.Lock, logger),
		Merge:  merge.NewEngine(&cfg.Merge, logger),
		config: cfg,
		logger: logger,
		folder: folder,
		id:     id,
	}, nil
}

func newFolder(ctx context.Context, cfg *config.Config, logger *events.Logger) (storage.Folder, error) {
	switch cfg.Folder.Backend {
	case "local":
		return storage.NewLocalFolder(cfg.Folder.Path, logger)
	case "s3":
		return storage.NewS3Folder(ctx, cfg.Folder.S3Bucket, cfg.Folder.S3Prefix, logger)
	case "mock":
		return storage.NewMockFolder(), nil
	default:
		return nil, fmt.Errorf("%w: %s", models.ErrUnknownBackend, cfg.Folder.Backend)
	}
}

// Identity returns the claimant identity in use.
func (c *Client) Identity() *identity.Identity {
	return c.id
}

// Folder returns the shared-folder backend.
func (c *Client) Folder() storage.Folder {
	return c.folder
}

// Registry returns the merge registry for the scheduling domain.
func (c *Client) Registry() []models.TableSpec {
	return schedule.Registry()
}

// DatabasePath resolves the shared database file location. An explicit
// database.path always wins; with the local backend the file defaults
// to living inside the shared folder.
func (c *Client) DatabasePath() (string, error) {
	if c.config.Database.Path != "" {
		return c.config.Database.Path, nil
	}
	if c.config.Folder.Backend == "local" && c.config.Folder.Path != "" {
		return filepath.Join(c.config.Folder.Path, DefaultDatabaseName), nil
	}
	return "", fmt.Errorf("database.path is required with the %s backend", c.config.Folder.Backend)
}

// Database opens the shared database on first use and reuses the handle
// afterwards.
func (c *Client) Database(ctx context.Context) (*db.DB, error) {
	c.dbMu.Lock()
	defer c.dbMu.Unlock()

	if c.database != nil {
		return c.database, nil
	}

	path, err := c.DatabasePath()
	if err != nil {
		return nil, err
	}

	database, err := db.Open(path, c.config.Database.BusyTimeout, c.logger)
	if err != nil {
		return nil, err
	}
	if err := database.SetMeta(ctx, db.MetaKeyClientUser, c.id.User); err != nil {
		_ = database.Close()
		return nil, err
	}

	c.database = database
	return database, nil
}

// Schema returns a schema manager over the shared database, opening it
// if needed.
func (c *Client) Schema(ctx context.Context) (*schema.Manager, error) {
	database, err := c.Database(ctx)
	if err != nil {
		return nil, err
	}
	return schema.NewManager(database, c.logger), nil
}

// Close releases the database handle when one was opened. The lock, if
// held, stays held; releasing it is an explicit caller decision.
func (c *Client) Close() error {
	c.dbMu.Lock()
	defer c.dbMu.Unlock()

	if c.database == nil {
		return nil
	}
	err := c.database.Close()
	c.database = nil
	return err
}
