// Package db opens copies of the shared schedule database with the
// settings every copy relies on: WAL journaling for concurrent reads,
// a busy timeout for contended writes, and enforced foreign keys.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pat-drk/schedsync/internal/events"
	"github.com/pat-drk/schedsync/internal/models"
)

// Meta keys every provisioned database carries.
const (
	// MetaKeySyncUUID identifies the database lineage. Minted once when
	// the database is first provisioned and copied with it thereafter,
	// so divergent copies of the same schedule can be recognized.
	MetaKeySyncUUID = "syncUuid"

	// MetaKeyLastCheckpoint records when this copy was last known to be
	// reconciled.
	MetaKeyLastCheckpoint = "lastCheckpoint"

	// MetaKeyClientUser names the user whose session currently has this
	// copy open. Provenance triggers read it for modifiedBy.
	MetaKeyClientUser = "clientUser"
)

// DB wraps a SQLite connection to one copy of the schedule database.
type DB struct {
	conn   *sql.DB
	path   string
	logger *events.Logger
}

// Open opens the database at path, creating it if needed. The caller
// must Close when done so the WAL is checkpointed back into the main
// file the sync layer replicates.
func Open(path string, busyTimeout time.Duration, logger *events.Logger) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// PRAGMAs ride on the DSN so every pooled connection gets them.
	dsn := fmt.Sprintf("%s?_journal=WAL&_timeout=%d&_fk=true", path, busyTimeout.Milliseconds())

	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{
		conn:   conn,
		path:   path,
		logger: logger.WithField("component", "db"),
	}

	if err := db.ensureMeta(context.Background()); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db.logger.WithField("path", path).Debug("Opened database")

	return db, nil
}

// Raw returns the underlying sql.DB for layers that query directly.
func (db *DB) Raw() *sql.DB {
	return db.conn
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Close checkpoints the WAL and closes the connection. Without the
// checkpoint the sync layer would replicate a main file missing the
// most recent transactions.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		db.logger.WithError(err).Warn("Failed to checkpoint WAL before close")
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}

	db.conn = nil
	return nil
}

// ensureMeta creates the key-value meta table. Idempotent, so opening
// an already provisioned copy changes nothing.
func (db *DB) ensureMeta(ctx context.Context) error {
	_, err := db.conn.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS meta (
            key TEXT PRIMARY KEY,
            value TEXT NOT NULL
        )
    `)
	if err != nil {
		return fmt.Errorf("create meta table: %w", err)
	}
	return nil
}

// GetMeta reads one meta value. Returns models.ErrMetaKeyMissing when
// the key has never been set.
func (db *DB) GetMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := db.conn.QueryRowContext(ctx,
		"SELECT value FROM meta WHERE key = ?", key).Scan(&value)

	if err == sql.ErrNoRows {
		return "", fmt.Errorf("%w: %s", models.ErrMetaKeyMissing, key)
	}
	if err != nil {
		return "", fmt.Errorf("query meta %s: %w", key, err)
	}

	return value, nil
}

// SetMeta writes one meta value, replacing any previous one.
func (db *DB) SetMeta(ctx context.Context, key, value string) error {
	_, err := db.conn.ExecContext(ctx, `
        INSERT INTO meta (key, value)
        VALUES (?, ?)
        ON CONFLICT(key) DO UPDATE SET value = excluded.value
    `, key, value)
	if err != nil {
		return fmt.Errorf("upsert meta %s: %w", key, err)
	}

	return nil
}
