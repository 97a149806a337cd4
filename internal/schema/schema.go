// Package schema provisions the sync-tracking envelope on schedule
// tables: row identity, mutation provenance, tombstones, active-row
// views, and the partial unique indexes that scope natural-key
// uniqueness to live rows.
//
// Provisioning is idempotent. Columns are added only when missing,
// triggers and views are recreated so their definitions stay current,
// and rows that predate the envelope are backfilled.
package schema

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/pat-drk/schedsync/internal/db"
	"github.com/pat-drk/schedsync/internal/events"
	"github.com/pat-drk/schedsync/internal/models"
)

// Execer is the subset of database/sql the helpers write through.
// Satisfied by *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// SyncColumns lists the envelope columns in the order they are added.
var SyncColumns = []string{"syncId", "modifiedAt", "modifiedBy", "deletedAt"}

// nowExpr stamps ISO-8601 UTC with millisecond precision, the
// timestamp format used throughout the system.
const nowExpr = "strftime('%Y-%m-%dT%H:%M:%fZ','now')"

// syncIDExpr mints a 32-char hex row identity inside the database, so
// rows inserted by any tool get one even without this app running.
const syncIDExpr = "lower(hex(randomblob(16)))"

// ActiveView returns the name of a table's live-rows view.
func ActiveView(table string) string {
	return "active_" + table
}

// Manager provisions and maintains the sync envelope on one database
// copy.
type Manager struct {
	db     *db.DB
	logger *events.Logger
}

// NewManager creates a schema manager for the given database.
func NewManager(database *db.DB, logger *events.Logger) *Manager {
	return &Manager{
		db:     database,
		logger: logger.WithField("component", "schema"),
	}
}

// EnsureSyncTracking provisions every registered table and seeds the
// meta keys the envelope depends on. The user becomes the session's
// provenance identity.
func (m *Manager) EnsureSyncTracking(ctx context.Context, specs []models.TableSpec, user string) error {
	// Meta first; column backfill and triggers read clientUser from it.
	if err := m.seedMeta(ctx, user); err != nil {
		return err
	}

	for _, spec := range specs {
		if err := m.ensureTable(ctx, spec); err != nil {
			return fmt.Errorf("sync tracking for %s: %w", spec.Table, err)
		}
	}

	return nil
}

func (m *Manager) seedMeta(ctx context.Context, user string) error {
	if _, err := m.db.GetMeta(ctx, db.MetaKeySyncUUID); err != nil {
		if !errors.Is(err, models.ErrMetaKeyMissing) {
			return err
		}

		lineage := uuid.NewString()
		if err := m.db.SetMeta(ctx, db.MetaKeySyncUUID, lineage); err != nil {
			return err
		}
		m.logger.WithField("sync_uuid", lineage).Info("Minted database lineage identity")
	}

	if user == "" {
		user = "unknown"
	}
	return m.db.SetMeta(ctx, db.MetaKeyClientUser, user)
}

func (m *Manager) ensureTable(ctx context.Context, spec models.TableSpec) error {
	conn := m.db.Raw()

	existing, err := tableColumns(ctx, conn, spec.Table)
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		return fmt.Errorf("%w: %s", models.ErrTableMissing, spec.Table)
	}

	for _, col := range SyncColumns {
		if existing[col] {
			continue
		}

		ddl := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s TEXT", spec.Table, col)
		if _, err := conn.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("add column %s: %w", col, err)
		}

		m.logger.WithFields(map[string]interface{}{
			"table":  spec.Table,
			"column": col,
		}).Debug("Added sync column")
	}

	if err := m.backfill(ctx, spec.Table); err != nil {
		return err
	}
	if err := m.ensureTriggers(ctx, spec.Table); err != nil {
		return err
	}
	if err := m.ensureView(ctx, spec.Table); err != nil {
		return err
	}
	return m.ensureIndexes(ctx, spec)
}

// backfill stamps envelope values onto rows that predate provisioning.
// randomblob evaluates per row, so each row gets its own identity.
func (m *Manager) backfill(ctx context.Context, table string) error {
	query := fmt.Sprintf(`
        UPDATE %[1]s SET
            syncId = COALESCE(syncId, %[2]s),
            modifiedAt = COALESCE(modifiedAt, %[3]s),
            modifiedBy = COALESCE(modifiedBy, (SELECT value FROM meta WHERE key = '%[4]s'), 'unknown')
        WHERE syncId IS NULL OR modifiedAt IS NULL OR modifiedBy IS NULL
    `, table, syncIDExpr, nowExpr, db.MetaKeyClientUser)

	res, err := m.db.Raw().ExecContext(ctx, query)
	if err != nil {
		return fmt.Errorf("backfill envelope: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n > 0 {
		m.logger.WithFields(map[string]interface{}{
			"table": table,
			"rows":  n,
		}).Info("Backfilled sync envelope")
	}
	return nil
}

// ensureTriggers installs the provenance triggers. The update trigger
// updates the row it fired for, which must not re-trigger itself;
// recursive_triggers stays off (the SQLite default) and the connection
// layer never enables it.
//
// The insert trigger fires only when the insert left part of the
// envelope NULL. Rows copied wholesale from another database arrive
// with a complete envelope, skip the trigger, and keep their original
// identity and provenance. Local inserts get the gaps filled, and the
// filling update advances provenance like any other update.
func (m *Manager) ensureTriggers(ctx context.Context, table string) error {
	conn := m.db.Raw()

	triggers := []struct {
		name string
		ddl  string
	}{
		{
			name: fmt.Sprintf("trg_%s_sync_insert", table),
			ddl: fmt.Sprintf(`
                CREATE TRIGGER trg_%[1]s_sync_insert AFTER INSERT ON %[1]s
                WHEN NEW.syncId IS NULL OR NEW.modifiedAt IS NULL OR NEW.modifiedBy IS NULL
                BEGIN
                    UPDATE %[1]s SET
                        syncId = COALESCE(NEW.syncId, %[2]s),
                        modifiedAt = COALESCE(NEW.modifiedAt, %[3]s),
                        modifiedBy = COALESCE(NEW.modifiedBy, (SELECT value FROM meta WHERE key = '%[4]s'), 'unknown')
                    WHERE rowid = NEW.rowid;
                END`, table, syncIDExpr, nowExpr, db.MetaKeyClientUser),
		},
		{
			name: fmt.Sprintf("trg_%s_sync_update", table),
			ddl: fmt.Sprintf(`
                CREATE TRIGGER trg_%[1]s_sync_update AFTER UPDATE ON %[1]s
                BEGIN
                    UPDATE %[1]s SET
                        modifiedAt = %[2]s,
                        modifiedBy = COALESCE((SELECT value FROM meta WHERE key = '%[3]s'), 'unknown')
                    WHERE rowid = NEW.rowid;
                END`, table, nowExpr, db.MetaKeyClientUser),
		},
	}

	for _, trg := range triggers {
		if _, err := conn.ExecContext(ctx, "DROP TRIGGER IF EXISTS "+trg.name); err != nil {
			return fmt.Errorf("drop trigger %s: %w", trg.name, err)
		}
		if _, err := conn.ExecContext(ctx, trg.ddl); err != nil {
			return fmt.Errorf("create trigger %s: %w", trg.name, err)
		}
	}

	return nil
}

// ensureView recreates the live-rows view and its delete rewrite, so
// deletes issued against the view become tombstone sets instead of
// physical removals.
func (m *Manager) ensureView(ctx context.Context, table string) error {
	conn := m.db.Raw()
	view := ActiveView(table)

	if _, err := conn.ExecContext(ctx, "DROP VIEW IF EXISTS "+view); err != nil {
		return fmt.Errorf("drop view %s: %w", view, err)
	}

	ddl := fmt.Sprintf("CREATE VIEW %s AS SELECT * FROM %s WHERE deletedAt IS NULL", view, table)
	if _, err := conn.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create view %s: %w", view, err)
	}

	trigger := fmt.Sprintf(`
        CREATE TRIGGER trg_%[1]s_delete INSTEAD OF DELETE ON %[1]s
        BEGIN
            UPDATE %[2]s SET deletedAt = %[3]s WHERE syncId = OLD.syncId;
        END`, view, table, nowExpr)
	if _, err := conn.ExecContext(ctx, trigger); err != nil {
		return fmt.Errorf("create view delete trigger: %w", err)
	}

	return nil
}

// ensureIndexes enforces row-identity uniqueness and, when the spec
// names a natural key, uniqueness over live rows only. The partial
// index is what lets a deleted key be re-added without colliding with
// its own tombstone.
func (m *Manager) ensureIndexes(ctx context.Context, spec models.TableSpec) error {
	conn := m.db.Raw()

	syncIdx := fmt.Sprintf(
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_%[1]s_sync_id ON %[1]s (syncId)",
		spec.Table)
	if _, err := conn.ExecContext(ctx, syncIdx); err != nil {
		return fmt.Errorf("create syncId index: %w", err)
	}

	if len(spec.NaturalKey) == 0 {
		return nil
	}

	keyIdx := fmt.Sprintf(
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_%[1]s_active_key ON %[1]s (%[2]s) WHERE deletedAt IS NULL",
		spec.Table, strings.Join(spec.NaturalKey, ", "))
	if _, err := conn.ExecContext(ctx, keyIdx); err != nil {
		return fmt.Errorf("create natural key index: %w", err)
	}

	return nil
}

// TombstoneDelete rewrites a delete into a tombstone set. Rows already
// tombstoned are left untouched so their original deletion time
// survives a repeat. Returns the number of rows newly tombstoned.
func TombstoneDelete(ctx context.Context, q Execer, table, where string, args ...interface{}) (int64, error) {
	query := fmt.Sprintf(
		"UPDATE %s SET deletedAt = %s WHERE deletedAt IS NULL AND (%s)",
		table, nowExpr, where)

	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("tombstone %s: %w", table, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("tombstone %s: %w", table, err)
	}
	return n, nil
}

// Touch advances matching rows' provenance without changing their
// content. The assignment is a no-op; the update trigger does the
// actual stamping.
func Touch(ctx context.Context, q Execer, table, where string, args ...interface{}) (int64, error) {
	query := fmt.Sprintf("UPDATE %s SET syncId = syncId WHERE %s", table, where)

	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("touch %s: %w", table, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("touch %s: %w", table, err)
	}
	return n, nil
}

func tableColumns(ctx context.Context, conn *sql.DB, table string) (map[string]bool, error) {
	rows, err := conn.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, fmt.Errorf("inspect table %s: %w", table, err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return nil, fmt.Errorf("scan column info: %w", err)
		}
		cols[name] = true
	}

	return cols, rows.Err()
}
