// Package schedule defines the scheduling tables this app reconciles:
// who exists, which shifts they hold, which roles they are trained
// for, and one-off availability overrides.
//
// Tables reference people by name rather than by local row id. Local
// autoincrement ids differ between independently evolved copies of the
// database, so natural values are the only references that stay
// meaningful when one table is replaced wholesale during a merge.
package schedule

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pat-drk/schedsync/internal/models"
)

// EnsureBaseTables creates the scheduling tables if they do not exist.
// Only domain columns here; the schema layer adds the sync envelope.
func EnsureBaseTables(ctx context.Context, conn *sql.DB) error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS people (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT NOT NULL,
            email TEXT,
            notes TEXT
        )`,
		`CREATE TABLE IF NOT EXISTS assignments (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            person TEXT NOT NULL,
            shift_date TEXT NOT NULL,
            shift TEXT NOT NULL,
            role TEXT
        )`,
		`CREATE TABLE IF NOT EXISTS trainings (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            person TEXT NOT NULL,
            role TEXT NOT NULL,
            level INTEGER NOT NULL DEFAULT 1
        )`,
		`CREATE TABLE IF NOT EXISTS shift_overrides (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            person TEXT NOT NULL,
            shift_date TEXT NOT NULL,
            kind TEXT NOT NULL,
            note TEXT
        )`,
	}

	for _, ddl := range tables {
		if _, err := conn.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create schedule table: %w", err)
		}
	}

	return nil
}

// Registry returns the merge registry for the scheduling domain. Column
// lists fix the canonical hash order; natural keys drive the partial
// unique indexes.
func Registry() []models.TableSpec {
	return []models.TableSpec{
		{
			Table:       "people",
			Label:       "People",
			Description: "Staff members who can be scheduled",
			Columns:     []string{"name", "email", "notes"},
			NaturalKey:  []string{"name"},
			Describe:    describePerson,
		},
		{
			Table:       "assignments",
			Label:       "Shift assignments",
			Description: "Who works which shift on which day",
			Columns:     []string{"person", "shift_date", "shift", "role"},
			NaturalKey:  []string{"person", "shift_date", "shift"},
			Describe:    describeAssignment,
		},
		{
			Table:       "trainings",
			Label:       "Trainings",
			Description: "Roles each person is qualified to fill",
			Columns:     []string{"person", "role", "level"},
			NaturalKey:  []string{"person", "role"},
			Describe:    describeTraining,
		},
		{
			Table:       "shift_overrides",
			Label:       "Shift overrides",
			Description: "One-off availability exceptions",
			Columns:     []string{"person", "shift_date", "kind", "note"},
			NaturalKey:  []string{"person", "shift_date", "kind"},
			Describe:    describeOverride,
		},
	}
}

func describePerson(row map[string]interface{}, q models.Queryer) string {
	name := text(row["name"])

	if q != nil {
		var count int
		err := q.QueryRow(
			"SELECT COUNT(*) FROM assignments WHERE person = ? AND deletedAt IS NULL",
			name).Scan(&count)
		if err == nil && count > 0 {
			return fmt.Sprintf("%s (%d assignments)", name, count)
		}
	}

	if email := text(row["email"]); email != "" {
		return fmt.Sprintf("%s <%s>", name, email)
	}
	return name
}

func describeAssignment(row map[string]interface{}, _ models.Queryer) string {
	desc := fmt.Sprintf("%s %s: %s",
		text(row["shift_date"]), text(row["shift"]), text(row["person"]))
	if role := text(row["role"]); role != "" {
		desc += " as " + role
	}
	return desc
}

func describeTraining(row map[string]interface{}, _ models.Queryer) string {
	return fmt.Sprintf("%s trained as %s (level %s)",
		text(row["person"]), text(row["role"]), text(row["level"]))
}

func describeOverride(row map[string]interface{}, _ models.Queryer) string {
	desc := fmt.Sprintf("%s %s: %s",
		text(row["shift_date"]), text(row["person"]), text(row["kind"]))
	if note := text(row["note"]); note != "" {
		desc += " (" + note + ")"
	}
	return desc
}

// text renders a scanned SQL value for display. The driver hands back
// []byte for text columns and int64 for integers.
func text(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case int64:
		return fmt.Sprintf("%d", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
