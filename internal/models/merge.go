package models

import "database/sql"

// DiffClass classifies how two copies of a table diverge.
type DiffClass string

const (
	// DiffNone means the copies are identical.
	DiffNone DiffClass = "none"
	// DiffCountOnly means row counts differ but no row-level detail was
	// computed to explain why.
	DiffCountOnly DiffClass = "countOnly"
	// DiffContentDivergent means at least one row hash exists on one
	// side only. Takes precedence over countOnly even when counts match.
	DiffContentDivergent DiffClass = "contentDivergent"
)

// Resolution selects which copy wins for one divergent table.
type Resolution string

const (
	// KeepMine leaves the target table untouched. The default.
	KeepMine Resolution = "keepMine"
	// KeepTheirs replaces the target table wholesale with the source copy.
	KeepTheirs Resolution = "keepTheirs"
)

// MaxDiffSamples bounds the human-readable row samples collected per
// side of a diff. Reports stay reviewable regardless of table size.
const MaxDiffSamples = 3

// TableDiff describes the divergence found in one table.
type TableDiff struct {
	Table         string     `json:"table"`
	Label         string     `json:"label"`
	Class         DiffClass  `json:"class"`
	MineCount     int        `json:"mine_count"`
	TheirsCount   int        `json:"theirs_count"`
	OnlyMine      int        `json:"only_mine"`
	OnlyTheirs    int        `json:"only_theirs"`
	SamplesMine   []string   `json:"samples_mine,omitempty"`
	SamplesTheirs []string   `json:"samples_theirs,omitempty"`
	Resolution    Resolution `json:"resolution"`
}

// Report summarizes one analysis run. Tables with no divergence are
// counted but omitted from Diffs, so an empty Diffs list with a nonzero
// Scanned count is a confirmed-identical state, not a failure.
type Report struct {
	Scanned   int         `json:"scanned"`
	Identical int         `json:"identical"`
	Skipped   []string    `json:"skipped,omitempty"`
	Diffs     []TableDiff `json:"diffs"`
}

// Divergent reports whether any scanned table differs between copies.
func (r *Report) Divergent() bool {
	return len(r.Diffs) > 0
}

// Queryer is the subset of database/sql the merge layer reads through.
// Satisfied by *sql.DB and *sql.Tx.
type Queryer interface {
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// TableSpec registers one table for merge analysis. Columns fixes the
// canonical column order used for row hashing, so hashes are stable
// regardless of the order the query layer returns columns in.
type TableSpec struct {
	// Table is the SQL table name.
	Table string
	// Label is the short human name shown in reports.
	Label string
	// Description explains what the table holds.
	Description string
	// Columns lists the user-data columns in canonical hash order.
	Columns []string
	// NaturalKey lists the columns whose combination identifies a row
	// to a human. Uniqueness is enforced over live rows only, so a
	// deleted key can be reused without colliding with its tombstone.
	NaturalKey []string
	// Describe renders one row for human review. It may consult the
	// owning database copy for lookups. Nil falls back to a generic
	// description.
	Describe func(row map[string]interface{}, db Queryer) string
}
