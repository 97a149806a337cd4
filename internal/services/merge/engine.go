// Package merge computes and applies reconciliation between two copies
// of the schedule database that evolved independently while sharing a
// lineage.
//
// Analysis never mutates either copy. Rows are matched by a content
// hash rather than by position or local id, so two copies that hold
// the same logical rows in different physical order read as identical.
package merge

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/pat-drk/schedsync/internal/config"
	"github.com/pat-drk/schedsync/internal/events"
	"github.com/pat-drk/schedsync/internal/models"
)

// errScanDone stops a row scan early once enough samples are held.
var errScanDone = errors.New("scan done")

// Engine analyzes and reconciles table-level divergence.
type Engine struct {
	sampleLimit int
	logger      *events.Logger
}

// NewEngine creates a merge engine.
func NewEngine(cfg *config.MergeConfig, logger *events.Logger) *Engine {
	limit := cfg.SampleLimit
	if limit <= 0 {
		limit = models.MaxDiffSamples
	}

	return &Engine{
		sampleLimit: limit,
		logger:      logger.WithField("component", "merge_engine"),
	}
}

// Analyze compares every registered table across the two copies and
// returns a report of the divergence found. One table's failure is
// logged and recorded as skipped, never aborting the rest of the run.
func (e *Engine) Analyze(ctx context.Context, mine, theirs *sql.DB, registry []models.TableSpec) (*models.Report, error) {
	report := &models.Report{}

	for _, spec := range registry {
		mineHas, err := tableExists(ctx, mine, spec.Table)
		if err != nil {
			e.skipTable(report, spec.Table, err)
			continue
		}
		theirsHas, err := tableExists(ctx, theirs, spec.Table)
		if err != nil {
			e.skipTable(report, spec.Table, err)
			continue
		}
		if !mineHas || !theirsHas {
			e.skipTable(report, spec.Table,
				fmt.Errorf("%w (mine: %v, theirs: %v)", models.ErrTableMissing, mineHas, theirsHas))
			continue
		}

		diff, err := e.analyzeTable(ctx, mine, theirs, spec)
		if err != nil {
			e.skipTable(report, spec.Table, err)
			continue
		}

		report.Scanned++
		if diff.Class == models.DiffNone {
			report.Identical++
			continue
		}
		report.Diffs = append(report.Diffs, *diff)
	}

	e.logger.WithFields(map[string]interface{}{
		"scanned":   report.Scanned,
		"identical": report.Identical,
		"divergent": len(report.Diffs),
		"skipped":   len(report.Skipped),
	}).Info("Analysis complete")

	return report, nil
}

func (e *Engine) skipTable(report *models.Report, table string, err error) {
	e.logger.WithError(err).WithField("table", table).Warn("Skipping table")
	report.Skipped = append(report.Skipped, table)
}

func (e *Engine) analyzeTable(ctx context.Context, mine, theirs *sql.DB, spec models.TableSpec) (*models.TableDiff, error) {
	mineCount, err := countRows(ctx, mine, spec.Table)
	if err != nil {
		return nil, err
	}
	theirsCount, err := countRows(ctx, theirs, spec.Table)
	if err != nil {
		return nil, err
	}

	diff := &models.TableDiff{
		Table:       spec.Table,
		Label:       spec.Label,
		Class:       models.DiffNone,
		MineCount:   mineCount,
		TheirsCount: theirsCount,
		Resolution:  models.KeepMine,
	}

	onlyMine, onlyTheirs, samplesMine, samplesTheirs, err := e.compareContent(ctx, mine, theirs, spec)
	if err != nil {
		// Counts are still real evidence when row hashing is not.
		if mineCount != theirsCount {
			e.logger.WithError(err).WithField("table", spec.Table).
				Warn("Content comparison failed, reporting counts only")
			diff.Class = models.DiffCountOnly
			return diff, nil
		}
		return nil, err
	}

	diff.OnlyMine = onlyMine
	diff.OnlyTheirs = onlyTheirs
	diff.SamplesMine = samplesMine
	diff.SamplesTheirs = samplesTheirs

	switch {
	case onlyMine > 0 || onlyTheirs > 0:
		diff.Class = models.DiffContentDivergent
	case mineCount != theirsCount:
		diff.Class = models.DiffCountOnly
	}

	return diff, nil
}

// compareContent hashes every row on both sides and set-differences
// the multisets. Duplicate rows count per occurrence, so a copy with
// the same row twice still reads as divergent from one holding it once.
func (e *Engine) compareContent(ctx context.Context, mine, theirs *sql.DB, spec models.TableSpec) (onlyMine, onlyTheirs int, samplesMine, samplesTheirs []string, err error) {
	cols := hashColumns(spec)
	query := "SELECT " + strings.Join(cols, ", ") + " FROM " + spec.Table

	remaining := make(map[string]int)
	err = scanRows(ctx, mine, query, cols, func(hash string, _ map[string]interface{}) error {
		remaining[hash]++
		return nil
	})
	if err != nil {
		return 0, 0, nil, nil, fmt.Errorf("hash mine rows: %w", err)
	}

	// Their rows consume matches; what they cannot match is theirs
	// alone, and whatever is left over afterward is ours alone.
	err = scanRows(ctx, theirs, query, cols, func(hash string, row map[string]interface{}) error {
		if remaining[hash] > 0 {
			remaining[hash]--
			return nil
		}
		onlyTheirs++
		if len(samplesTheirs) < e.sampleLimit {
			samplesTheirs = append(samplesTheirs, e.describeRow(spec, row, theirs))
		}
		return nil
	})
	if err != nil {
		return 0, 0, nil, nil, fmt.Errorf("hash their rows: %w", err)
	}

	for _, n := range remaining {
		onlyMine += n
	}

	if onlyMine > 0 {
		err = scanRows(ctx, mine, query, cols, func(hash string, row map[string]interface{}) error {
			if len(samplesMine) >= e.sampleLimit {
				return errScanDone
			}
			if remaining[hash] > 0 {
				remaining[hash]--
				samplesMine = append(samplesMine, e.describeRow(spec, row, mine))
			}
			return nil
		})
		if err != nil {
			return 0, 0, nil, nil, fmt.Errorf("sample mine rows: %w", err)
		}
	}

	return onlyMine, onlyTheirs, samplesMine, samplesTheirs, nil
}

// Apply carries out the chosen resolutions. keepTheirs replaces the
// target's table wholesale with the source copy's rows inside one
// transaction; keepMine leaves the target untouched. Explicit
// resolutions override whatever the diffs carry.
func (e *Engine) Apply(ctx context.Context, target, source *sql.DB, diffs []models.TableDiff, resolutions map[string]models.Resolution) error {
	for _, diff := range diffs {
		resolution := diff.Resolution
		if chosen, ok := resolutions[diff.Table]; ok {
			resolution = chosen
		}
		if resolution != models.KeepTheirs {
			continue
		}

		if err := e.replaceTable(ctx, target, source, diff.Table); err != nil {
			return &models.MergeError{
				Code:  models.ErrCodeMerge,
				Op:    "apply",
				Table: diff.Table,
				Err:   err,
			}
		}
	}

	return nil
}

// replaceTable copies every row, envelope included, so the replaced
// table is byte-for-byte the source's content. The insert triggers
// leave provided envelope values alone.
func (e *Engine) replaceTable(ctx context.Context, target, source *sql.DB, table string) error {
	rows, err := source.QueryContext(ctx, "SELECT * FROM "+table)
	if err != nil {
		return fmt.Errorf("read source table: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("source columns: %w", err)
	}

	tx, err := target.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
		return fmt.Errorf("clear target table: %w", err)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(cols, ", "), placeholders))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	values := make([]interface{}, len(cols))
	ptrs := make([]interface{}, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}

	copied := 0
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("scan source row: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, values...); err != nil {
			return fmt.Errorf("insert row: %w", err)
		}
		copied++
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate source rows: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace: %w", err)
	}

	e.logger.WithFields(map[string]interface{}{
		"table": table,
		"rows":  copied,
	}).Info("Replaced table from other copy")

	return nil
}

func (e *Engine) describeRow(spec models.TableSpec, row map[string]interface{}, q models.Queryer) string {
	var desc string
	if spec.Describe != nil {
		desc = spec.Describe(row, q)
	}
	if desc == "" {
		desc = genericDescription(spec.Table, row)
	}
	if row["deletedAt"] != nil {
		desc += " (deleted)"
	}
	return desc
}

func genericDescription(table string, row map[string]interface{}) string {
	syncID := ""
	switch v := row["syncId"].(type) {
	case string:
		syncID = v
	case []byte:
		syncID = string(v)
	}
	if len(syncID) > 8 {
		syncID = syncID[:8]
	}
	if syncID == "" {
		return table + " row"
	}
	return fmt.Sprintf("%s row %s", table, syncID)
}

// hashColumns fixes the order rows are hashed in: identity, user data
// in registry order, then tombstone state. Provenance columns stay
// out, so a difference in modifiedAt alone does not read as content
// divergence.
func hashColumns(spec models.TableSpec) []string {
	cols := make([]string, 0, len(spec.Columns)+2)
	cols = append(cols, "syncId")
	cols = append(cols, spec.Columns...)
	cols = append(cols, "deletedAt")
	return cols
}

// canonicalValue renders one column value into the stable form fed to
// the row hash. The NUL sentinel keeps NULL distinct from the empty
// string, and NFC normalization keeps text equal across platforms
// that decompose accents differently.
func canonicalValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "\x00"
	case []byte:
		return norm.NFC.String(string(val))
	case string:
		return norm.NFC.String(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case bool:
		if val {
			return "1"
		}
		return "0"
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func scanRows(ctx context.Context, conn *sql.DB, query string, cols []string, fn func(hash string, row map[string]interface{}) error) error {
	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("query rows: %w", err)
	}
	defer rows.Close()

	values := make([]interface{}, len(cols))
	ptrs := make([]interface{}, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("scan row: %w", err)
		}

		row := make(map[string]interface{}, len(cols))
		parts := make([]string, len(cols))
		for i, col := range cols {
			row[col] = values[i]
			parts[i] = canonicalValue(values[i])
		}

		sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
		if err := fn(hex.EncodeToString(sum[:]), row); err != nil {
			if err == errScanDone {
				return nil
			}
			return err
		}
	}

	return rows.Err()
}

func countRows(ctx context.Context, conn *sql.DB, table string) (int, error) {
	var count int
	err := conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count rows: %w", err)
	}
	return count, nil
}

func tableExists(ctx context.Context, conn *sql.DB, table string) (bool, error) {
	var count int
	err := conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?",
		table).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check table existence: %w", err)
	}
	return count > 0, nil
}
