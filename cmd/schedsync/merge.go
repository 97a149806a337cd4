package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/pat-drk/schedsync/internal/db"
	"github.com/pat-drk/schedsync/internal/models"
)

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Reconcile two copies of the schedule database",
}

var mergeAnalyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Compare two database copies without changing either",
	Long: `Analyze diffs every registered table between two copies and reports
which tables diverge, with a few sample rows from each side. Neither
file is modified. A divergent report is an outcome, not an error.`,
	Example: `  schedsync merge analyze --mine schedule.db --theirs "schedule (conflict).db"
  schedsync merge analyze --mine a.db --theirs b.db --json`,
	RunE: runMergeAnalyze,
}

var mergeApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Resolve divergent tables between two copies",
	Long: `Apply reconciles divergent tables into the --mine copy. Each table is
resolved wholesale: keepMine leaves it untouched, keepTheirs replaces
it with the other copy's rows. Unresolved tables default to keepMine.

Resolutions come from repeated --table flags or from an interactive
prompt. The reconciliation checkpoint on the --mine copy is advanced
when apply completes.`,
	Example: `  schedsync merge apply --mine schedule.db --theirs other.db --table assignments=keepTheirs
  schedsync merge apply --mine schedule.db --theirs other.db --interactive`,
	RunE: runMergeApply,
}

var (
	mergeMine        string
	mergeTheirs      string
	mergeTables      []string
	mergeInteractive bool
)

func init() {
	rootCmd.AddCommand(mergeCmd)
	mergeCmd.AddCommand(mergeAnalyzeCmd)
	mergeCmd.AddCommand(mergeApplyCmd)

	for _, c := range []*cobra.Command{mergeAnalyzeCmd, mergeApplyCmd} {
		c.Flags().StringVar(&mergeMine, "mine", "", "Path to this machine's database copy")
		c.Flags().StringVar(&mergeTheirs, "theirs", "", "Path to the other copy (e.g. a sync conflict file)")
		_ = c.MarkFlagRequired("mine")
		_ = c.MarkFlagRequired("theirs")
	}

	mergeApplyCmd.Flags().StringArrayVar(&mergeTables, "table", nil,
		"Resolution for one table, e.g. assignments=keepTheirs (repeatable)")
	mergeApplyCmd.Flags().BoolVarP(&mergeInteractive, "interactive", "i", false,
		"Prompt for a resolution per divergent table")
}

func runMergeAnalyze(cmd *cobra.Command, args []string) error {
	mineDB, theirsDB, err := openMergePair(mergeMine, mergeTheirs)
	if err != nil {
		return err
	}
	defer func() { _ = mineDB.Close() }()
	defer func() { _ = theirsDB.Close() }()

	report, err := appClient.Merge.Analyze(rootCtx, mineDB.Raw(), theirsDB.Raw(), appClient.Registry())
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(report)
		return nil
	}
	printReport(report)
	return nil
}

func runMergeApply(cmd *cobra.Command, args []string) error {
	resolutions, err := parseResolutions(mergeTables)
	if err != nil {
		return err
	}

	mineDB, theirsDB, err := openMergePair(mergeMine, mergeTheirs)
	if err != nil {
		return err
	}
	defer func() { _ = mineDB.Close() }()
	defer func() { _ = theirsDB.Close() }()

	report, err := appClient.Merge.Analyze(rootCtx, mineDB.Raw(), theirsDB.Raw(), appClient.Registry())
	if err != nil {
		return err
	}

	if mergeInteractive && report.Divergent() {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return fmt.Errorf("--interactive requires a terminal; use --table instead")
		}
		if err := promptResolutions(report, resolutions); err != nil {
			return err
		}
	}

	if err := appClient.Merge.Apply(rootCtx, mineDB.Raw(), theirsDB.Raw(), report.Diffs, resolutions); err != nil {
		return err
	}

	// A completed reconciliation advances the checkpoint even when the
	// copies already agreed.
	checkpoint := time.Now().UTC().Format(time.RFC3339)
	if err := mineDB.SetMeta(rootCtx, db.MetaKeyLastCheckpoint, checkpoint); err != nil {
		return err
	}

	replaced := 0
	for _, d := range report.Diffs {
		if resolutions[d.Table] == models.KeepTheirs {
			replaced++
		}
	}

	if jsonOutput {
		printJSON(map[string]interface{}{
			"diverged":   len(report.Diffs),
			"replaced":   replaced,
			"kept":       len(report.Diffs) - replaced,
			"checkpoint": checkpoint,
		})
		return nil
	}

	if !report.Divergent() {
		printSuccess("Copies already agree; checkpoint advanced")
		return nil
	}
	printSuccess("Merge complete: %d table(s) replaced from theirs, %d kept as mine",
		replaced, len(report.Diffs)-replaced)
	printInfo("Checkpoint advanced to %s", checkpoint)
	return nil
}

// openMergePair opens both database copies, closing the first if the
// second fails. Both files must already exist; opening would otherwise
// create an empty database from a mistyped path.
func openMergePair(minePath, theirsPath string) (*db.DB, *db.DB, error) {
	for _, path := range []string{minePath, theirsPath} {
		if _, err := os.Stat(path); err != nil {
			return nil, nil, fmt.Errorf("database copy %s: %w", path, err)
		}
	}

	mineDB, err := db.Open(minePath, cfg.Database.BusyTimeout, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open mine: %w", err)
	}
	theirsDB, err := db.Open(theirsPath, cfg.Database.BusyTimeout, logger)
	if err != nil {
		_ = mineDB.Close()
		return nil, nil, fmt.Errorf("open theirs: %w", err)
	}
	return mineDB, theirsDB, nil
}

func parseResolutions(specs []string) (map[string]models.Resolution, error) {
	out := make(map[string]models.Resolution, len(specs))
	for _, s := range specs {
		parts := strings.SplitN(s, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid --table value %q; want table=keepMine|keepTheirs", s)
		}
		switch r := models.Resolution(parts[1]); r {
		case models.KeepMine, models.KeepTheirs:
			out[parts[0]] = r
		default:
			return nil, fmt.Errorf("unknown resolution %q for table %q; want keepMine or keepTheirs",
				parts[1], parts[0])
		}
	}
	return out, nil
}

// promptResolutions asks for a resolution for each divergent table not
// already covered by a --table flag.
func promptResolutions(report *models.Report, resolutions map[string]models.Resolution) error {
	for _, d := range report.Diffs {
		if _, ok := resolutions[d.Table]; ok {
			continue
		}
		printDiff(d)

		choice := string(models.KeepMine)
		form := huh.NewForm(huh.NewGroup(
			huh.NewSelect[string]().
				Title(fmt.Sprintf("Resolve %s", d.Label)).
				Options(
					huh.NewOption("Keep mine (leave this copy as is)", string(models.KeepMine)),
					huh.NewOption("Keep theirs (replace with the other copy)", string(models.KeepTheirs)),
				).
				Value(&choice),
		))
		if err := form.Run(); err != nil {
			return err
		}
		resolutions[d.Table] = models.Resolution(choice)
	}
	return nil
}

func printReport(report *models.Report) {
	if report.Divergent() {
		printWarning("%d of %d table(s) diverge", len(report.Diffs), report.Scanned)
	} else {
		printSuccess("Copies agree: %d table(s) scanned, %d identical", report.Scanned, report.Identical)
	}
	for _, t := range report.Skipped {
		printInfo("  skipped %s: missing from one copy", t)
	}
	for _, d := range report.Diffs {
		printDiff(d)
	}
}

func printDiff(d models.TableDiff) {
	switch d.Class {
	case models.DiffCountOnly:
		printWarning("%s: row counts differ (mine %d, theirs %d)", d.Label, d.MineCount, d.TheirsCount)
	case models.DiffContentDivergent:
		printWarning("%s: %d row(s) only in mine, %d only in theirs", d.Label, d.OnlyMine, d.OnlyTheirs)
	}
	for _, s := range d.SamplesMine {
		printInfo("    mine:   %s", s)
	}
	for _, s := range d.SamplesTheirs {
		printInfo("    theirs: %s", s)
	}
}
