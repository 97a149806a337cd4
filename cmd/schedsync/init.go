package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/pat-drk/schedsync/internal/config"
	"github.com/pat-drk/schedsync/internal/db"
	"github.com/pat-drk/schedsync/internal/events"
	"github.com/pat-drk/schedsync/internal/identity"
	"github.com/pat-drk/schedsync/internal/models"
	"github.com/pat-drk/schedsync/internal/schedule"
	"github.com/pat-drk/schedsync/internal/schema"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Provision sync tracking on a scheduling database",
	Long: `Init creates the scheduling tables if needed and equips each of them
with the sync envelope: syncId/modifiedAt/modifiedBy/deletedAt columns,
provenance triggers, an active_<table> view, and a partial unique index
over the natural key. Safe to run repeatedly; existing rows are
backfilled, never rewritten.`,
	Example: `  schedsync init --db /path/to/SchedulingShared/schedule.db
  schedsync init --db ./schedule.db --write-config ~/.config/schedsync/schedsync.json`,
	RunE: runInit,
}

var (
	initDB          string
	initWriteConfig string
)

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().StringVar(&initDB, "db", "",
		"Database file to provision (required)")
	initCmd.Flags().StringVar(&initWriteConfig, "write-config", "",
		"Also write an example config file at this path")

	_ = initCmd.MarkFlagRequired("db")
}

func runInit(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	// Init runs before a valid config exists; a failed load falls back
	// to defaults instead of aborting.
	loaded, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		loaded = config.DefaultConfig()
	}
	cfg = loaded

	logger = events.NewLogger(&cfg.Log)
	events.SetDefault(logger)

	if initWriteConfig != "" {
		if err := config.SaveExample(initWriteConfig); err != nil {
			return err
		}
		if !jsonOutput {
			printInfo("Wrote example config to %s", initWriteConfig)
		}
	}

	id, err := identity.Load(cfg.Identity.MachineIDFile, cfg.Identity.User)
	if err != nil {
		return err
	}

	database, err := db.Open(initDB, cfg.Database.BusyTimeout, logger)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := schedule.EnsureBaseTables(ctx, database.Raw()); err != nil {
		return err
	}

	manager := schema.NewManager(database, logger)
	if err := manager.EnsureSyncTracking(ctx, schedule.Registry(), id.User); err != nil {
		return err
	}

	// Seed the checkpoint only on first provisioning; re-running init
	// must not erase reconciliation history.
	checkpoint, err := database.GetMeta(ctx, db.MetaKeyLastCheckpoint)
	if errors.Is(err, models.ErrMetaKeyMissing) {
		checkpoint = time.Now().UTC().Format(time.RFC3339)
		err = database.SetMeta(ctx, db.MetaKeyLastCheckpoint, checkpoint)
	}
	if err != nil {
		return err
	}

	lineage, err := database.GetMeta(ctx, db.MetaKeySyncUUID)
	if err != nil {
		return err
	}

	tables := make([]string, 0, len(schedule.Registry()))
	for _, spec := range schedule.Registry() {
		tables = append(tables, spec.Table)
	}

	if jsonOutput {
		printJSON(map[string]interface{}{
			"database":        initDB,
			"sync_uuid":       lineage,
			"last_checkpoint": checkpoint,
			"tables":          tables,
		})
		return nil
	}

	printSuccess("Provisioned %s", initDB)
	printInfo("  lineage %s", lineage)
	for _, table := range tables {
		printInfo("  %s: sync columns, triggers, active view, natural-key index", table)
	}
	return nil
}
