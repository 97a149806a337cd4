package main

import (
	"context"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/pat-drk/schedsync/internal/client"
	"github.com/pat-drk/schedsync/internal/config"
	"github.com/pat-drk/schedsync/internal/events"
)

var (
	cfgFile    string
	jsonOutput bool
	verbose    bool

	cfg       *config.Config
	logger    *events.Logger
	appClient *client.Client

	// rootCtx carries the logger and the invocation's correlation id
	// into every command.
	rootCtx context.Context

	// Non-error outcomes that must still fail the invocation (a denied
	// acquire, a rescinded hold) set this instead of returning an error.
	exitCode int
)

var rootCmd = &cobra.Command{
	Use:   "schedsync",
	Short: "Coordinate edits to a sync-replicated scheduling database",
	Long: `schedsync keeps multiple machines from silently clobbering a shared
SQLite scheduling database that travels through a file-sync service.

It provides an advisory lock over the shared folder, tombstone-based
change tracking inside the database, and a merge tool for the divergent
copies that appear when coordination fails.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		switch cmd.Name() {
		case "init", "version", "help", "completion":
			// These run before a valid config exists.
			return nil
		}
		return setupApp(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"Config file (default: ./schedsync.json, then ~/.config/schedsync/schedsync.json)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false,
		"Output machine-readable JSON")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Enable debug logging")
}

// setupApp loads configuration and wires the client shared by all
// commands.
func setupApp(ctx context.Context) error {
	// Optional .env for SCHEDSYNC_* overrides.
	_ = godotenv.Load()

	loaded, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return err
	}
	cfg = loaded

	if verbose {
		cfg.Log.Level = "debug"
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	logger = events.NewLogger(&cfg.Log)
	events.SetDefault(logger)

	appClient, err = client.New(ctx, cfg, logger)
	if err != nil {
		return err
	}

	rootCtx = events.WithOperationID(
		events.WithLogger(context.Background(), logger), newOpID())
	return nil
}

// newOpID mints the short correlation id stamped on every log line of
// one invocation.
func newOpID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// Execute runs the CLI.
func Execute() {
	err := rootCmd.Execute()

	if appClient != nil {
		_ = appClient.Close()
	}
	if logger != nil {
		_ = logger.Close()
	}

	if err != nil {
		printError("Error: %v", err)
		os.Exit(1)
	}
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}
