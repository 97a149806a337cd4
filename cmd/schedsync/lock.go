package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/pat-drk/schedsync/internal/events"
	"github.com/pat-drk/schedsync/internal/models"
	"github.com/pat-drk/schedsync/internal/services/lock"
	"github.com/pat-drk/schedsync/internal/storage"
)

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Coordinate the shared-folder editing lock",
}

var lockAcquireCmd = &cobra.Command{
	Use:   "acquire",
	Short: "Claim the editing lock",
	Long: `Acquire creates a lock file in the shared folder and waits out the
sync propagation window before confirming the claim. A denial names the
current holder and exits with status 2; contention is an outcome, not
an error.

The claim persists in the folder after this process exits, but its
heartbeat only advances while a schedsync process runs. Finish within
the staleness threshold or use 'schedsync lock hold' for longer
sessions.`,
	Example: `  schedsync lock acquire
  schedsync lock acquire --json`,
	RunE: runLockAcquire,
}

var lockReleaseCmd = &cobra.Command{
	Use:   "release",
	Short: "Give up the editing lock",
	Long: `Release deletes this machine's lock file from the shared folder.
Releasing when no lock is held succeeds quietly.`,
	RunE: runLockRelease,
}

var lockStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current lock claims",
	Long:  `Status lists every claim in the shared folder without touching any of them.`,
	RunE:  runLockStatus,
}

var lockForceUnlockCmd = &cobra.Command{
	Use:   "force-unlock",
	Short: "Delete every lock file, including other machines'",
	Long: `Force-unlock removes all lock files regardless of who owns them. Any
machine that believed it held the lock loses it. Escape hatch for locks
orphaned by crashed machines; prefer waiting for staleness expiry.`,
	RunE: runLockForceUnlock,
}

var lockHoldCmd = &cobra.Command{
	Use:   "hold",
	Short: "Acquire and hold the lock until interrupted",
	Long: `Hold acquires the lock and keeps the session alive: heartbeats refresh
the claim, ownership is re-verified periodically, and Ctrl-C (or
SIGTERM) releases the lock before exiting. Run this for the duration of
an editing session.

Exits with status 2 when the lock is already held, and 3 when ownership
is rescinded mid-session because a competing claim won.`,
	Example: `  schedsync lock hold
  schedsync lock hold --verify-interval 30s`,
	RunE: runLockHold,
}

var lockWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream lock file changes from the shared folder",
	Long: `Watch reports lock files appearing, changing, and disappearing as the
sync client delivers other machines' writes. Local folder backend only;
remote backends have no change feed.`,
	RunE: runLockWatch,
}

var (
	forceUnlockYes     bool
	holdVerifyInterval time.Duration
)

func init() {
	rootCmd.AddCommand(lockCmd)
	lockCmd.AddCommand(lockAcquireCmd)
	lockCmd.AddCommand(lockReleaseCmd)
	lockCmd.AddCommand(lockStatusCmd)
	lockCmd.AddCommand(lockForceUnlockCmd)
	lockCmd.AddCommand(lockHoldCmd)
	lockCmd.AddCommand(lockWatchCmd)

	lockForceUnlockCmd.Flags().BoolVarP(&forceUnlockYes, "yes", "y", false,
		"Skip the confirmation prompt")
	lockHoldCmd.Flags().DurationVar(&holdVerifyInterval, "verify-interval", 15*time.Second,
		"How often to re-verify ownership while holding")
}

func runLockAcquire(cmd *cobra.Command, args []string) error {
	res, err := appClient.Lock.Acquire(rootCtx)
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(map[string]interface{}{
			"granted": res.Granted,
			"lock":    res.Name,
			"held_by": res.HeldBy,
			"user":    appClient.Identity().User,
		})
	} else if res.Granted {
		printSuccess("Lock acquired: %s", res.Name)
	} else if res.HeldBy != "" {
		printWarning("Lock is held by %s", res.HeldBy)
	} else {
		printWarning("Claim could not be confirmed; try again")
	}

	if !res.Granted {
		exitCode = 2
	}
	return nil
}

func runLockRelease(cmd *cobra.Command, args []string) error {
	if err := appClient.Lock.Release(rootCtx); err != nil {
		return err
	}

	if jsonOutput {
		printJSON(map[string]interface{}{"released": true})
	} else {
		printSuccess("Lock released")
	}
	return nil
}

func runLockStatus(cmd *cobra.Command, args []string) error {
	status, err := appClient.Lock.Status(rootCtx)
	if err != nil {
		return err
	}
	holder, held := appClient.Lock.IsHeldByOther(rootCtx)

	me := appClient.Identity()
	var own *models.LockFile
	for _, lf := range status.Valid {
		if lf.MachineID == me.MachineID {
			own = lf
			break
		}
	}

	if jsonOutput {
		out := map[string]interface{}{
			"held":  held || own != nil,
			"valid": lockSummaries(status.Valid),
			"stale": lockSummaries(status.Stale),
		}
		if held {
			out["held_by"] = holder
		}
		if own != nil {
			out["own_lock"] = own.Name
		}
		printJSON(out)
		return nil
	}

	switch {
	case held:
		printWarning("Lock held by %s", holder)
	case own != nil:
		printSuccess("Lock held by this machine (%s)", own.Owner())
	default:
		printSuccess("Lock is free")
	}

	for _, lf := range status.Valid {
		marker := ""
		if lf.MachineID == me.MachineID {
			marker = " (this machine)"
		}
		printInfo("  valid: %s by %s, created %s%s",
			lf.Name, lf.Owner(), lf.CreatedAt.Format(time.RFC3339), marker)
	}
	for _, lf := range status.Stale {
		printInfo("  stale: %s by %s, last heartbeat %s",
			lf.Name, lf.Owner(), lf.EffectiveHeartbeat().Format(time.RFC3339))
	}
	return nil
}

func lockSummaries(locks []*models.LockFile) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(locks))
	for _, lf := range locks {
		entry := map[string]interface{}{
			"file":    lf.Name,
			"machine": lf.MachineID,
			"owner":   lf.Owner(),
			"created": lf.CreatedAt.Format(time.RFC3339),
		}
		if lf.Record != nil {
			entry["last_heartbeat"] = lf.Record.LastHeartbeat.Format(time.RFC3339)
		}
		out = append(out, entry)
	}
	return out
}

func runLockForceUnlock(cmd *cobra.Command, args []string) error {
	if !forceUnlockYes {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return fmt.Errorf("force-unlock requires --yes when not run from a terminal")
		}

		var confirmed bool
		form := huh.NewForm(huh.NewGroup(
			huh.NewConfirm().
				Title("Delete every lock file in the shared folder?").
				Description("Machines holding the lock will lose it mid-session.").
				Value(&confirmed),
		))
		if err := form.Run(); err != nil {
			return err
		}
		if !confirmed {
			printInfo("Aborted")
			return nil
		}
	}

	if err := appClient.Lock.ForceUnlock(rootCtx); err != nil {
		return err
	}

	if jsonOutput {
		printJSON(map[string]interface{}{"forced": true})
	} else {
		printSuccess("All lock files removed")
	}
	return nil
}

func runLockHold(cmd *cobra.Command, args []string) error {
	res, err := appClient.Lock.Acquire(rootCtx)
	if err != nil {
		return err
	}
	if !res.Granted {
		if res.HeldBy != "" {
			printWarning("Lock is held by %s", res.HeldBy)
		} else {
			printWarning("Claim could not be confirmed; try again")
		}
		exitCode = 2
		return nil
	}

	ctx := events.WithLockSession(rootCtx, res.Name)
	log := events.FromContext(ctx)

	if !jsonOutput {
		printSuccess("Lock acquired: %s", res.Name)
		printInfo("Holding; press Ctrl-C to release")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	// With a local folder, foreign lock changes delivered by the sync
	// client trigger an early verify instead of waiting out the ticker.
	// A nil channel never fires.
	var watchEvents <-chan storage.WatchEvent
	if cfg.Folder.Backend == "local" {
		watcher, werr := storage.NewLockWatcher()
		if werr == nil {
			werr = watcher.Start(cfg.Folder.Path)
		}
		if werr != nil {
			log.WithError(werr).Warn("Folder watcher unavailable; relying on periodic verify")
		} else {
			defer func() { _ = watcher.Stop() }()
			watchEvents = watcher.Events()
		}
	}

	checkOwnership := func() bool {
		if appClient.Lock.Verify(ctx) {
			log.Debug("Ownership verified")
			return true
		}
		holder, held := appClient.Lock.IsHeldByOther(ctx)
		if jsonOutput {
			printJSON(map[string]interface{}{
				"rescinded": true,
				"held_by":   holder,
			})
		} else if held {
			printError("Lock ownership rescinded; %s now holds the lock", holder)
			printWarning("Stop editing: changes made now will conflict")
		} else {
			printError("Lock ownership rescinded")
		}
		exitCode = 3
		return false
	}

	ticker := time.NewTicker(holdVerifyInterval)
	defer ticker.Stop()

	for {
		select {
		case sig := <-sigChan:
			log.WithField("signal", sig.String()).Info("Releasing lock")
			if err := appClient.Lock.Release(ctx); err != nil {
				return err
			}
			if jsonOutput {
				printJSON(map[string]interface{}{"released": true})
			} else {
				printSuccess("Lock released")
			}
			return nil

		case ev := <-appClient.Lock.Events():
			reportLockEvent(log, ev)

		case ev := <-watchEvents:
			if ev.Name == res.Name {
				continue
			}
			log.WithField("file", ev.Name).Debug("Foreign lock change; verifying early")
			if !checkOwnership() {
				return nil
			}

		case <-ticker.C:
			if !checkOwnership() {
				return nil
			}
		}
	}
}

// reportLockEvent surfaces mid-session lifecycle events to the user.
func reportLockEvent(log *events.Logger, ev lock.Event) {
	if jsonOutput {
		printJSON(map[string]interface{}{
			"event":  string(ev.Type),
			"lock":   ev.Name,
			"holder": ev.Holder,
			"time":   ev.Timestamp.Format(time.RFC3339),
		})
		return
	}

	switch ev.Type {
	case lock.EventHeartbeat:
		log.WithField("file", ev.Name).Debug("Heartbeat written")
	case lock.EventConflict:
		printWarning("Concurrent claim detected from %s; ownership will be re-checked", ev.Holder)
	case lock.EventStaleReclaimed:
		printInfo("Cleaned up stale lock %s", ev.Name)
	}
}

func runLockWatch(cmd *cobra.Command, args []string) error {
	if cfg.Folder.Backend != "local" {
		return fmt.Errorf("lock watch requires the local folder backend (configured: %s)", cfg.Folder.Backend)
	}

	watcher, err := storage.NewLockWatcher()
	if err != nil {
		return err
	}
	defer watcher.Stop()

	if err := watcher.Start(cfg.Folder.Path); err != nil {
		return err
	}

	if !jsonOutput {
		printInfo("Watching %s; press Ctrl-C to stop", cfg.Folder.Path)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	for {
		select {
		case <-sigChan:
			return nil

		case ev, ok := <-watcher.Events():
			if !ok {
				return nil
			}
			if jsonOutput {
				printJSON(map[string]interface{}{
					"op":   ev.Op.String(),
					"file": ev.Name,
				})
				continue
			}
			if name, err := models.ParseLockName(ev.Name); err == nil {
				printInfo("%s %s (machine %s, created %s)",
					ev.Op, ev.Name, name.MachineID, name.CreatedAt.Format(time.RFC3339))
			} else {
				printInfo("%s %s", ev.Op, ev.Name)
			}

		case err, ok := <-watcher.Errors():
			if !ok {
				return nil
			}
			printWarning("Watch error: %v", err)
		}
	}
}
