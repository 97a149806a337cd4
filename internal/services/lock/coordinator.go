// Package lock coordinates advisory mutual exclusion over a shared
// folder. Claimants can only observe each other through lock files
// replicated by an external sync layer with unpredictable propagation
// delay, so exclusion is probabilistic: two claimants may briefly both
// believe they own the lock inside the propagation window. The
// coordinator is built so that window is caught by the acquisition
// recheck, the extended conflict checks, or Verify before any durable
// write, never prevented outright.
package lock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pat-drk/schedsync/internal/clock"
	"github.com/pat-drk/schedsync/internal/config"
	"github.com/pat-drk/schedsync/internal/events"
	"github.com/pat-drk/schedsync/internal/identity"
	"github.com/pat-drk/schedsync/internal/models"
	"github.com/pat-drk/schedsync/internal/storage"
)

// State is the coordinator's position in the ownership lifecycle.
type State string

const (
	StateUnowned    State = "unowned"
	StateAcquiring  State = "acquiring"
	StateOwned      State = "owned"
	StateReleasing  State = "releasing"
	StateRescinding State = "rescinding"
)

// Event describes one lock lifecycle occurrence.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Name      string // lock file involved, when known
	Holder    string // competing claimant, when known
}

// EventType defines lock event types.
type EventType string

const (
	EventAcquiring      EventType = "acquiring"
	EventGranted        EventType = "granted"
	EventDenied         EventType = "denied"
	EventHeartbeat      EventType = "heartbeat"
	EventConflict       EventType = "conflict_detected"
	EventRescinded      EventType = "rescinded"
	EventReleased       EventType = "released"
	EventStaleReclaimed EventType = "stale_reclaimed"
)

// AcquireResult reports the outcome of an acquisition attempt. Denied
// is an outcome, not an error; callers branch on Granted.
type AcquireResult struct {
	Granted bool
	// Name is the claimant's own lock file when granted.
	Name string
	// HeldBy names the competing claimant when denied. Empty when the
	// winner could not be determined, such as when the sync layer
	// renamed our file away and no other claim was visible yet.
	HeldBy string
}

// Coordinator implements the lock protocol for one claimant.
type Coordinator struct {
	folder storage.Folder
	clock  clock.Clock
	id     *identity.Identity
	logger *events.Logger

	// Configuration
	heartbeatInterval time.Duration
	staleThreshold    time.Duration
	propagationWait   time.Duration
	extendedChecks    int
	extendedInterval  time.Duration

	events chan Event

	mu       sync.Mutex
	state    State
	own      *models.LockName   // parsed identity of our lock file
	record   *models.LockRecord // contents we last wrote
	lastSeen *models.LockName   // conflict baseline from the pre-create snapshot

	// Set by a late conflict check; the next Verify performs the
	// actual downgrade so ownership transitions stay enumerable.
	rescindPending bool
	rescindHolder  string

	timersCancel context.CancelFunc
	timersWG     sync.WaitGroup
}

// NewCoordinator creates a lock coordinator for the given claimant.
func NewCoordinator(
	folder storage.Folder,
	clk clock.Clock,
	id *identity.Identity,
	cfg *config.LockConfig,
	logger *events.Logger,
) *Coordinator {
	return &Coordinator{
		folder:            folder,
		clock:             clk,
		id:                id,
		logger:            logger.WithField("component", "lock_coordinator"),
		heartbeatInterval: cfg.HeartbeatInterval,
		staleThreshold:    cfg.StaleThreshold,
		propagationWait:   cfg.PropagationWait,
		extendedChecks:    cfg.ExtendedChecks,
		extendedInterval:  cfg.ExtendedCheckInterval,
		events:            make(chan Event, 100),
		state:             StateUnowned,
	}
}

// Events returns the lifecycle event channel. Events are dropped when
// the buffer is full; consumers that care should drain promptly.
func (c *Coordinator) Events() <-chan Event {
	return c.events
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Acquire attempts to take the lock. A denied result leaves no
// residual lock file behind.
func (c *Coordinator) Acquire(ctx context.Context) (*AcquireResult, error) {
	c.mu.Lock()
	switch c.state {
	case StateAcquiring, StateReleasing, StateRescinding:
		c.mu.Unlock()
		return nil, &models.LockError{
			Code: models.ErrCodeLock,
			Op:   "acquire",
			Err:  fmt.Errorf("operation already in progress (state %s)", c.state),
		}
	}
	c.mu.Unlock()

	snap, err := c.snapshot(ctx)
	if err != nil {
		return nil, &models.LockError{Code: models.ErrCodeStorage, Op: "acquire", Err: err}
	}

	// A valid lock of our own means a previous session (or a reloaded
	// page) is still live. Adopt it instead of racing ourselves.
	if ownLock := snap.ownValid(c.id.MachineID); ownLock != nil {
		c.adopt(ownLock)
		c.logger.WithField("file", ownLock.Name).Info("Re-adopted existing lock")
		c.emit(Event{Type: EventGranted, Name: ownLock.Name})
		return &AcquireResult{Granted: true, Name: ownLock.Name}, nil
	}

	// The earliest live claim is authoritative, regardless of whose
	// heartbeat is freshest.
	if holder := snap.earliestForeignValid(c.id.MachineID); holder != nil {
		c.logger.WithFields(map[string]interface{}{
			"holder": holder.Owner(),
			"file":   holder.Name,
		}).Info("Lock held by another claimant")
		c.emit(Event{Type: EventDenied, Name: holder.Name, Holder: holder.Owner()})
		return &AcquireResult{Granted: false, HeldBy: holder.Owner()}, nil
	}

	// Record the newest claim we can see, live or stale. Anything that
	// later turns up created after this point but before our own file
	// is a concurrent claimant whose file had not reached us yet.
	baseline := snap.newest

	now := c.clock.Now()
	name := models.FormatLockName(now, c.id.MachineID)
	own, err := models.ParseLockName(name)
	if err != nil {
		return nil, &models.LockError{Code: models.ErrCodeLock, Op: "acquire", Err: err}
	}

	record := models.NewLockRecord(c.id.User, baselineName(baseline), now)
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return nil, &models.LockError{Code: models.ErrCodeLock, Op: "acquire", Err: err}
	}
	if err := c.folder.Write(ctx, name, data); err != nil {
		return nil, &models.LockError{Code: models.ErrCodeStorage, Op: "acquire", Err: err}
	}

	c.mu.Lock()
	c.state = StateAcquiring
	c.own = own
	c.record = record
	c.lastSeen = baseline
	c.mu.Unlock()

	c.logger.WithField("file", name).Info("Created lock file, waiting for propagation")
	c.emit(Event{Type: EventAcquiring, Name: name})

	// Give the sync layer a chance to surface claims created just
	// before ours.
	timer := c.clock.NewTimer(c.propagationWait)
	select {
	case <-ctx.Done():
		timer.Stop()
		c.abandonOwn(context.Background(), "")
		return nil, ctx.Err()
	case <-timer.C():
	}

	recheck, err := c.snapshot(ctx)
	if err != nil {
		// Without the recheck we cannot distinguish a clean claim from
		// a concurrent one, so the claim is withdrawn.
		c.abandonOwn(ctx, "")
		return nil, &models.LockError{Code: models.ErrCodeStorage, Op: "acquire", Err: err}
	}

	if recheck.find(name) == nil {
		// The sync layer renamed our file away while resolving a
		// simultaneous write. Whoever kept their name wins.
		winner := ""
		if holder := recheck.earliestForeignValid(c.id.MachineID); holder != nil {
			winner = holder.Owner()
		}
		c.logger.WithField("file", name).Warn("Own lock file disappeared during propagation wait")
		c.abandonOwn(ctx, winner)
		return &AcquireResult{Granted: false, HeldBy: winner}, nil
	}

	if conflict := findConflict(own, baseline, recheck.valid, c.id.MachineID); conflict != nil {
		c.logger.WithFields(map[string]interface{}{
			"file":   conflict.Name,
			"holder": conflict.Owner(),
		}).Warn("Concurrent claim detected, yielding")
		c.emit(Event{Type: EventConflict, Name: conflict.Name, Holder: conflict.Owner()})
		c.abandonOwn(ctx, conflict.Owner())
		return &AcquireResult{Granted: false, HeldBy: conflict.Owner()}, nil
	}

	// Housekeeping: abandoned claims from other machines are removed
	// so they stop muddying future snapshots. Best effort.
	for _, stale := range recheck.stale {
		if stale.MachineID == c.id.MachineID {
			continue
		}
		if err := c.folder.Delete(ctx, stale.Name); err != nil {
			c.logger.WithError(err).WithField("file", stale.Name).Warn("Stale lock cleanup failed")
			continue
		}
		c.logger.WithField("file", stale.Name).Info("Removed stale lock")
		c.emit(Event{Type: EventStaleReclaimed, Name: stale.Name, Holder: stale.Owner()})
	}

	c.mu.Lock()
	c.state = StateOwned
	c.startTimersLocked()
	c.mu.Unlock()

	c.logger.WithField("file", name).Info("Lock granted")
	c.emit(Event{Type: EventGranted, Name: name})
	return &AcquireResult{Granted: true, Name: name}, nil
}

// Verify re-checks continued ownership. A false return has already
// performed the downgrade: timers stopped, own file deleted best
// effort, state Unowned. Callers stop writing immediately on false.
// Poll periodically and immediately before any durable write.
func (c *Coordinator) Verify(ctx context.Context) bool {
	c.mu.Lock()
	if c.state != StateOwned {
		c.mu.Unlock()
		return false
	}
	own := c.own
	pending := c.rescindPending
	holder := c.rescindHolder
	c.mu.Unlock()

	if pending {
		c.downgrade(ctx, holder)
		return false
	}

	snap, err := c.snapshot(ctx)
	if err != nil {
		// A transient listing failure does not revoke ownership; the
		// next poll retries.
		c.logger.WithError(err).Warn("Ownership check could not list folder")
		return true
	}

	if snap.find(own.Name) == nil {
		c.logger.WithField("file", own.Name).Warn("Own lock file missing")
		c.downgrade(ctx, "")
		return false
	}

	// Any live foreign claim created before ours outranks us. This
	// covers both a late-propagating concurrent claim and a claim that
	// resurfaced after being counted stale.
	for _, lf := range snap.valid {
		if lf.MachineID == c.id.MachineID {
			continue
		}
		if lf.LockName.Before(own) {
			c.logger.WithFields(map[string]interface{}{
				"file":   lf.Name,
				"holder": lf.Owner(),
			}).Warn("Earlier claim outranks ours")
			c.downgrade(ctx, lf.Owner())
			return false
		}
	}

	return true
}

// Release gives up the lock. Idempotent; the file being already gone
// is success. With no in-memory claim, lock files carrying our machine
// ID are still removed, so a fresh process can clean up after an
// earlier session of this machine.
func (c *Coordinator) Release(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateUnowned {
		c.mu.Unlock()
		return c.releaseAbandoned(ctx)
	}
	c.state = StateReleasing
	var name string
	if c.own != nil {
		name = c.own.Name
	}
	c.mu.Unlock()

	// Timers stop before the file goes away so a heartbeat cannot
	// recreate a just-deleted lock.
	c.stopTimers()

	var deleteErr error
	if name != "" {
		deleteErr = c.folder.Delete(ctx, name)
	}

	c.mu.Lock()
	c.resetLocked()
	c.mu.Unlock()

	if deleteErr != nil {
		// Heartbeats have stopped, so the leftover file expires
		// through staleness even though this delete failed.
		return &models.LockError{Code: models.ErrCodeStorage, Op: "release", Err: deleteErr}
	}

	c.logger.Info("Lock released")
	c.emit(Event{Type: EventReleased, Name: name})
	return nil
}

// releaseAbandoned deletes lock files left behind by an earlier session
// of this machine. Nothing of ours in the folder is success.
func (c *Coordinator) releaseAbandoned(ctx context.Context) error {
	snap, err := c.snapshot(ctx)
	if err != nil {
		return &models.LockError{Code: models.ErrCodeStorage, Op: "release", Err: err}
	}

	for _, lf := range snap.locks {
		if lf.MachineID != c.id.MachineID {
			continue
		}
		if err := c.folder.Delete(ctx, lf.Name); err != nil {
			return &models.LockError{Code: models.ErrCodeStorage, Op: "release", Err: err}
		}
		c.logger.WithField("file", lf.Name).Info("Removed lock file from earlier session")
		c.emit(Event{Type: EventReleased, Name: lf.Name})
	}

	return nil
}

// ForceUnlock deletes every lock file in the folder regardless of
// ownership, revoking other machines' in-progress sessions. Any
// individual delete failure is fatal so partial success is visible.
func (c *Coordinator) ForceUnlock(ctx context.Context) error {
	// Our own timers stop first so a heartbeat cannot recreate the
	// file we are about to delete.
	c.stopTimers()
	c.mu.Lock()
	c.resetLocked()
	c.mu.Unlock()

	entries, err := c.folder.List(ctx)
	if err != nil {
		return &models.LockError{Code: models.ErrCodeStorage, Op: "force_unlock", Err: err}
	}

	// Loose prefix/suffix match so sync-conflict renames like
	// "lock-... (1).json" are cleared too.
	var targets []string
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name, models.LockPrefix) && strings.HasSuffix(entry.Name, models.LockSuffix) {
			targets = append(targets, entry.Name)
		}
	}

	for i, name := range targets {
		if err := c.folder.Delete(ctx, name); err != nil {
			return &models.LockError{
				Code: models.ErrCodeLock,
				Op:   "force_unlock",
				Err:  fmt.Errorf("delete %s after removing %d of %d lock files: %w", name, i, len(targets), err),
			}
		}
		c.logger.WithField("file", name).Info("Removed lock file")
	}

	c.logger.WithField("removed", len(targets)).Info("Force unlock complete")
	return nil
}

// IsHeldByOther reports the owner of the earliest live foreign claim.
// Read-only; never mutates coordinator state.
func (c *Coordinator) IsHeldByOther(ctx context.Context) (string, bool) {
	snap, err := c.snapshot(ctx)
	if err != nil {
		c.logger.WithError(err).Warn("Holder probe could not list folder")
		return "", false
	}

	holder := snap.earliestForeignValid(c.id.MachineID)
	if holder == nil {
		return "", false
	}
	return holder.Owner(), true
}

// Status describes the folder's current claims alongside our state.
type Status struct {
	State   State
	OwnName string
	Valid   []*models.LockFile
	Stale   []*models.LockFile
}

// Status takes a read-only snapshot of the lock folder.
func (c *Coordinator) Status(ctx context.Context) (*Status, error) {
	snap, err := c.snapshot(ctx)
	if err != nil {
		return nil, &models.LockError{Code: models.ErrCodeStorage, Op: "status", Err: err}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	st := &Status{
		State: c.state,
		Valid: snap.valid,
		Stale: snap.stale,
	}
	if c.own != nil {
		st.OwnName = c.own.Name
	}
	return st, nil
}

// adopt takes over an existing valid lock of our own, restoring the
// conflict baseline persisted in its contents.
func (c *Coordinator) adopt(lf *models.LockFile) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.own = &lf.LockName
	if lf.Record != nil {
		c.record = lf.Record
		c.lastSeen = nil
		if lf.Record.LastSeenLock != nil {
			if seen, err := models.ParseLockName(*lf.Record.LastSeenLock); err == nil {
				c.lastSeen = seen
			}
		}
	} else {
		// Contents unreadable; a nil baseline makes conflict checks
		// maximally suspicious, which is the safe direction.
		c.record = models.NewLockRecord(c.id.User, nil, c.clock.Now())
		c.lastSeen = nil
	}
	c.state = StateOwned
	c.startTimersLocked()
}

// abandonOwn withdraws our claim during or after acquisition: best
// effort delete of our own file, then back to Unowned. No timers are
// running on acquisition paths.
func (c *Coordinator) abandonOwn(ctx context.Context, winner string) {
	c.mu.Lock()
	var name string
	if c.own != nil {
		name = c.own.Name
	}
	c.state = StateRescinding
	c.mu.Unlock()

	if name != "" {
		if err := c.folder.Delete(ctx, name); err != nil {
			c.logger.WithError(err).WithField("file", name).Warn("Could not remove own lock file")
		}
	}

	c.mu.Lock()
	c.resetLocked()
	c.mu.Unlock()

	c.emit(Event{Type: EventRescinded, Name: name, Holder: winner})
}

// downgrade performs the forced transition out of ownership after a
// conflict or a vanished lock file.
func (c *Coordinator) downgrade(ctx context.Context, holder string) {
	c.stopTimers()
	c.abandonOwn(ctx, holder)
	c.logger.WithField("holder", holder).Warn("Lock ownership rescinded")
}

func (c *Coordinator) resetLocked() {
	c.state = StateUnowned
	c.own = nil
	c.record = nil
	c.lastSeen = nil
	c.rescindPending = false
	c.rescindHolder = ""
}

// startTimersLocked launches the heartbeat and extended-check loops.
// Caller holds c.mu.
func (c *Coordinator) startTimersLocked() {
	if c.timersCancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.timersCancel = cancel

	c.timersWG.Add(1)
	go c.heartbeatLoop(ctx)

	if c.extendedChecks > 0 {
		c.timersWG.Add(1)
		go c.extendedCheckLoop(ctx)
	}
}

// stopTimers cancels the periodic loops and waits for them to exit, so
// no heartbeat or check runs after the caller proceeds.
func (c *Coordinator) stopTimers() {
	c.mu.Lock()
	cancel := c.timersCancel
	c.timersCancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.timersWG.Wait()
}

// heartbeatLoop refreshes the lock file contents every interval so
// other claimants can tell a live session from an abandoned one.
func (c *Coordinator) heartbeatLoop(ctx context.Context) {
	defer c.timersWG.Done()

	ticker := c.clock.NewTicker(c.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			c.beat(ctx)
		}
	}
}

// beat writes a refreshed heartbeat. A failed write is logged and
// retried on the next beat, never fatal.
func (c *Coordinator) beat(ctx context.Context) {
	c.mu.Lock()
	if c.state != StateOwned || c.own == nil || c.record == nil {
		c.mu.Unlock()
		return
	}
	c.record.LastHeartbeat = c.clock.Now().UTC()
	name := c.own.Name
	data, err := json.MarshalIndent(c.record, "", "  ")
	c.mu.Unlock()

	if err != nil {
		c.logger.WithError(err).Warn("Heartbeat encode failed")
		return
	}

	if err := c.folder.Write(ctx, name, data); err != nil {
		c.logger.WithError(err).Warn("Heartbeat write failed")
		return
	}

	c.logger.WithField("file", name).Debug("Heartbeat written")
	c.emit(Event{Type: EventHeartbeat, Name: name})
}

// extendedCheckLoop re-runs conflict detection a few times after
// acquisition, because propagation delay can exceed the initial wait.
// A late conflict only sets a flag; the next Verify performs the
// downgrade so ownership never flips from a background goroutine.
func (c *Coordinator) extendedCheckLoop(ctx context.Context) {
	defer c.timersWG.Done()

	for i := 1; i <= c.extendedChecks; i++ {
		timer := c.clock.NewTimer(c.extendedInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C():
		}

		if c.lateConflictCheck(ctx, i) {
			return
		}
	}
}

// lateConflictCheck returns true when checking should stop, either
// because a conflict was flagged or ownership is already gone.
func (c *Coordinator) lateConflictCheck(ctx context.Context, attempt int) bool {
	c.mu.Lock()
	own := c.own
	baseline := c.lastSeen
	c.mu.Unlock()

	if own == nil {
		return true
	}

	snap, err := c.snapshot(ctx)
	if err != nil {
		c.logger.WithError(err).Warn("Extended conflict check could not list folder")
		return false
	}

	if snap.find(own.Name) == nil {
		c.flagRescind("", own.Name)
		c.logger.WithField("file", own.Name).Warn("Own lock file disappeared after acquisition")
		return true
	}

	if conflict := findConflict(own, baseline, snap.valid, c.id.MachineID); conflict != nil {
		c.flagRescind(conflict.Owner(), conflict.Name)
		c.logger.WithFields(map[string]interface{}{
			"file":   conflict.Name,
			"holder": conflict.Owner(),
			"check":  attempt,
		}).Warn("Late lock conflict detected")
		return true
	}

	c.logger.WithField("check", attempt).Debug("Extended conflict check clean")
	return false
}

func (c *Coordinator) flagRescind(holder, name string) {
	c.mu.Lock()
	c.rescindPending = true
	c.rescindHolder = holder
	c.mu.Unlock()

	c.emit(Event{Type: EventConflict, Name: name, Holder: holder})
}

func (c *Coordinator) emit(event Event) {
	event.Timestamp = c.clock.Now()
	select {
	case c.events <- event:
	default:
		c.logger.Debug("Event channel full, dropping event")
	}
}

// folderSnapshot is one observation of the lock folder: every
// parseable lock file, partitioned by liveness at observation time.
type folderSnapshot struct {
	locks  []*models.LockFile
	valid  []*models.LockFile
	stale  []*models.LockFile
	newest *models.LockName // most recent parseable claim, nil when none
}

// snapshot lists the folder and reads each lock file's contents. A
// name visible before its bytes have propagated yields a nil Record,
// which liveness classification treats as fresh as its filename.
func (c *Coordinator) snapshot(ctx context.Context) (*folderSnapshot, error) {
	entries, err := c.folder.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list lock folder: %w", err)
	}

	now := c.clock.Now()
	snap := &folderSnapshot{}

	for _, entry := range entries {
		if !models.IsLockName(entry.Name) {
			continue
		}
		name, err := models.ParseLockName(entry.Name)
		if err != nil {
			continue
		}

		lf := &models.LockFile{LockName: *name}
		data, err := c.folder.Read(ctx, entry.Name)
		switch {
		case err == nil:
			var record models.LockRecord
			if jerr := json.Unmarshal(data, &record); jerr == nil {
				lf.Record = &record
			} else {
				c.logger.WithField("file", entry.Name).Debug("Unreadable lock contents")
			}
		case errors.Is(err, storage.ErrNotFound):
			// Name propagated ahead of its bytes. Routine.
		default:
			c.logger.WithError(err).WithField("file", entry.Name).Warn("Lock file read failed")
		}

		snap.locks = append(snap.locks, lf)
		if snap.newest == nil || snap.newest.Before(name) {
			snap.newest = name
		}
		if lf.Stale(now, c.staleThreshold) {
			snap.stale = append(snap.stale, lf)
		} else {
			snap.valid = append(snap.valid, lf)
		}
	}

	return snap, nil
}

// find returns the lock file with the exact name, or nil.
func (s *folderSnapshot) find(name string) *models.LockFile {
	for _, lf := range s.locks {
		if lf.Name == name {
			return lf
		}
	}
	return nil
}

// ownValid returns the earliest live claim carrying our machine ID.
func (s *folderSnapshot) ownValid(machineID string) *models.LockFile {
	var earliest *models.LockFile
	for _, lf := range s.valid {
		if lf.MachineID != machineID {
			continue
		}
		if earliest == nil || lf.LockName.Before(&earliest.LockName) {
			earliest = lf
		}
	}
	return earliest
}

// earliestForeignValid returns the authoritative live claim from
// another machine: earliest created, ties broken by filename.
func (s *folderSnapshot) earliestForeignValid(machineID string) *models.LockFile {
	var earliest *models.LockFile
	for _, lf := range s.valid {
		if lf.MachineID == machineID {
			continue
		}
		if earliest == nil || lf.LockName.Before(&earliest.LockName) {
			earliest = lf
		}
	}
	return earliest
}

// findConflict applies the conflict predicate: a live foreign claim
// created strictly after the baseline we recorded before creating our
// own file, and strictly before our own file, belongs to a claimant
// who started concurrently with us and whose file had not propagated
// when we took our snapshot. We cannot prove we were first, so such a
// claim wins. A nil baseline (empty folder) counts as before
// everything. Returns the earliest conflicting claim.
func findConflict(own, baseline *models.LockName, valid []*models.LockFile, machineID string) *models.LockFile {
	var winner *models.LockFile
	for _, lf := range valid {
		if lf.MachineID == machineID {
			continue
		}
		if baseline != nil && !baseline.Before(&lf.LockName) {
			continue
		}
		if !lf.LockName.Before(own) {
			continue
		}
		if winner == nil || lf.LockName.Before(&winner.LockName) {
			winner = lf
		}
	}
	return winner
}

func baselineName(baseline *models.LockName) *string {
	if baseline == nil {
		return nil
	}
	name := baseline.Name
	return &name
}
