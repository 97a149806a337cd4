package storage

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/pat-drk/schedsync/internal/models"
)

// WatchOp represents the type of folder change.
type WatchOp int

const (
	// OpCreate indicates a lock file appeared.
	OpCreate WatchOp = iota
	// OpModify indicates a lock file's contents changed.
	OpModify
	// OpDelete indicates a lock file disappeared.
	OpDelete
)

// String returns a human-readable representation of the operation.
func (op WatchOp) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// WatchEvent is a change to a lock file in the shared folder.
type WatchEvent struct {
	// Name is the lock file's entry name within the folder.
	Name string
	// Op is the operation that occurred.
	Op WatchOp
}

// LockWatcher emits events when lock files in a local shared folder
// change, typically because the sync client delivered another
// machine's write. Only available for local folders; remote backends
// have no change feed.
type LockWatcher struct {
	watcher *fsnotify.Watcher
	events  chan WatchEvent
	errors  chan error
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewLockWatcher creates a watcher. It must be started with Start()
// before it emits events.
func NewLockWatcher() (*LockWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &LockWatcher{
		watcher: watcher,
		events:  make(chan WatchEvent, 100),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
	}, nil
}

// Start begins watching the folder directory for lock file changes.
func (lw *LockWatcher) Start(dir string) error {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	if lw.running {
		return fmt.Errorf("watcher already running")
	}

	if err := lw.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch folder %s: %w", dir, err)
	}

	lw.running = true
	lw.wg.Add(1)
	go lw.processEvents()

	return nil
}

// Stop stops watching and cleans up resources. It blocks until the
// event processing goroutine has exited.
func (lw *LockWatcher) Stop() error {
	lw.mu.Lock()
	if !lw.running {
		lw.mu.Unlock()
		return nil
	}
	lw.running = false
	lw.mu.Unlock()

	close(lw.done)

	// Closing the underlying watcher unblocks the event loop.
	if err := lw.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}

	lw.wg.Wait()

	close(lw.events)
	close(lw.errors)

	return nil
}

// Events returns the channel that emits lock file change notifications.
// This channel is closed when the watcher is stopped.
func (lw *LockWatcher) Events() <-chan WatchEvent {
	return lw.events
}

// Errors returns the channel that emits error notifications.
// This channel is closed when the watcher is stopped.
func (lw *LockWatcher) Errors() <-chan error {
	return lw.errors
}

// IsRunning returns true if the watcher is currently running.
func (lw *LockWatcher) IsRunning() bool {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return lw.running
}

func (lw *LockWatcher) processEvents() {
	defer lw.wg.Done()

	for {
		select {
		case <-lw.done:
			return

		case event, ok := <-lw.watcher.Events:
			if !ok {
				return
			}

			if watchEvent, ok := convertEvent(event); ok {
				select {
				case lw.events <- watchEvent:
				case <-lw.done:
					return
				}
			}

		case err, ok := <-lw.watcher.Errors:
			if !ok {
				return
			}

			select {
			case lw.errors <- err:
			case <-lw.done:
				return
			}
		}
	}
}

// convertEvent converts an fsnotify event to a WatchEvent. Returns
// false for anything that is not a lock file change, which includes
// the temp files sync clients and LocalFolder itself write.
func convertEvent(event fsnotify.Event) (WatchEvent, bool) {
	name := filepath.Base(event.Name)
	if !models.IsLockName(name) {
		return WatchEvent{}, false
	}

	var op WatchOp
	switch {
	case event.Has(fsnotify.Create):
		op = OpCreate
	case event.Has(fsnotify.Write):
		op = OpModify
	case event.Has(fsnotify.Remove):
		op = OpDelete
	case event.Has(fsnotify.Rename):
		// Sync clients replace files via rename; the new name
		// produces its own create event.
		op = OpDelete
	default:
		// Chmod and other events carry no lock state change.
		return WatchEvent{}, false
	}

	return WatchEvent{Name: name, Op: op}, true
}
