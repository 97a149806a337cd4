// Package storage provides access to the shared folder that carries
// lock files between machines. The folder is replicated by an external
// sync client with unpredictable propagation delay and occasional
// rename-on-conflict behavior, so callers never assume consistency
// beyond what a single operation returns.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates the named entry does not exist in the folder.
var ErrNotFound = errors.New("entry not found")

// Folder is the minimal capability surface the lock coordinator needs
// from the shared folder. Names are flat entries, not paths. Any
// backend with these four operations can carry the protocol: a synced
// local directory, an in-memory test double, or an object store.
type Folder interface {
	// List returns the folder's current entries. The listing reflects
	// whatever the sync layer has propagated so far, nothing more.
	List(ctx context.Context) ([]Entry, error)

	// Read retrieves an entry's contents. Returns ErrNotFound when the
	// entry is absent, which includes names visible in a listing whose
	// bytes have not propagated yet.
	Read(ctx context.Context, name string) ([]byte, error)

	// Write creates or replaces an entry.
	Write(ctx context.Context, name string, data []byte) error

	// Delete removes an entry. Deleting a missing entry is success;
	// another client may have removed it first.
	Delete(ctx context.Context, name string) error
}

// Entry describes one folder entry.
type Entry struct {
	Name    string
	Size    int64
	ModTime time.Time
}
