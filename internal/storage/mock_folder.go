package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MockFolder provides an in-memory Folder for testing. Beyond the plain
// operations it can inject per-operation failures and simulate the two
// sync-layer behaviors the coordinator is designed against: entries
// whose names are visible before their bytes, and conflict renames.
type MockFolder struct {
	mu      sync.RWMutex
	files   map[string][]byte
	modTime map[string]time.Time
	now     func() time.Time

	// Error injection
	ListError   error
	ReadError   error
	WriteError  error
	DeleteError error

	// Names listed but unreadable, as if the sync layer has shown the
	// filename before delivering the contents.
	unpropagated map[string]bool

	// Operation tracking
	Writes  []string
	Deletes []string
}

// NewMockFolder creates an empty mock folder.
func NewMockFolder() *MockFolder {
	return &MockFolder{
		files:        make(map[string][]byte),
		modTime:      make(map[string]time.Time),
		unpropagated: make(map[string]bool),
		now:          time.Now,
	}
}

// SetNow overrides the clock used for entry mod times.
func (m *MockFolder) SetNow(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// List returns current entries sorted by name.
func (m *MockFolder) List(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.ListError != nil {
		return nil, m.ListError
	}

	entries := make([]Entry, 0, len(m.files))
	for name, data := range m.files {
		entries = append(entries, Entry{
			Name:    name,
			Size:    int64(len(data)),
			ModTime: m.modTime[name],
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	return entries, nil
}

// Read retrieves an entry's contents.
func (m *MockFolder) Read(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateEntryName(name); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.ReadError != nil {
		return nil, m.ReadError
	}

	if m.unpropagated[name] {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	if data, ok := m.files[name]; ok {
		result := make([]byte, len(data))
		copy(result, data)
		return result, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
}

// Write creates or replaces an entry.
func (m *MockFolder) Write(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateEntryName(name); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Writes = append(m.Writes, name)

	if m.WriteError != nil {
		return m.WriteError
	}

	m.files[name] = append([]byte(nil), data...)
	m.modTime[name] = m.now()
	return nil
}

// Delete removes an entry. Missing entries are success.
func (m *MockFolder) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateEntryName(name); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Deletes = append(m.Deletes, name)

	if m.DeleteError != nil {
		return m.DeleteError
	}

	delete(m.files, name)
	delete(m.modTime, name)
	delete(m.unpropagated, name)
	return nil
}

// Test helpers

// Seed places an entry directly, as if another client's write had
// propagated here.
func (m *MockFolder) Seed(name string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.files[name] = append([]byte(nil), data...)
	m.modTime[name] = m.now()
}

// SeedUnpropagated places an entry whose name lists but whose contents
// read as missing, simulating partial propagation.
func (m *MockFolder) SeedUnpropagated(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.files[name] = nil
	m.modTime[name] = m.now()
	m.unpropagated[name] = true
}

// Propagate makes a previously unpropagated entry's contents readable.
func (m *MockFolder) Propagate(name string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.files[name] = append([]byte(nil), data...)
	delete(m.unpropagated, name)
}

// ConflictRename renames an entry the way sync clients resolve
// simultaneous writes, leaving the original name gone.
func (m *MockFolder) ConflictRename(oldName, newName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.files[oldName]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, oldName)
	}

	m.files[newName] = data
	m.modTime[newName] = m.modTime[oldName]
	delete(m.files, oldName)
	delete(m.modTime, oldName)
	return nil
}

// FileExists checks if an entry exists (helper for tests).
func (m *MockFolder) FileExists(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, exists := m.files[name]
	return exists
}

// Names returns current entry names sorted.
func (m *MockFolder) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.files))
	for name := range m.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clear removes all entries and injected errors.
func (m *MockFolder) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.files = make(map[string][]byte)
	m.modTime = make(map[string]time.Time)
	m.unpropagated = make(map[string]bool)
	m.Writes = nil
	m.Deletes = nil
	m.ListError = nil
	m.ReadError = nil
	m.WriteError = nil
	m.DeleteError = nil
}
