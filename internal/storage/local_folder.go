package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pat-drk/schedsync/internal/events"
)

// LocalFolder implements Folder over a directory on disk, typically one
// kept replicated by a consumer cloud-drive client.
type LocalFolder struct {
	baseDir string
	logger  *events.Logger
}

// NewLocalFolder creates a folder rooted at baseDir, creating the
// directory if needed.
func NewLocalFolder(baseDir string, logger *events.Logger) (*LocalFolder, error) {
	absPath, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve folder directory: %w", err)
	}

	if err := os.MkdirAll(absPath, 0755); err != nil {
		return nil, fmt.Errorf("create folder directory: %w", err)
	}

	return &LocalFolder{
		baseDir: absPath,
		logger:  logger.WithField("component", "local_folder"),
	}, nil
}

// Dir returns the absolute directory this folder wraps.
func (f *LocalFolder) Dir() string {
	return f.baseDir
}

// List returns the folder's current entries. Subdirectories and hidden
// files (in-flight atomic writes) are not entries.
func (f *LocalFolder) List(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dirEntries, err := os.ReadDir(f.baseDir)
	if err != nil {
		return nil, fmt.Errorf("list folder: %w", err)
	}

	var entries []Entry
	for _, de := range dirEntries {
		if de.IsDir() || strings.HasPrefix(de.Name(), ".") {
			continue
		}

		info, err := de.Info()
		if err != nil {
			// Deleted between the listing and the stat; another client
			// was here first.
			continue
		}

		entries = append(entries, Entry{
			Name:    de.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	return entries, nil
}

// Read retrieves an entry's contents.
func (f *LocalFolder) Read(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	safePath, err := f.sanitizeName(name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(safePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("read entry: %w", err)
	}

	return data, nil
}

// Write creates or replaces an entry atomically via a hidden temp file
// and rename, so the sync layer never replicates a half-written entry.
func (f *LocalFolder) Write(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	safePath, err := f.sanitizeName(name)
	if err != nil {
		return err
	}

	f.logger.WithFields(map[string]interface{}{
		"name": name,
		"size": len(data),
	}).Debug("Writing folder entry")

	tempPath := filepath.Join(f.baseDir, fmt.Sprintf(".%s.tmp.%d", name, time.Now().UnixNano()))

	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("write temp entry: %w", err)
	}

	if file, err := os.Open(tempPath); err == nil {
		_ = file.Sync()
		_ = file.Close()
	}

	if err := os.Rename(tempPath, safePath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("rename temp entry: %w", err)
	}

	return nil
}

// Delete removes an entry. Already-gone entries are success.
func (f *LocalFolder) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	safePath, err := f.sanitizeName(name)
	if err != nil {
		return err
	}

	f.logger.WithField("name", name).Debug("Deleting folder entry")

	if err := os.Remove(safePath); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("delete entry: %w", err)
	}

	return nil
}

// sanitizeName rejects anything other than a plain filename inside the
// folder. The protocol never nests entries.
func (f *LocalFolder) sanitizeName(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("invalid entry name: empty")
	}
	if strings.ContainsRune(name, 0) {
		return "", fmt.Errorf("invalid entry name: contains null byte")
	}
	if strings.ContainsAny(name, `/\`) || name != filepath.Base(name) {
		return "", fmt.Errorf("invalid entry name %q: must be a plain filename", name)
	}
	if name == "." || name == ".." {
		return "", fmt.Errorf("invalid entry name %q", name)
	}

	return filepath.Join(f.baseDir, name), nil
}
