package storage_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pat-drk/schedsync/internal/storage"
)

func TestMockFolderErrorInjection(t *testing.T) {
	ctx := context.Background()

	t.Run("list error", func(t *testing.T) {
		folder := storage.NewMockFolder()
		folder.ListError = errors.New("list failed")

		_, err := folder.List(ctx)
		assert.EqualError(t, err, "list failed")
	})

	t.Run("read error", func(t *testing.T) {
		folder := storage.NewMockFolder()
		folder.Seed("entry.json", []byte("x"))
		folder.ReadError = errors.New("read failed")

		_, err := folder.Read(ctx, "entry.json")
		assert.EqualError(t, err, "read failed")
	})

	t.Run("write error", func(t *testing.T) {
		folder := storage.NewMockFolder()
		folder.WriteError = errors.New("write failed")

		err := folder.Write(ctx, "entry.json", []byte("x"))
		assert.EqualError(t, err, "write failed")
		assert.False(t, folder.FileExists("entry.json"))
	})

	t.Run("delete error", func(t *testing.T) {
		folder := storage.NewMockFolder()
		folder.Seed("entry.json", []byte("x"))
		folder.DeleteError = errors.New("delete failed")

		err := folder.Delete(ctx, "entry.json")
		assert.EqualError(t, err, "delete failed")
		assert.True(t, folder.FileExists("entry.json"))
	})
}

func TestMockFolderUnpropagatedEntries(t *testing.T) {
	ctx := context.Background()
	folder := storage.NewMockFolder()

	// The sync layer can surface a filename before its bytes arrive.
	folder.SeedUnpropagated("pending.json")

	entries, err := folder.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "pending.json", entries[0].Name)

	_, err = folder.Read(ctx, "pending.json")
	require.Error(t, err)
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	// Once the contents propagate the entry reads normally.
	folder.Propagate("pending.json", []byte(`{"user":"alice"}`))

	data, err := folder.Read(ctx, "pending.json")
	require.NoError(t, err)
	assert.Equal(t, `{"user":"alice"}`, string(data))
}

func TestMockFolderConflictRename(t *testing.T) {
	ctx := context.Background()
	folder := storage.NewMockFolder()

	folder.Seed("lock-2024-01-01T00-00-00-000Z-aaa111.json", []byte("payload"))

	err := folder.ConflictRename(
		"lock-2024-01-01T00-00-00-000Z-aaa111.json",
		"lock-2024-01-01T00-00-00-000Z-aaa111 (1).json",
	)
	require.NoError(t, err)

	_, err = folder.Read(ctx, "lock-2024-01-01T00-00-00-000Z-aaa111.json")
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	data, err := folder.Read(ctx, "lock-2024-01-01T00-00-00-000Z-aaa111 (1).json")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	// Renaming a missing entry reports the mistake.
	err = folder.ConflictRename("absent.json", "absent (1).json")
	assert.Error(t, err)
}

func TestMockFolderOperationTracking(t *testing.T) {
	ctx := context.Background()
	folder := storage.NewMockFolder()

	require.NoError(t, folder.Write(ctx, "a.json", []byte("x")))
	require.NoError(t, folder.Write(ctx, "b.json", []byte("x")))
	require.NoError(t, folder.Delete(ctx, "a.json"))
	require.NoError(t, folder.Delete(ctx, "missing.json"))

	assert.Equal(t, []string{"a.json", "b.json"}, folder.Writes)
	assert.Equal(t, []string{"a.json", "missing.json"}, folder.Deletes)
}

func TestMockFolderClock(t *testing.T) {
	ctx := context.Background()
	folder := storage.NewMockFolder()

	stamp := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	folder.SetNow(func() time.Time { return stamp })

	require.NoError(t, folder.Write(ctx, "entry.json", []byte("x")))

	entries, err := folder.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].ModTime.Equal(stamp))
}

func TestMockFolderHelpers(t *testing.T) {
	folder := storage.NewMockFolder()

	folder.Seed("b.json", []byte("x"))
	folder.Seed("a.json", []byte("x"))

	assert.True(t, folder.FileExists("a.json"))
	assert.False(t, folder.FileExists("c.json"))
	assert.Equal(t, []string{"a.json", "b.json"}, folder.Names())

	folder.Clear()
	assert.Empty(t, folder.Names())
	assert.False(t, folder.FileExists("a.json"))
}

func TestMockFolderContextCancellation(t *testing.T) {
	folder := storage.NewMockFolder()
	folder.Seed("entry.json", []byte("x"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := folder.List(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = folder.Read(ctx, "entry.json")
	assert.ErrorIs(t, err, context.Canceled)

	err = folder.Write(ctx, "entry.json", []byte("y"))
	assert.ErrorIs(t, err, context.Canceled)

	err = folder.Delete(ctx, "entry.json")
	assert.ErrorIs(t, err, context.Canceled)
}
