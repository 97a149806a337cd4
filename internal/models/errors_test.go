package models_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pat-drk/schedsync/internal/models"
)

func TestLockError(t *testing.T) {
	tests := []struct {
		name string
		err  *models.LockError
		want string
	}{
		{
			name: "with holder",
			err: &models.LockError{
				Code:   models.ErrCodeConflict,
				Op:     "acquire",
				Holder: "alice",
				Err:    errors.New("earlier claim found"),
			},
			want: "lock acquire [LOCK_CONFLICT]: held by alice: earlier claim found",
		},
		{
			name: "without holder",
			err: &models.LockError{
				Code: models.ErrCodeStorage,
				Op:   "heartbeat",
				Err:  errors.New("write failed"),
			},
			want: "lock heartbeat [STORAGE_ERROR]: write failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.err.Error()
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMergeError(t *testing.T) {
	tests := []struct {
		name string
		err  *models.MergeError
		want string
	}{
		{
			name: "with table",
			err: &models.MergeError{
				Code:  models.ErrCodeMerge,
				Op:    "analyze",
				Table: "assignments",
				Err:   errors.New("no such column: syncId"),
			},
			want: "merge analyze [MERGE_ERROR]: table assignments: no such column: syncId",
		},
		{
			name: "without table",
			err: &models.MergeError{
				Code: models.ErrCodeDatabase,
				Op:   "apply",
				Err:  errors.New("begin transaction failed"),
			},
			want: "merge apply [DATABASE_ERROR]: begin transaction failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.err.Error()
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStorageError(t *testing.T) {
	err := &models.StorageError{
		Op:   "write",
		Name: "lock-2024-01-01T00-00-00-000Z-aaa111.json",
		Err:  errors.New("permission denied"),
	}

	want := "folder write lock-2024-01-01T00-00-00-000Z-aaa111.json: permission denied"
	assert.Equal(t, want, err.Error())
}

func TestErrorUnwrapping(t *testing.T) {
	baseErr := errors.New("base error")

	t.Run("LockError unwrap", func(t *testing.T) {
		lockErr := &models.LockError{
			Code: models.ErrCodeLock,
			Op:   "release",
			Err:  baseErr,
		}

		assert.Equal(t, baseErr, errors.Unwrap(lockErr))
	})

	t.Run("MergeError unwrap", func(t *testing.T) {
		mergeErr := &models.MergeError{
			Code:  models.ErrCodeMerge,
			Op:    "analyze",
			Table: "people",
			Err:   baseErr,
		}

		assert.Equal(t, baseErr, errors.Unwrap(mergeErr))
	})

	t.Run("sentinel matching through wrap", func(t *testing.T) {
		wrapped := &models.LockError{
			Code:   models.ErrCodeConflict,
			Op:     "acquire",
			Holder: "bob",
			Err:    models.ErrLockHeld,
		}

		assert.True(t, errors.Is(wrapped, models.ErrLockHeld))
	})
}
