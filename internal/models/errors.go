package models

import (
	"errors"
	"fmt"
)

// Error codes for structured error handling.
const (
	ErrCodeLock     = "LOCK_ERROR"
	ErrCodeConflict = "LOCK_CONFLICT"
	ErrCodeStorage  = "STORAGE_ERROR"
	ErrCodeDatabase = "DATABASE_ERROR"
	ErrCodeSchema   = "SCHEMA_ERROR"
	ErrCodeMerge    = "MERGE_ERROR"
	ErrCodeConfig   = "CONFIG_ERROR"
)

// Sentinel errors
var (
	ErrLockHeld        = errors.New("lock held by another user")
	ErrLockNotHeld     = errors.New("lock not held")
	ErrLockRescinded   = errors.New("lock ownership rescinded")
	ErrInvalidLockName = errors.New("invalid lock file name")
	ErrInvalidConfig   = errors.New("invalid configuration")
	ErrTableMissing    = errors.New("table not present in database copy")
	ErrMetaKeyMissing  = errors.New("meta key not found")
	ErrUnknownBackend  = errors.New("unknown storage backend")
)

// LockError provides detailed lock operation failure information.
type LockError struct {
	Code   string
	Op     string
	Holder string
	Err    error
}

func (e *LockError) Error() string {
	if e.Holder != "" {
		return fmt.Sprintf("lock %s [%s]: held by %s: %v", e.Op, e.Code, e.Holder, e.Err)
	}
	return fmt.Sprintf("lock %s [%s]: %v", e.Op, e.Code, e.Err)
}

func (e *LockError) Unwrap() error {
	return e.Err
}

// MergeError scopes a failure to a single table so one bad table cannot
// abort an entire analysis run.
type MergeError struct {
	Code  string
	Op    string
	Table string
	Err   error
}

func (e *MergeError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("merge %s [%s]: table %s: %v", e.Op, e.Code, e.Table, e.Err)
	}
	return fmt.Sprintf("merge %s [%s]: %v", e.Op, e.Code, e.Err)
}

func (e *MergeError) Unwrap() error {
	return e.Err
}

// StorageError wraps a shared-folder operation failure.
type StorageError struct {
	Op   string
	Name string
	Err  error
}

func (e *StorageError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("folder %s %s: %v", e.Op, e.Name, e.Err)
	}
	return fmt.Sprintf("folder %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
