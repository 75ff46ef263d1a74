package upload_errors

import (
	"errors"
	"fmt"
)

// Coordinator errors
var (
	ErrSessionNotFound     = errors.New("upload session not found")
	ErrSessionExpired      = errors.New("upload session expired")
	ErrTooManyChunks       = errors.New("too many chunks for declared size")
	ErrChunkOutOfRange     = errors.New("chunk number out of range")
	ErrChunkSizeMismatch   = errors.New("chunk size mismatch")
	ErrChecksumMismatch    = errors.New("chunk checksum mismatch")
	ErrDuplicateChunk      = errors.New("chunk already admitted with different content")
	ErrSessionNotUploading = errors.New("session is not accepting chunks")
	ErrIncompleteUpload    = errors.New("not all chunks have been admitted")
	ErrAlreadyTerminal     = errors.New("session is in a terminal state")
	ErrConflict            = errors.New("concurrent modification conflict")
	ErrInvalidInput        = errors.New("invalid input")
)

// StorageError wraps a failure from the object-storage backend. Retryable
// signals a transient condition worth a bounded retry with backoff.
type StorageError struct {
	Op        string
	Path      string
	Retryable bool
	Err       error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewRetryableStorageError marks a transient backend failure.
func NewRetryableStorageError(op, path string, err error) *StorageError {
	return &StorageError{Op: op, Path: path, Retryable: true, Err: err}
}

// NewStorageError marks a permanent backend failure.
func NewStorageError(op, path string, err error) *StorageError {
	return &StorageError{Op: op, Path: path, Retryable: false, Err: err}
}

// IsRetryableStorage reports whether err is a transient storage failure.
func IsRetryableStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se) && se.Retryable
}
