package upload

import (
	"errors"
	"fmt"
)

// ErrIncomplete indicates the backend refused to finalize the session
// because one or more parts were never reported or their sizes disagree.
// The session is still live; a resume can fill the gaps.
var ErrIncomplete = errors.New("upload incomplete")

// FailedError is returned when an upload cannot be carried to completion.
// It carries the upload ID so the caller can offer a resume; the remote
// session is deliberately left in place.
type FailedError struct {
	UploadID string
	Err      error
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("upload %s failed: %v", e.UploadID, e.Err)
}

func (e *FailedError) Unwrap() error {
	return e.Err
}

// storageError is a non-2xx response from the storage backend for a
// presigned part PUT.
type storageError struct {
	Part   int
	Status int
}

func (e *storageError) Error() string {
	return fmt.Sprintf("storage rejected part %d: HTTP %d", e.Part, e.Status)
}

// retryableStorageStatus reports whether a storage status code is worth
// retrying within the per-part budget.
func retryableStorageStatus(status int) bool {
	switch status {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
