package storage

import "errors"

var (
	// ErrNotFound means no alert or checkpoint matched the key.
	ErrNotFound = errors.New("storage: record not found")
	// ErrDuplicateKey means an alert with the same ID is already stored.
	// Re-runs of a batch strategy hit this and treat it as delivered.
	ErrDuplicateKey = errors.New("storage: alert already stored")
	// ErrInvalidInput covers nil records, empty IDs and inverted time ranges.
	ErrInvalidInput = errors.New("storage: invalid input")
)
