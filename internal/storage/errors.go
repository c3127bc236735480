package storage

import "errors"

// Sentinels every backend maps its driver errors onto. Callers match them
// with errors.Is.
var (
	ErrNotFound     = errors.New("storage: record not found")
	ErrDuplicateKey = errors.New("storage: key already exists")
	ErrInvalidInput = errors.New("storage: invalid input")
)
