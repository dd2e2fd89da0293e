package domain

import "errors"

var (
	ErrTaskNotFound    = errors.New("task not found")
	ErrProjectNotFound = errors.New("project not found")

	// ErrConflict signals a version mismatch on commit. The caller may
	// reload and retry; the core never retries on its own.
	ErrConflict = errors.New("task was modified by another process, please retry")

	ErrInvalidInput = errors.New("invalid input")
)
