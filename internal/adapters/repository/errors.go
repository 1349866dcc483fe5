package repository

import "errors"

// Sentinel kinds for repository errors.
var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record conflict")
	ErrReadOnly = errors.New("write in read-only transaction")
	ErrClosed   = errors.New("store closed")
)
