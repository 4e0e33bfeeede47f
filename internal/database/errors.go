package database

import "errors"

// Sentinel errors returned (optionally wrapped) by every backend.
var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("conflicting concurrent write")
)
