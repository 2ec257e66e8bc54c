// Package repository defines the MySQL-backed stores and the error values
// they share.  These sentinel values allow higher layers such as the
// reservation service to distinguish between failure scenarios without
// inspecting driver errors. For example, ErrConflict signals that a
// conditional write matched no row, while ErrTxFailed means the
// transaction itself could not be committed and nothing was applied.
package repository

import "errors"

// ErrNotFound is returned when the addressed row does not exist or is
// not visible under the requested condition (for example a booking that
// belongs to somebody else or was already cancelled).
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a conditional write matched no row.  For
// TryReserve this covers both an unknown event and too few seats; the
// storage layer cannot tell them apart.
var ErrConflict = errors.New("conflict")

// ErrInvalid is returned when a write is rejected before reaching the
// database because its arguments break a column constraint.
var ErrInvalid = errors.New("invalid argument")

// ErrUsernameExists is returned when registering a taken username.
var ErrUsernameExists = errors.New("username already exists")

// ErrTxFailed wraps begin and commit failures as well as transactions
// that ran past their deadline.  Callers must treat the outcome as
// aborted.
var ErrTxFailed = errors.New("transaction failed")
