package service

import "errors"

// Errors returned by Reservations.  Callers test them with errors.Is; any
// other error is an unexpected storage failure wrapped with context.
var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrEventNotFound        = errors.New("event not found")
	ErrBookingNotFound      = errors.New("booking not found or already cancelled")
	ErrInsufficientCapacity = errors.New("not enough seats available")
	// ErrTransactionFailure means the booking or cancellation did not
	// commit: the begin or commit failed or the deadline passed.  Nothing
	// was applied and the caller may retry.
	ErrTransactionFailure = errors.New("transaction failed")
)
