package domain

import "errors"

var (
	// Ledger errors
	ErrNegativeAmount   = errors.New("amount must not be negative")
	ErrStoreUnavailable = errors.New("persistent store unavailable")

	// Classification errors
	ErrClassificationNotFound = errors.New("classification not found")
	ErrInvalidCategory        = errors.New("invalid category")

	// Reset policy errors
	ErrClearThrottled = errors.New("manual clear not allowed yet")

	// Config errors
	ErrInvalidRatio = errors.New("exchange ratio must be positive")

	// Daemon errors
	ErrDaemonNotRunning = errors.New("daemon is not running")
)
