package ports

import "errors"

// Standard application-level errors.
// Adapters and core components wrap underlying errors with these sentinels
// so callers can branch with errors.Is without knowing the source package.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrNotFound           = errors.New("resource not found")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Order Tracking Errors
	//
	// Only ErrValidation is a hard failure surfaced to the caller. The
	// others classify message-local conditions that are logged and skipped:
	// exchange feeds redeliver stale snapshots and duplicate trades as a
	// matter of course, so these are expected traffic, not faults.
	ErrValidation        = errors.New("invalid order parameters")
	ErrUnknownOrder      = errors.New("order is not tracked")
	ErrIllegalTransition = errors.New("illegal order state transition")
	ErrDuplicateTrade    = errors.New("trade id already processed")
	ErrMalformedMessage  = errors.New("malformed exchange message")
	ErrManagerDisabled   = errors.New("order tracking is disabled")

	// Feed Transport Errors
	ErrConnectionFailed     = errors.New("failed to connect to the exchange feed")
	ErrAuthenticationFailed = errors.New("exchange feed authentication failed (check token)")
	ErrSubscriptionFailed   = errors.New("exchange feed subscription failed")
	ErrFeedClosed           = errors.New("exchange feed closed")

	// Storage Errors
	ErrDuplicateEntry = errors.New("record already exists")
	ErrDBConnection   = errors.New("database connection error")
	ErrQueryFailed    = errors.New("database query failed")
)
