package reconciler

import "errors"

var (
	// ErrFetchFailed aborts a thread list derivation or a thread open.
	ErrFetchFailed = errors.New("fetch failed")
	// ErrProfileResolutionFailed is logged, never returned: display falls back
	// to placeholders.
	ErrProfileResolutionFailed = errors.New("profile resolution failed")
	ErrWriteFailed             = errors.New("write failed")
	ErrSubscriptionDropped     = errors.New("subscription dropped")

	ErrNoSession      = errors.New("no active session")
	ErrNoTarget       = errors.New("no conversation target")
	ErrEmptyMessage   = errors.New("message body is empty")
	ErrMissingSubject = errors.New("subject is empty")
)
