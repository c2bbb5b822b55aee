package xapi

import "errors"

var (
	// ErrAuthRejected means a refresh was attempted and explicitly rejected.
	// Manual re-authorization (the reauth command) is required.
	ErrAuthRejected = errors.New("authorization rejected: re-run the reauth flow")
	// ErrNotFound means the requested resource does not exist (deleted tweet,
	// protected account).
	ErrNotFound = errors.New("not found")
	// ErrQuotaExhausted means bounded 429 retries ran out for one call.
	ErrQuotaExhausted = errors.New("quota retries exhausted")
)
