package model

import "errors"

// Sentinel errors for the engine's failure taxonomy. Callers classify with
// errors.Is; wrapped messages carry the detail.
var (
	// ErrConfiguration marks an empty or invalid question graph. Not retryable.
	ErrConfiguration = errors.New("configuration error")
	// ErrNotFound marks an unknown session or form template.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState marks an operation against a session in the wrong status.
	ErrInvalidState = errors.New("invalid session state")
	// ErrValidation marks an answer that does not match the question's declared type.
	ErrValidation = errors.New("validation error")
	// ErrTransform marks a field-mapping transform failure. The single mapping
	// is skipped; the answer and the session survive.
	ErrTransform = errors.New("transform error")
	// ErrPersistence marks an adapter I/O failure. The session moves to the
	// error status; retrying the same call is safe because writes are
	// idempotent per (session, question, value).
	ErrPersistence = errors.New("persistence error")
)
