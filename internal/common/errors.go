// Package common holds the error taxonomy shared by repositories, services and
// handlers. Errors are wrapped with fmt.Errorf("%w: ...") and matched with errors.Is.
package common

import "errors"

// Caller errors. The caller can fix the request and try again.
var (
	// ErrValidation indicates malformed or missing required input.
	ErrValidation = errors.New("invalid input")

	// ErrNotFound indicates an unknown id or an unresolvable pairing code.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates membership capacity was reached or a race was lost.
	ErrConflict = errors.New("conflict")

	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

// Data and infrastructure errors.
var (
	// ErrDecryption indicates a blob could not be authenticated or decoded.
	// Callers degrade the affected field instead of failing the whole request.
	ErrDecryption = errors.New("decryption failed")

	// ErrTransport indicates the storage or network collaborator is unavailable.
	ErrTransport = errors.New("storage unavailable")
)
