// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers. Services wrap these with %w
// and a human-readable message; callers classify with errors.Is.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrForbidden indicates an accessibility check failed.
	ErrForbidden = errors.New("forbidden")

	// ErrConflict indicates a stale revision, organization mismatch or
	// denied ownership transfer.
	ErrConflict = errors.New("conflict")

	// ErrQuotaExceeded indicates attachment storage is exhausted.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrSizeMismatch indicates an uploaded attachment deviates too far
	// from the size declared at reservation time.
	ErrSizeMismatch = errors.New("size mismatch")

	// ErrInvalidInput indicates a malformed or incomplete request.
	ErrInvalidInput = errors.New("invalid input")

	// ErrOverflow indicates quota arithmetic would wrap.
	ErrOverflow = errors.New("size overflow")

	// ErrPolicyViolation indicates an organization policy forbids the operation.
	ErrPolicyViolation = errors.New("policy violation")
)
