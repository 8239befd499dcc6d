// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates failed authentication/authorization of the caller.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidCredential indicates a missing, undecryptable or token-less source credential,
	// or a vendor that rejected the stored token.
	ErrInvalidCredential = errors.New("invalid source credential")

	// ErrMissingMapping indicates a selected table has no property mapping configured.
	ErrMissingMapping = errors.New("missing property mapping")

	// ErrInvalidMapping indicates a property mapping that cannot be applied consistently.
	ErrInvalidMapping = errors.New("invalid property mapping")

	// ErrRateLimited indicates the caller exceeded the sync trigger budget.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyExists indicates a unique constraint violation.
	ErrAlreadyExists = errors.New("already exists")

	// ErrSyncInProgress indicates another sync of the same table is running in this process.
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrValidation indicates malformed caller input.
	ErrValidation = errors.New("validation")
)
