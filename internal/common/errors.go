package common

import "errors"

// Error taxonomy shared by every layer. Only these cross the HTTP boundary;
// provider failures are absorbed by the orchestrator.
var (
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("access denied")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
)
