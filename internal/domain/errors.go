package domain

import "errors"

// Error taxonomy shared across services and surfaced by the HTTP layer.
var (
	// ErrNotFound indicates an unknown item, account, report or user.
	ErrNotFound = errors.New("not found")
	// ErrForbidden indicates the requester is not allowed to access the resource.
	ErrForbidden = errors.New("forbidden")
	// ErrConflict indicates a uniqueness violation on insert.
	ErrConflict = errors.New("already exists")
	// ErrValidation indicates malformed caller input.
	ErrValidation = errors.New("invalid input")
	// ErrIntegrity indicates a sealed credential envelope failed authentication.
	ErrIntegrity = errors.New("credential envelope integrity check failed")
	// ErrTimeout indicates the artifact polling loop exhausted its attempt budget.
	ErrTimeout = errors.New("report generation timed out")
)
