package services

import "errors"

var (
	// ErrInvalidRequest rejects an enqueue before anything is queued.
	ErrInvalidRequest = errors.New("invalid payment request")
	// ErrDuplicateRequest means an identical live request exists inside the
	// dedup window.
	ErrDuplicateRequest = errors.New("duplicate payment request")
	// ErrNotFound means no transaction matches the checkout id.
	ErrNotFound = errors.New("transaction not found")
	// ErrAlreadyFinal rejects a cancel on a terminal transaction.
	ErrAlreadyFinal = errors.New("transaction already in a terminal state")
	// ErrUnknownTransaction means a callback referenced no known transaction.
	// Logged and acknowledged, never fatal.
	ErrUnknownTransaction = errors.New("unknown transaction")
)
