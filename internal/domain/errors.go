package domain

import "errors"

// Channel and decoding errors
var (
	ErrTransport  = errors.New("transport: connection failed")
	ErrDecode     = errors.New("decode: malformed frame")
	ErrValidation = errors.New("validation: unrecognized task identifier")
)

// Pull operation errors
var (
	ErrFetch      = errors.New("tasks: fetch failed")
	ErrSubmission = errors.New("tasks: submission failed")
	ErrExecution  = errors.New("tasks: execution failed")
	ErrDeletion   = errors.New("tasks: deletion failed")
)
