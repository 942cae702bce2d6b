package domain

import "errors"

var (
	ErrValidation    = errors.New("validation failed")
	ErrNotFound      = errors.New("not found")
	ErrForbidden     = errors.New("forbidden")
	ErrExpired       = errors.New("meeting has expired")
	ErrAlreadyActive = errors.New("meeting is already active")
	ErrFull          = errors.New("meeting is full")
	ErrNotActive     = errors.New("meeting is not active")
	ErrEnded         = errors.New("meeting has ended")
	ErrInternal      = errors.New("internal error")
)

// Error codes as they appear on the wire.
const (
	CodeValidation    = "ValidationError"
	CodeNotFound      = "NotFound"
	CodeForbidden     = "Forbidden"
	CodeExpired       = "Expired"
	CodeAlreadyActive = "AlreadyActive"
	CodeFull          = "Full"
	CodeNotActive     = "NotActive"
	CodeEnded         = "Ended"
	CodeInternal      = "Internal"
)

var codes = []struct {
	err  error
	code string
}{
	{ErrValidation, CodeValidation},
	{ErrNotFound, CodeNotFound},
	{ErrForbidden, CodeForbidden},
	{ErrExpired, CodeExpired},
	{ErrAlreadyActive, CodeAlreadyActive},
	{ErrFull, CodeFull},
	{ErrNotActive, CodeNotActive},
	{ErrEnded, CodeEnded},
}

// Code classifies err into the taxonomy. Unknown errors are Internal.
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}

// IsStateConflict reports whether err means the caller may re-query state and retry.
func IsStateConflict(err error) bool {
	return errors.Is(err, ErrExpired) ||
		errors.Is(err, ErrAlreadyActive) ||
		errors.Is(err, ErrFull) ||
		errors.Is(err, ErrNotActive) ||
		errors.Is(err, ErrEnded)
}
