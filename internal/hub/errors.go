package hub

import (
	"errors"

	"github.com/ageniuscoder/relaychat/internal/store"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")
	ErrInvalid   = errors.New("invalid input")
	ErrBusy      = errors.New("busy")
	ErrConflict  = errors.New("conflict")
	ErrTooShort  = errors.New("message too short")
	ErrTooLong   = errors.New("message too long")
)

// codeOf maps an operation error to the wire error code reported to the
// originating connection. Anything unrecognized is an internal failure.
func codeOf(err error) string {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, store.ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrTooShort):
		return "too_short"
	case errors.Is(err, ErrTooLong):
		return "too_long"
	case errors.Is(err, ErrInvalid):
		return "invalid"
	case errors.Is(err, ErrBusy):
		return "busy"
	case errors.Is(err, ErrConflict):
		return "conflict"
	}
	return "internal"
}

// messageOf hides internal failure detail from clients; taxonomy errors pass
// through as-is.
func messageOf(err error) string {
	if codeOf(err) == "internal" {
		return "operation failed"
	}
	return err.Error()
}
