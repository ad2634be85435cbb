package feed

import (
	"errors"
	"fmt"
)

// Classifications carried by *Error. Match them with errors.Is.
var (
	// ErrUnavailable covers transport failures, timeouts, non-2xx responses
	// and oversized bodies.
	ErrUnavailable = errors.New("feed unavailable")
	// ErrDecode means the payload arrived but is not a valid GTFS-RT message.
	ErrDecode = errors.New("feed payload could not be decoded")
)

// Error is returned by every failed fetch. Callers treat it as "no data this
// cycle"; it is never fatal.
type Error struct {
	Endpoint Endpoint
	Kind     error
	Err      error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Endpoint, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Endpoint, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func unavailable(ep Endpoint, err error) error {
	return &Error{Endpoint: ep, Kind: ErrUnavailable, Err: err}
}

func decodeFailure(ep Endpoint, err error) error {
	return &Error{Endpoint: ep, Kind: ErrDecode, Err: err}
}

// outcome is the metrics label for a fetch result.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrDecode):
		return "decode_error"
	default:
		return "unavailable"
	}
}
