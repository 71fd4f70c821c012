package client

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthExpired is returned when the backend answers 401.
	ErrAuthExpired = errors.New("authorization expired")
	// ErrNetwork is returned when a request could not complete: dial
	// failures, timeouts, or an undecodable response.
	ErrNetwork = errors.New("network failure")
	// ErrRejected is returned for any other non-2xx response.
	ErrRejected = errors.New("request rejected")
)

// APIError describes a failed backend call. It unwraps to one of the
// sentinel errors above and, for transport failures, to the cause.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
	Kind       error
	Cause      error
}

func (e *APIError) Error() string {
	switch {
	case e.Cause != nil:
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Cause)
	case e.Body != "":
		return fmt.Sprintf("%s: %v (%d): %s", e.Op, e.Kind, e.StatusCode, e.Body)
	default:
		return fmt.Sprintf("%s: %v (%d)", e.Op, e.Kind, e.StatusCode)
	}
}

func (e *APIError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Kind, e.Cause}
	}
	return []error{e.Kind}
}

// IsAuthExpired reports whether err signals an authorization failure.
func IsAuthExpired(err error) bool {
	return errors.Is(err, ErrAuthExpired)
}
