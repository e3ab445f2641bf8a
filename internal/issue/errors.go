package issue

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotFound is wrapped by RemoteError when the issue does not exist.
var ErrNotFound = errors.New("issue not found")

// RemoteError reports a transport or auth failure from a remote call.
type RemoteError struct {
	Op         string // "execute" or "fetch"
	Site       string
	Key        string // set for fetches
	StatusCode int    // 0 when no HTTP response was received
	Err        error
}

func (e *RemoteError) Error() string {
	msg := fmt.Sprintf("%s on site %s", e.Op, e.Site)
	if e.Key != "" {
		msg += " key " + e.Key
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RemoteError) Unwrap() error { return e.Err }

// NotFound reports whether the remote said the issue does not exist.
func (e *RemoteError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound || errors.Is(e.Err, ErrNotFound)
}

// IsNotFound reports whether err is, or wraps, a not-found failure.
func IsNotFound(err error) bool {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.NotFound()
	}
	return errors.Is(err, ErrNotFound)
}
