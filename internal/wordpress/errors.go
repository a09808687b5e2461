package wordpress

import (
	"errors"
	"fmt"
)

// ErrPostNotFound is returned when no published post matches a page URL.
var ErrPostNotFound = errors.New("post not found")

// Error represents a failed WordPress REST call.
type Error struct {
	URL        string
	StatusCode int
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("wordpress error for %s: %s", e.URL, e.Message)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.StatusCode)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}
