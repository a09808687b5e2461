package ideation

import "fmt"

// MalformedIdeaError describes one discarded entry of an ideation response.
type MalformedIdeaError struct {
	Index  int
	Reason string
}

func (e *MalformedIdeaError) Error() string {
	return fmt.Sprintf("malformed idea #%d: %s", e.Index, e.Reason)
}

// Error wraps a failure of the ideation collaborator as a whole.
type Error struct {
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}
