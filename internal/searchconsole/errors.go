package searchconsole

import "fmt"

// AuthenticationError means the credentials were rejected. It is fatal for a run.
type AuthenticationError struct {
	Message string
	Cause   error
}

func (e *AuthenticationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("search console authentication failed: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("search console authentication failed: %s", e.Message)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Cause
}

// RateLimitError means the API quota is exhausted.
type RateLimitError struct {
	Cause error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("search console rate limit exceeded: %v", e.Cause)
}

func (e *RateLimitError) Unwrap() error {
	return e.Cause
}
