package httpclient

import (
	"errors"
	"fmt"
)

type RetryableError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err originated from an exhausted retry loop,
// meaning the upstream was reachable but persistently unhealthy.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}
