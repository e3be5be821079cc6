package upload

import (
	"errors"
	"fmt"
)

// ErrCancelled marks an upload that was superseded or aborted by the caller.
// No terminal phase callback fires for it and the tracker treats it as a
// silent return to idle, never as a failure.
var ErrCancelled = errors.New("upload cancelled")

// StatusError is a non-2xx response from the upload endpoint. The status
// code is carried as a discrete field so the retry policy can classify it
// without inspecting message text.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("upload failed with status %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("upload failed with status %d", e.Code)
}

// Retryable reports whether another attempt may succeed. Client errors are
// terminal, except 408 (request timeout) and 429 (rate limited).
func (e *StatusError) Retryable() bool {
	if e.Code >= 400 && e.Code < 500 {
		return e.Code == 408 || e.Code == 429
	}
	return true
}

// retryable classifies any attempt error. Transport failures and timeouts
// are retryable; typed status errors decide for themselves.
func retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return true
}
