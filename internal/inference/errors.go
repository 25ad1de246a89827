package inference

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout is returned when the backend does not answer within the
	// configured bound.
	ErrTimeout = errors.New("inference: backend timed out")

	// ErrEmptyResult is returned when the backend answers with blank text.
	ErrEmptyResult = errors.New("inference: empty result")
)

// BackendError wraps any other failure talking to the backend. Its
// details are for logs only.
type BackendError struct {
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("inference: backend error: %v", e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// IsBackendError reports whether err is or wraps a *BackendError.
func IsBackendError(err error) bool {
	var be *BackendError
	return errors.As(err, &be)
}
