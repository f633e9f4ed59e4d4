// internal/pipeline/errors.go
package pipeline

import (
	"errors"
	"fmt"
)

// ErrNotCollection reports that a URL resolved cleanly but points at a single
// item rather than a collection. It is distinct from ResolutionError so the
// collection check can classify the URL instead of failing.
var ErrNotCollection = errors.New("not a collection")

// ResolutionError indicates a collection or item could not be resolved at all
// (not found, inaccessible). Batch creation aborts on it.
type ResolutionError struct {
	URL    string
	Detail string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("failed to resolve %s: %s", e.URL, e.Detail)
}

// TransientError indicates a stage failure that is worth retrying, such as a
// network error or timeout on the external source.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// FatalError indicates a stage failure that no retry can fix: unsupported
// format, permanently missing item, and the like. The task fails immediately.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal failure: %v", e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// PersistenceError indicates the task store could not durably record a
// transition. The process cannot safely continue with unreliable checkpoints
// and must halt rather than keep operating.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("task store write failed: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsTransient reports whether err should be retried at the stage level.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsFatal reports whether err should fail the task without retrying.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// Transient wraps err as a retryable stage failure.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// Fatal wraps err as a non-retryable stage failure.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}
