// Package apperr holds the typed error taxonomy shared by the
// repositories, the pipeline and the HTTP layer. It sits at the leaf of
// the import graph so storage code can return typed errors without
// depending on the orchestration core.
package apperr

import (
	"errors"
	"fmt"
)

// ErrJobBusy is returned when a stage operation is requested for a job
// that already has one in flight. The caller may retry once the running
// stage resolves; the two operations are never interleaved.
var ErrJobBusy = errors.New("a stage operation is already in flight for this job")

// ValidationError reports an illegal stage/state combination or invalid
// stage input. No mutation has taken place when it is returned.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Validationf builds a ValidationError from a format string.
func Validationf(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a missing job or reference. No mutation has
// taken place when it is returned.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// CapabilityError wraps a failure of an external capability provider
// (extraction, grading, feedback, rendering). During grading it is
// absorbed into a per-question fallback; at batch level it fails the
// stage.
type CapabilityError struct {
	Provider string
	Err      error
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *CapabilityError) Unwrap() error { return e.Err }
