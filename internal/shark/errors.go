package shark

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed caller input, detected before any request
// reaches the appliance.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}

func validationf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// ResourceNotFoundError reports that a referenced server-side resource no
// longer exists, e.g. a view handle from a stale cache entry.
type ResourceNotFoundError struct {
	Kind string
	ID   string
}

func (e *ResourceNotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found on appliance", e.Kind, e.ID)
}

// ExportUnavailableError reports that export data never became ready within
// the bounded retry budget.
type ExportUnavailableError struct {
	SourceID string
	Attempts int
	Message  string
}

func (e *ExportUnavailableError) Error() string {
	return fmt.Sprintf("export from source %q unavailable after %d attempt(s): %s",
		e.SourceID, e.Attempts, e.Message)
}

// AmbiguousOutputError reports a single-output operation invoked on a view
// with more than one output.
type AmbiguousOutputError struct {
	Handle  string
	Outputs int
}

func (e *AmbiguousOutputError) Error() string {
	return fmt.Sprintf("view %s has %d outputs; select an output explicitly or use an OutputMixer",
		e.Handle, e.Outputs)
}

// ErrIncompatibleOutputs is returned by OutputMixer when the outputs cannot
// be merged into one stream.
var ErrIncompatibleOutputs = errors.New("outputs have different legends or sample intervals and cannot be merged")
