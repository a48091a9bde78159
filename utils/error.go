package utils

import (
	"errors"
	"fmt"
)

var ErrorRecordNotFound = errors.New("record not found")

func ErrorPanic(err error) {
	if err != nil {
		panic(err)
	}
}

// ValidationError blocks a single action (e.g. confirm with missing required
// input). It is reported synchronously and never mutates state.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// ExtractionError wraps a failure from the vision or extraction-model calls,
// tagged with the pipeline stage that failed ("vision", "extract", "numbers",
// "bracket", "margin"). The workflow records the stage on the statement.
type ExtractionError struct {
	Stage string
	Err   error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed at stage %q: %v", e.Stage, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

func NewExtractionError(stage string, err error) error {
	return &ExtractionError{Stage: stage, Err: err}
}

// ExtractionStage returns the failing stage, or "" when err is not an
// extraction error.
func ExtractionStage(err error) string {
	var ee *ExtractionError
	if errors.As(err, &ee) {
		return ee.Stage
	}
	return ""
}

// PersistenceError wraps a storage write failure caught at the workflow
// boundary.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure in %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func NewPersistenceError(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrorRecordNotFound)
}
