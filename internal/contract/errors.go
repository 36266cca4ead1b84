package contract

import (
	"errors"
	"fmt"
)

// Kind names one category of pipeline failure.
type Kind string

// Error kinds surfaced to the user.
const (
	ConfigurationKind    Kind = "ConfigurationError"
	InsufficientDataKind Kind = "InsufficientDataError"
	AlignmentKind        Kind = "AlignmentError"
	DataSourceKind       Kind = "DataSourceError"
)

// PipelineError is a failure that aborts a run. Every error a stage returns is one of these
// or wraps one of these.
type PipelineError struct {
	kind  Kind
	msg   string
	cause error
}

func (e *PipelineError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.msg)
}

// Unwrap exposes the underlying cause.
func (e *PipelineError) Unwrap() error { return e.cause }

// Kind returns the error category.
func (e *PipelineError) Kind() Kind { return e.kind }

// Message returns the human-readable cause without the kind prefix.
func (e *PipelineError) Message() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.cause)
	}
	return e.msg
}

// Is matches any PipelineError of the same kind, so errors.Is(err, ErrAlignment) works.
func (e *PipelineError) Is(target error) bool {
	var t *PipelineError
	if errors.As(target, &t) {
		return t.kind == e.kind && t.msg == "" && t.cause == nil
	}
	return false
}

// Sentinels for errors.Is checks.
var (
	ErrConfiguration    = &PipelineError{kind: ConfigurationKind}
	ErrInsufficientData = &PipelineError{kind: InsufficientDataKind}
	ErrAlignment        = &PipelineError{kind: AlignmentKind}
	ErrDataSource       = &PipelineError{kind: DataSourceKind}
)

// ConfigurationError reports malformed reference data or settings.
func ConfigurationError(format string, args ...any) error {
	return newPipelineError(ConfigurationKind, nil, format, args...)
}

// InsufficientDataError reports too few matches for the requested projection.
func InsufficientDataError(format string, args ...any) error {
	return newPipelineError(InsufficientDataKind, nil, format, args...)
}

// AlignmentError reports a row-count mismatch between tables that must be joined.
func AlignmentError(format string, args ...any) error {
	return newPipelineError(AlignmentKind, nil, format, args...)
}

// DataSourceError wraps a failure talking to a match source, report sink or store.
func DataSourceError(cause error, format string, args ...any) error {
	return newPipelineError(DataSourceKind, cause, format, args...)
}

// WrapConfiguration wraps a cause as a ConfigurationError.
func WrapConfiguration(cause error, format string, args ...any) error {
	return newPipelineError(ConfigurationKind, cause, format, args...)
}

func newPipelineError(kind Kind, cause error, format string, args ...any) error {
	return &PipelineError{kind: kind, msg: fmt.Sprintf(format, args...), cause: cause}
}

// ErrorKind returns the kind of the first PipelineError in the chain, or "" if there is none.
func ErrorKind(err error) Kind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.kind
	}
	return ""
}
