package cattools

import (
	"errors"
	"fmt"
)

// Error type constants for classification and matching
const (
	// ErrorTypeNotFound indicates a record key that does not resolve in the
	// store. Per-record extractors recover from it with sentinel values.
	ErrorTypeNotFound = "not_found"

	// ErrorTypeUnsupportedEngine indicates a record produced by an engine
	// that has no entry in the dispatch table. It is always propagated.
	ErrorTypeUnsupportedEngine = "unsupported_engine"

	// ErrorTypeMissingOutput indicates an expected input or output field is
	// absent from a record.
	ErrorTypeMissingOutput = "missing_output"

	// ErrorTypeInternal is the classification of any other error, such as a
	// store that cannot be reached.
	ErrorTypeInternal = "internal"
)

// Sentinel errors matched with errors.Is.
var (
	ErrNotFound          = errors.New("record not found")
	ErrUnsupportedEngine = errors.New("unsupported engine")
	ErrMissingOutput     = errors.New("missing output")
)

// ExtractionError represents a structured error with classification.
// It supports Go's error wrapping patterns with Unwrap() method
type ExtractionError struct {
	Type    string `json:"type"`
	Key     string `json:"key,omitempty"`
	Cause   string `json:"cause"`
	Details any    `json:"details,omitempty"`
	Wrapped error  `json:"-"`
}

// Error implements the error interface
func (e *ExtractionError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s: %s", e.Type, e.Cause)
	}
	return fmt.Sprintf("%s: record %s: %s", e.Type, e.Key, e.Cause)
}

// Unwrap implements the error unwrapping interface for Go's errors.Is and errors.As
func (e *ExtractionError) Unwrap() error {
	return e.Wrapped
}

// Is reports whether target is the sentinel error for this error's type.
func (e *ExtractionError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Type == ErrorTypeNotFound
	case ErrUnsupportedEngine:
		return e.Type == ErrorTypeUnsupportedEngine
	case ErrMissingOutput:
		return e.Type == ErrorTypeMissingOutput
	}
	return false
}

// NewExtractionError creates a new ExtractionError for the given record key.
func NewExtractionError(errorType, key, cause string) *ExtractionError {
	return &ExtractionError{
		Type:  errorType,
		Key:   key,
		Cause: cause,
	}
}

// NotFoundError returns the error stores use when a key does not resolve.
func NotFoundError(key string) error {
	return NewExtractionError(ErrorTypeNotFound, key, "key does not resolve")
}

// MissingOutputError returns an error naming the absent field path.
func MissingOutputError(key, path string) error {
	return &ExtractionError{
		Type:    ErrorTypeMissingOutput,
		Key:     key,
		Cause:   fmt.Sprintf("%s is absent", path),
		Details: path,
	}
}

// UnsupportedEngineError is returned by the engine dispatcher for a record
// whose engine label has no registered handler.
type UnsupportedEngineError struct {
	Label string
	Key   string
}

func (e *UnsupportedEngineError) Error() string {
	return fmt.Sprintf("%s: engine %q is not implemented for record %s",
		ErrorTypeUnsupportedEngine, e.Label, e.Key)
}

func (e *UnsupportedEngineError) Is(target error) bool {
	return target == ErrUnsupportedEngine
}

// ClassifyError attempts to classify a regular error into an ExtractionError
func ClassifyError(err error) *ExtractionError {
	var extractionError *ExtractionError
	if errors.As(err, &extractionError) {
		return extractionError
	}
	var engineError *UnsupportedEngineError
	if errors.As(err, &engineError) {
		return &ExtractionError{
			Type:    ErrorTypeUnsupportedEngine,
			Key:     engineError.Key,
			Cause:   err.Error(),
			Details: engineError.Label,
			Wrapped: err,
		}
	}
	errorType := ErrorTypeInternal
	switch {
	case errors.Is(err, ErrNotFound):
		errorType = ErrorTypeNotFound
	case errors.Is(err, ErrUnsupportedEngine):
		errorType = ErrorTypeUnsupportedEngine
	case errors.Is(err, ErrMissingOutput):
		errorType = ErrorTypeMissingOutput
	}
	return &ExtractionError{
		Type:    errorType,
		Cause:   err.Error(),
		Wrapped: err,
	}
}

// MatchesErrorType checks if an error matches a specified error type
func MatchesErrorType(err error, errorType string) bool {
	if err == nil {
		return false
	}
	return ClassifyError(err).Type == errorType
}
