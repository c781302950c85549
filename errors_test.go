package cattools

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractionErrorWrapping(t *testing.T) {
	err := NewExtractionError(ErrorTypeMissingOutput, "rec_1", "misc is absent")
	require.Equal(t, "missing_output: record rec_1: misc is absent", err.Error())
	require.Nil(t, err.Unwrap())
	require.True(t, errors.Is(err, ErrMissingOutput))
	require.False(t, errors.Is(err, ErrNotFound))

	original := errors.New("connection reset")
	wrapped := &ExtractionError{
		Type:    ErrorTypeInternal,
		Cause:   original.Error(),
		Wrapped: original,
	}
	require.Equal(t, "internal: connection reset", wrapped.Error())
	require.True(t, errors.Is(wrapped, original))

	var eErr *ExtractionError
	require.True(t, errors.As(fmt.Errorf("load: %w", wrapped), &eErr))
	require.Equal(t, ErrorTypeInternal, eErr.Type)
}

func TestNotFoundError(t *testing.T) {
	err := fmt.Errorf("file store: %w", NotFoundError("rec_9"))
	require.True(t, errors.Is(err, ErrNotFound))
	require.True(t, MatchesErrorType(err, ErrorTypeNotFound))
	require.Contains(t, err.Error(), "rec_9")
}

func TestUnsupportedEngineError(t *testing.T) {
	err := error(&UnsupportedEngineError{Label: "PhononEngine", Key: "rec_3"})
	require.True(t, errors.Is(err, ErrUnsupportedEngine))
	require.Contains(t, err.Error(), "PhononEngine")
	require.Contains(t, err.Error(), "rec_3")

	classified := ClassifyError(fmt.Errorf("output: %w", err))
	require.Equal(t, ErrorTypeUnsupportedEngine, classified.Type)
	require.Equal(t, "rec_3", classified.Key)
	require.Equal(t, "PhononEngine", classified.Details)
}

func TestErrorClassification(t *testing.T) {
	classified := ClassifyError(context.DeadlineExceeded)
	require.Equal(t, ErrorTypeInternal, classified.Type)
	require.True(t, errors.Is(classified, context.DeadlineExceeded))

	missing := MissingOutputError("rec_2", "outputs.misc")
	require.Equal(t, missing, ClassifyError(missing))
	require.True(t, MatchesErrorType(missing, ErrorTypeMissingOutput))
	require.False(t, MatchesErrorType(nil, ErrorTypeMissingOutput))

	require.Equal(t, ErrorTypeNotFound, ClassifyError(fmt.Errorf("x: %w", ErrNotFound)).Type)
}
