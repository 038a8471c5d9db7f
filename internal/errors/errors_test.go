package errors_test

import (
	stderrors "errors"
	"testing"

	"codeberg.org/mutker/capturectl/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactoryNew(t *testing.T) {
	err := errors.New().New(errors.ErrNotRunning)
	assert.Equal(t, errors.ErrNotRunning, err.Code())
	assert.Equal(t, "Start capture before recording", err.Error(), "Expected the canonical message for the code")
}

func TestFactoryWrapPreservesCause(t *testing.T) {
	cause := stderrors.New("disk full")
	err := errors.New().Wrap(errors.ErrWriterFailed, cause)

	assert.Equal(t, errors.ErrWriterFailed, err.Code())
	assert.Contains(t, err.Error(), "disk full", "Expected the cause in the message")
	assert.True(t, errors.Is(err, cause), "Expected the cause reachable through the wrap chain")
}

func TestWithData(t *testing.T) {
	err := errors.New().WithData(errors.ErrInvalidParameter, 144)
	assert.Contains(t, err.Error(), "144", "Expected the data rendered into the message")
	assert.Equal(t, 144, err.GetData())
}

func TestCodeOf(t *testing.T) {
	require.Equal(t, errors.ErrNotRunning, errors.CodeOf(errors.New().New(errors.ErrNotRunning)))

	// The code survives further wrapping by callers.
	inner := errors.New().New(errors.ErrPermissionDenied)
	outer := errors.New().Wrap(errors.ErrInternal, inner)
	assert.Equal(t, errors.ErrInternal, errors.CodeOf(outer), "Expected the outermost code to win")

	// Plain errors fall back to the internal code.
	assert.Equal(t, errors.ErrInternal, errors.CodeOf(stderrors.New("plain")), "Expected a fallback code for uncoded errors")
}
