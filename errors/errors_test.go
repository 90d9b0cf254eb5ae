package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	err := New("test error")
	require.NotNil(t, err)
	assert.Equal(t, "test error", err.Error())
}

func TestNewf(t *testing.T) {
	err := Newf("error: %s %d", "test", 42)
	require.NotNil(t, err)
	assert.Equal(t, "error: test 42", err.Error())
}

func TestWrap(t *testing.T) {
	original := New("original")
	wrapped := Wrap(original, "wrapped")

	assert.Contains(t, wrapped.Error(), "wrapped")
	assert.Contains(t, wrapped.Error(), "original")
	assert.True(t, Is(wrapped, original))
}

func TestWrapf(t *testing.T) {
	original := New("original")
	wrapped := Wrapf(original, "wrapped: %d", 42)

	assert.Contains(t, wrapped.Error(), "wrapped: 42")
	assert.Contains(t, wrapped.Error(), "original")
}

type customError struct {
	msg string
}

func (e *customError) Error() string {
	return e.msg
}

func TestAs(t *testing.T) {
	original := &customError{msg: "custom"}
	wrapped := Wrap(original, "wrapped")

	var target *customError
	require.True(t, As(wrapped, &target))
	assert.Equal(t, "custom", target.msg)
}

func TestSentinels(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		err := NewNotFoundError("plugin %q missing", "codec")
		assert.True(t, IsNotFoundError(err))
		assert.False(t, IsConflictError(err))
		assert.Contains(t, err.Error(), "codec")
	})

	t.Run("conflict", func(t *testing.T) {
		err := NewConflictError("type %s already claimed", "0xAAAA")
		assert.True(t, IsConflictError(err))
		assert.True(t, Is(err, ErrConflict))
	})

	t.Run("invalid request", func(t *testing.T) {
		err := NewInvalidRequestError("nil descriptor")
		assert.True(t, IsInvalidRequestError(err))
	})

	t.Run("wrapped sentinel survives", func(t *testing.T) {
		err := Wrap(Wrap(ErrNotInitialized, "bridge"), "add handler")
		assert.True(t, Is(err, ErrNotInitialized))
	})

	t.Run("nil is nothing", func(t *testing.T) {
		assert.False(t, IsNotFoundError(nil))
		assert.False(t, IsConflictError(nil))
		assert.False(t, IsInvalidRequestError(nil))
	})
}

func TestStackTrace(t *testing.T) {
	err := New("with stack")

	// Format with stack trace
	detailed := fmt.Sprintf("%+v", err)
	assert.Contains(t, detailed, "errors_test.go")
}
