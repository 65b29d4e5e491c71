package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessage(t *testing.T) {
	f := New()

	assert.Equal(t, "Operation timed out", f.New(ErrTimeout).Error())
	assert.Equal(t, "custom", f.WithMessage(ErrTimeout, "custom").Error())
	assert.Equal(t, "Invalid argument provided (port)", f.WithData(ErrInvalidArgument, "port").Error())

	wrapped := f.Wrap(ErrOperationFailed, fmt.Errorf("boom"))
	assert.Equal(t, "Operation failed: boom", wrapped.Error())
}

func TestHasCode(t *testing.T) {
	f := New()
	inner := f.New(ErrTimeout)
	outer := f.Wrap(ErrOperationFailed, fmt.Errorf("context: %w", inner))

	assert.True(t, HasCode(outer, ErrOperationFailed))
	assert.True(t, HasCode(outer, ErrTimeout))
	assert.False(t, HasCode(outer, ErrCanceled))
	assert.False(t, HasCode(nil, ErrTimeout))
	assert.False(t, HasCode(fmt.Errorf("plain"), ErrTimeout))
}

func TestCodeOf(t *testing.T) {
	f := New()

	assert.Equal(t, ErrTimeout, CodeOf(fmt.Errorf("x: %w", f.New(ErrTimeout))))
	assert.Equal(t, ErrorCode(""), CodeOf(fmt.Errorf("plain")))
}

func TestWithDataKeepsCause(t *testing.T) {
	cause := fmt.Errorf("root")
	err := New().Wrap(ErrInternal, cause).WithData(42)

	assert.Equal(t, 42, err.GetData())
	assert.ErrorIs(t, err, cause)
}
