package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBundlerError_Error(t *testing.T) {
	err := New(CodeEmptyGroup, "empty group").
		WithContext("user", "u1").
		WithContext("day", "2017-08-01")

	assert.Equal(t, "[E602] empty group (day=2017-08-01, user=u1)", err.Error())
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, CodeWriteFailed, "write"))

	cause := errors.New("disk full")
	err := Wrap(cause, CodeWriteFailed, "write failed")
	require.NotNil(t, err)
	assert.Equal(t, "[E301] write failed: disk full", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.NotEmpty(t, err.StackTrace)
}

func TestIsCode_Chain(t *testing.T) {
	inner := New(CodeInvalidBatchCount, "bad count")
	outer := GroupFailed("u1/2017-08-01", inner)
	wrapped := fmt.Errorf("runner: %w", outer)

	assert.True(t, IsCode(wrapped, CodeGroupFailed))
	assert.True(t, IsCode(wrapped, CodeInvalidBatchCount))
	assert.False(t, IsCode(wrapped, CodeEmptyGroup))
	assert.Equal(t, CodeGroupFailed, GetCode(wrapped))
	assert.True(t, IsFatal(wrapped))
	assert.Equal(t, CodeUnknown, GetCode(errors.New("plain")))
}

func TestIs_MatchesByCode(t *testing.T) {
	sentinel := &BundlerError{Code: CodeUnsortedGroup}
	err := New(CodeUnsortedGroup, "out of order").WithContext("index", 3)
	assert.True(t, errors.Is(err, sentinel))
	assert.False(t, errors.Is(err, &BundlerError{Code: CodeEmptyGroup}))
}

func TestMultiError(t *testing.T) {
	var m MultiError
	assert.NoError(t, m.Combined())

	m.Add(nil)
	assert.False(t, m.HasErrors())

	first := errors.New("first")
	m.Add(first)
	assert.Equal(t, first, m.Combined())

	m.Add(errors.New("second"))
	assert.Equal(t, "2 errors occurred:\n  1. first\n  2. second\n", m.Combined().Error())
}
