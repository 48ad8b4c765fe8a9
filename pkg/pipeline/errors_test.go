package pipeline

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "github.com/logflow/bundler/pkg/errors"
)

func TestErrorPolicy_String(t *testing.T) {
	tests := []struct {
		policy   ErrorPolicy
		expected string
	}{
		{ErrorPolicyStrict, "strict"},
		{ErrorPolicySkip, "skip"},
		{ErrorPolicyQuarantine, "quarantine"},
		{ErrorPolicy(99), "unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.policy.String())
	}
}

func TestParseErrorPolicy(t *testing.T) {
	tests := []struct {
		input    string
		expected ErrorPolicy
		wantErr  bool
	}{
		{"strict", ErrorPolicyStrict, false},
		{"skip", ErrorPolicySkip, false},
		{"quarantine", ErrorPolicyQuarantine, false},
		{"", ErrorPolicySkip, false},
		{"ignore", ErrorPolicyStrict, true},
	}

	for _, tt := range tests {
		got, err := ParseErrorPolicy(tt.input)
		if tt.wantErr {
			assert.True(t, errs.IsCode(err, errs.CodeValidationFailed), tt.input)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.expected, got)
	}
}

func TestErrorHandler_Strict(t *testing.T) {
	handler := NewErrorHandler(ErrorPolicyStrict)

	cont, err := handler.HandleError(ErrorRecord{
		Stage:     StageInput,
		RowNumber: 12,
		Message:   "wrong number of fields",
		ErrorType: ErrorTypeMalformedRow,
	})

	assert.False(t, cont)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row=12")
	assert.Equal(t, int64(1), handler.Stats().ErrorCount)
}

func TestErrorHandler_StrictReturnsCause(t *testing.T) {
	handler := NewErrorHandler(ErrorPolicyStrict)
	cause := errs.GroupFailed("u/2017-08-01", errs.New(errs.CodeEmptyGroup, "empty group"))

	cont, err := handler.HandleError(ErrorRecord{Stage: StageBundle, Err: cause})
	assert.False(t, cont)
	assert.Same(t, cause, err)

	recs := handler.Errors()
	require.Len(t, recs, 1)
	assert.Equal(t, ErrorTypeEmptyGroup, recs[0].ErrorType)
	assert.Equal(t, errs.CodeGroupFailed, recs[0].Code)
	assert.NotEmpty(t, recs[0].Message)
	assert.False(t, recs[0].Timestamp.IsZero())
}

func TestErrorHandler_Skip(t *testing.T) {
	handler := NewErrorHandler(ErrorPolicySkip)

	var skipped ErrorRecord
	handler.WithOnSkip(func(rec ErrorRecord) {
		skipped = rec
	})

	cont, err := handler.HandleError(ErrorRecord{
		RowNumber: 42,
		Message:   "column mismatch",
		ErrorType: ErrorTypeMalformedRow,
		Timestamp: time.Now(),
	})

	assert.True(t, cont)
	assert.NoError(t, err)
	assert.Equal(t, int64(42), skipped.RowNumber)
	assert.Equal(t, "column mismatch", skipped.Message)
	assert.Equal(t, int64(1), handler.Stats().SkippedCount)
}

func TestErrorHandler_FatalAbortsUnderSkip(t *testing.T) {
	handler := NewErrorHandler(ErrorPolicySkip)
	fatal := errs.New(errs.CodeInvalidBatchCount, "batch must contain at least one actor")

	cont, err := handler.HandleError(ErrorRecord{Stage: StageBundle, Err: fatal})
	assert.False(t, cont)
	assert.True(t, errors.Is(err, fatal))
}

func TestErrorHandler_Quarantine(t *testing.T) {
	handler := NewErrorHandler(ErrorPolicyQuarantine)

	var quarantined ErrorRecord
	handler.WithQuarantineWriter(func(rec ErrorRecord) error {
		quarantined = rec
		return nil
	})

	cont, err := handler.HandleError(ErrorRecord{
		RowNumber: 99,
		RawData:   "bad,data,here",
		Message:   "parse error",
	})

	assert.True(t, cont)
	assert.NoError(t, err)
	assert.Equal(t, int64(99), quarantined.RowNumber)
	assert.Equal(t, "bad,data,here", quarantined.RawData)
}

func TestErrorHandler_QuarantineWriteFailure(t *testing.T) {
	handler := NewErrorHandler(ErrorPolicyQuarantine).
		WithQuarantineWriter(func(ErrorRecord) error { return errors.New("disk full") })

	cont, err := handler.HandleError(ErrorRecord{Message: "x"})
	assert.True(t, cont)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), handler.Stats().QuarantineFailed)
}

func TestErrorHandler_MaxErrors(t *testing.T) {
	handler := NewErrorHandler(ErrorPolicySkip).WithMaxErrors(3)

	for i := 0; i < 3; i++ {
		cont, err := handler.HandleError(ErrorRecord{RowNumber: int64(i + 1), Message: "error"})
		if i < 2 {
			assert.True(t, cont, "error %d", i)
			assert.NoError(t, err, "error %d", i)
		} else {
			assert.False(t, cont)
			assert.Error(t, err)
		}
	}
}

func TestErrorHandler_CallbackAndReset(t *testing.T) {
	handler := NewErrorHandler(ErrorPolicySkip)

	var calls int
	handler.WithOnError(func(ErrorRecord) { calls++ })

	for i := 0; i < 5; i++ {
		_, _ = handler.HandleError(ErrorRecord{RowNumber: int64(i + 1), Message: "error"})
	}
	assert.Equal(t, 5, calls)
	assert.Len(t, handler.Errors(), 5)

	handler.Reset()
	assert.Empty(t, handler.Errors())
	assert.Equal(t, ErrorStats{Policy: ErrorPolicySkip}, handler.Stats())
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err      error
		expected ErrorType
	}{
		{nil, ErrorTypeUnknown},
		{errs.InvalidTimestamp("x", 1), ErrorTypeInvalidTimestamp},
		{errs.New(errs.CodeUnsortedGroup, "unsorted"), ErrorTypeUnsortedGroup},
		{errs.New(errs.CodeInvalidFormat, "fields"), ErrorTypeMissingColumn},
		{errs.ParseError("csv", 3, errors.New("quote")), ErrorTypeMalformedRow},
		{errors.New("other"), ErrorTypeBundleFailed},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, ClassifyError(tt.err), "%v", tt.err)
	}
}
