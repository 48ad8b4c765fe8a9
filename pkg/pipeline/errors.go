// Package pipeline runs the bundler over grouped input and applies error policies.
package pipeline

import (
	"fmt"
	"sync"
	"time"

	"github.com/logflow/bundler/internal/model"
	errs "github.com/logflow/bundler/pkg/errors"
	"github.com/logflow/bundler/pkg/metrics"
)

// ErrorPolicy determines how row and group failures are handled.
type ErrorPolicy int

const (
	// ErrorPolicyStrict aborts on first error.
	ErrorPolicyStrict ErrorPolicy = iota
	// ErrorPolicySkip logs and drops the failing row or group.
	ErrorPolicySkip
	// ErrorPolicyQuarantine drops the failure and writes it to a quarantine file.
	ErrorPolicyQuarantine
)

func (p ErrorPolicy) String() string {
	switch p {
	case ErrorPolicyStrict:
		return "strict"
	case ErrorPolicySkip:
		return "skip"
	case ErrorPolicyQuarantine:
		return "quarantine"
	default:
		return "unknown"
	}
}

// ParseErrorPolicy parses a policy name.
func ParseErrorPolicy(s string) (ErrorPolicy, error) {
	switch s {
	case "strict":
		return ErrorPolicyStrict, nil
	case "skip", "":
		return ErrorPolicySkip, nil
	case "quarantine":
		return ErrorPolicyQuarantine, nil
	default:
		return ErrorPolicyStrict, errs.New(errs.CodeValidationFailed, "unknown error policy").
			WithContext("policy", s)
	}
}

// Stage tells where a failure happened.
type Stage string

const (
	StageInput  Stage = "input"
	StageBundle Stage = "bundle"
)

// ErrorRecord represents a single row or group failure with context.
type ErrorRecord struct {
	Stage Stage `json:"stage"`
	// RowNumber is the 1-based input row for input failures.
	RowNumber int64 `json:"row,omitempty"`
	// Group is the user/day key for bundle failures.
	Group string `json:"group,omitempty"`
	// RawData holds the offending input row.
	RawData string `json:"raw,omitempty"`
	// Events holds the events of a failed group.
	Events    []model.Event `json:"events,omitempty"`
	ErrorType ErrorType     `json:"type"`
	Code      errs.Code     `json:"code"`
	Message   string        `json:"message"`
	Timestamp time.Time     `json:"timestamp"`
	Source    string        `json:"source,omitempty"`

	Err error `json:"-"`
}

// ErrorType categorizes failures.
type ErrorType int

const (
	ErrorTypeUnknown ErrorType = iota
	ErrorTypeMalformedRow
	ErrorTypeMissingColumn
	ErrorTypeInvalidTimestamp
	ErrorTypeEmptyGroup
	ErrorTypeUnsortedGroup
	ErrorTypeBundleFailed
)

func (t ErrorType) String() string {
	switch t {
	case ErrorTypeMalformedRow:
		return "malformed_row"
	case ErrorTypeMissingColumn:
		return "missing_column"
	case ErrorTypeInvalidTimestamp:
		return "invalid_timestamp"
	case ErrorTypeEmptyGroup:
		return "empty_group"
	case ErrorTypeUnsortedGroup:
		return "unsorted_group"
	case ErrorTypeBundleFailed:
		return "bundle_failed"
	default:
		return "unknown"
	}
}

// MarshalText renders the type by name in quarantine files.
func (t ErrorType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// ClassifyError maps an error code to an ErrorType.
func ClassifyError(err error) ErrorType {
	switch {
	case errs.IsCode(err, errs.CodeInvalidTimestamp):
		return ErrorTypeInvalidTimestamp
	case errs.IsCode(err, errs.CodeEmptyGroup):
		return ErrorTypeEmptyGroup
	case errs.IsCode(err, errs.CodeUnsortedGroup):
		return ErrorTypeUnsortedGroup
	case errs.IsCode(err, errs.CodeInvalidFormat):
		return ErrorTypeMissingColumn
	case errs.IsCode(err, errs.CodeParseFailed):
		return ErrorTypeMalformedRow
	case err != nil:
		return ErrorTypeBundleFailed
	default:
		return ErrorTypeUnknown
	}
}

// ErrorHandler manages error collection and callbacks.
type ErrorHandler struct {
	mu sync.Mutex

	policy       ErrorPolicy
	maxErrors    int64 // 0 = unlimited
	errorCount   int64
	skippedCount int64
	lostCount    int64

	errors    []ErrorRecord
	maxStored int

	onError func(ErrorRecord)
	onSkip  func(rec ErrorRecord)

	quarantineWriter func(ErrorRecord) error
}

// NewErrorHandler creates a new error handler with the given policy.
func NewErrorHandler(policy ErrorPolicy) *ErrorHandler {
	return &ErrorHandler{
		policy:    policy,
		maxStored: 1000,
		errors:    make([]ErrorRecord, 0, 16),
	}
}

// WithMaxErrors sets the maximum number of errors before aborting.
func (h *ErrorHandler) WithMaxErrors(max int64) *ErrorHandler {
	h.maxErrors = max
	return h
}

// WithOnError sets a callback for each error.
func (h *ErrorHandler) WithOnError(fn func(ErrorRecord)) *ErrorHandler {
	h.onError = fn
	return h
}

// WithOnSkip sets a callback for dropped rows and groups.
func (h *ErrorHandler) WithOnSkip(fn func(rec ErrorRecord)) *ErrorHandler {
	h.onSkip = fn
	return h
}

// WithQuarantineWriter sets a writer for quarantined records.
func (h *ErrorHandler) WithQuarantineWriter(fn func(ErrorRecord) error) *ErrorHandler {
	h.quarantineWriter = fn
	return h
}

// Policy returns the configured policy.
func (h *ErrorHandler) Policy() ErrorPolicy {
	return h.policy
}

// HandleError processes a failure according to the policy.
// Fatal errors abort under every policy.
func (h *ErrorHandler) HandleError(rec ErrorRecord) (continueProcessing bool, returnErr error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.errorCount++
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	if rec.Err != nil {
		if rec.Code == "" {
			rec.Code = errs.GetCode(rec.Err)
		}
		if rec.Message == "" {
			rec.Message = rec.Err.Error()
		}
		if rec.ErrorType == ErrorTypeUnknown {
			rec.ErrorType = ClassifyError(rec.Err)
		}
	}

	metrics.ErrorsTotal.WithLabelValues(string(rec.Stage), rec.ErrorType.String()).Inc()

	if len(h.errors) < h.maxStored {
		h.errors = append(h.errors, rec)
	}

	if h.onError != nil {
		h.onError(rec)
	}

	if errs.IsFatal(rec.Err) {
		return false, rec.Err
	}

	if h.maxErrors > 0 && h.errorCount >= h.maxErrors {
		return false, errs.New(errs.CodeValidationFailed, fmt.Sprintf("maximum error count (%d) exceeded", h.maxErrors)).
			WithContext("last", rec.Message)
	}

	switch h.policy {
	case ErrorPolicyStrict:
		return false, h.abortError(rec)

	case ErrorPolicySkip:
		h.skippedCount++
		if h.onSkip != nil {
			h.onSkip(rec)
		}
		return true, nil

	case ErrorPolicyQuarantine:
		h.skippedCount++
		if h.quarantineWriter != nil {
			if err := h.quarantineWriter(rec); err != nil {
				h.lostCount++
			}
		}
		if h.onSkip != nil {
			h.onSkip(rec)
		}
		return true, nil

	default:
		return false, errs.New(errs.CodeValidationFailed, "unknown error policy")
	}
}

func (h *ErrorHandler) abortError(rec ErrorRecord) error {
	if rec.Err != nil {
		return rec.Err
	}
	e := errs.New(errs.CodeParseFailed, rec.Message)
	if rec.RowNumber > 0 {
		e = e.WithContext("row", rec.RowNumber)
	}
	if rec.Group != "" {
		e = e.WithContext("group", rec.Group)
	}
	return e
}

// Stats returns error statistics.
func (h *ErrorHandler) Stats() ErrorStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	return ErrorStats{
		ErrorCount:       h.errorCount,
		SkippedCount:     h.skippedCount,
		QuarantineFailed: h.lostCount,
		Policy:           h.policy,
	}
}

// Errors returns collected errors.
func (h *ErrorHandler) Errors() []ErrorRecord {
	h.mu.Lock()
	defer h.mu.Unlock()

	result := make([]ErrorRecord, len(h.errors))
	copy(result, h.errors)
	return result
}

// Reset clears all collected errors.
func (h *ErrorHandler) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.errorCount = 0
	h.skippedCount = 0
	h.lostCount = 0
	h.errors = h.errors[:0]
}

// ErrorStats contains error processing statistics.
type ErrorStats struct {
	ErrorCount       int64
	SkippedCount     int64
	QuarantineFailed int64
	Policy           ErrorPolicy
}
