package bundle

import (
	errs "github.com/logflow/bundler/pkg/errors"
)

// Sentinels for errors.Is. Matching is by code, so errors carrying extra
// context still match.
var (
	// ErrInvalidBatchCount means a batch reached the message composer with a
	// non-positive distinct count. It signals a broken invariant upstream.
	ErrInvalidBatchCount = &errs.BundlerError{Code: errs.CodeInvalidBatchCount, Message: "invalid batch count"}

	// ErrEmptyGroup means a group with no events was submitted.
	ErrEmptyGroup = &errs.BundlerError{Code: errs.CodeEmptyGroup, Message: "empty group"}

	// ErrUnsortedGroup means the group's timestamps are not ascending.
	ErrUnsortedGroup = &errs.BundlerError{Code: errs.CodeUnsortedGroup, Message: "group not sorted by timestamp"}

	// ErrInvalidBoundaries means a boundary vector is out of range or decreasing.
	ErrInvalidBoundaries = &errs.BundlerError{Code: errs.CodeValidationFailed, Message: "invalid boundaries"}
)

func invalidBatchCount(count int) error {
	return errs.New(errs.CodeInvalidBatchCount, "invalid batch count").WithContext("count", count)
}

func emptyGroup() *errs.BundlerError {
	return errs.New(errs.CodeEmptyGroup, "empty group")
}

func unsortedGroup(index int, prev, cur int64) *errs.BundlerError {
	return errs.New(errs.CodeUnsortedGroup, "group not sorted by timestamp").
		WithContext("index", index).
		WithContext("previous", prev).
		WithContext("current", cur)
}

func invalidBoundaries(x Boundaries, n int) *errs.BundlerError {
	return errs.New(errs.CodeValidationFailed, "invalid boundaries").
		WithContext("boundaries", x.String()).
		WithContext("events", n)
}
