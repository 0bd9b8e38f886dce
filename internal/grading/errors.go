package grading

import "errors"

// Common errors returned by grading implementations
var (
	// ErrGradingFailed is returned when grading fails for any general reason.
	ErrGradingFailed = errors.New("failed to grade sheet")

	// ErrInvalidResponse is returned when the grading service response
	// cannot be parsed or is malformed.
	ErrInvalidResponse = errors.New("invalid response from grading service")

	// ErrInvalidConfig is returned when the grader configuration is invalid.
	ErrInvalidConfig = errors.New("invalid grader configuration")
)
