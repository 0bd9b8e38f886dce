package recognition

import "errors"

// Common errors returned by the recognition package
var (
	// ErrRecognitionFailed is returned when recognition fails for any general reason.
	ErrRecognitionFailed = errors.New("failed to recognize sheet content")

	// ErrInvalidResponse is returned when the service response cannot be parsed.
	ErrInvalidResponse = errors.New("invalid response from recognition service")

	// ErrInvalidConfig is returned when the recognizer configuration is invalid.
	ErrInvalidConfig = errors.New("invalid recognizer configuration")

	// ErrUnreadableFile is returned when the sheet image cannot be read.
	ErrUnreadableFile = errors.New("cannot read sheet image")
)
