package recognition

import (
	"context"
	"encoding/json"
)

// Result is the output of a recognition call over one sheet image.
type Result struct {
	// Text is the free text recognized on the sheet.
	Text string

	// Confidence is the service's confidence in the recognition, 0-100.
	Confidence float64

	// Fields holds structured fields the service itself extracted, keyed by
	// field name (e.g. "student_id"). May be empty.
	Fields map[string]string

	// Raw is the unprocessed service response, kept for diagnostics.
	Raw json.RawMessage
}

// Recognizer defines the boundary to the external recognition service.
// Implementations must honor context cancellation and deadlines: the caller
// always applies a timeout, and a deadline expiry is reported as an ordinary
// recognition error.
type Recognizer interface {
	// Recognize extracts text and structured fields from the sheet image at
	// filePath. Any failure, including a timeout, is returned as an error.
	Recognize(ctx context.Context, filePath string) (*Result, error)
}
