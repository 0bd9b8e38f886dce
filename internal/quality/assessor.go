// Package quality evaluates recognition output against review heuristics.
// Each fired rule yields a stable issue code; a sheet with any issue is
// flagged for human review.
package quality

import (
	"strings"
	"unicode/utf8"
)

// Issue codes produced by the assessor.
const (
	IssueLowConfidence         = "low_confidence"
	IssueInsufficientText      = "insufficient_text"
	IssueMissingIdentityFields = "missing_identity_fields"
)

// Config holds the assessment thresholds.
type Config struct {
	// MinConfidence is the confidence score below which recognition output
	// is considered unreliable.
	MinConfidence float64

	// MinTextLength is the minimum recognized text length in runes.
	MinTextLength int

	// IdentityKeywords are the labels at least one of which must appear in
	// the text for the sheet to be considered identifiable.
	IdentityKeywords []string
}

// DefaultConfig returns the assessment thresholds used in production.
func DefaultConfig() Config {
	return Config{
		MinConfidence:    70,
		MinTextLength:    50,
		IdentityKeywords: []string{"学号", "姓名", "考号"},
	}
}

// Assessor applies deterministic quality rules to recognition output.
type Assessor struct {
	cfg Config
}

// NewAssessor creates an Assessor with the given config. Zero-valued fields
// fall back to the defaults.
func NewAssessor(cfg Config) *Assessor {
	def := DefaultConfig()
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = def.MinConfidence
	}
	if cfg.MinTextLength <= 0 {
		cfg.MinTextLength = def.MinTextLength
	}
	if len(cfg.IdentityKeywords) == 0 {
		cfg.IdentityKeywords = def.IdentityKeywords
	}
	return &Assessor{cfg: cfg}
}

// Assess evaluates the recognized text and confidence score, returning the
// list of quality-issue codes. An empty list means no review is needed.
// Rules are independent; several can fire for the same sheet.
func (a *Assessor) Assess(text string, confidence float64) []string {
	var issues []string

	if confidence < a.cfg.MinConfidence {
		issues = append(issues, IssueLowConfidence)
	}

	if utf8.RuneCountInString(text) < a.cfg.MinTextLength {
		issues = append(issues, IssueInsufficientText)
	}

	if !a.containsIdentityKeyword(text) {
		issues = append(issues, IssueMissingIdentityFields)
	}

	return issues
}

func (a *Assessor) containsIdentityKeyword(text string) bool {
	for _, kw := range a.cfg.IdentityKeywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
