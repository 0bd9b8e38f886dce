package domain

// GradingOutcome is the result of running the grading computation over a
// sheet's recognized answers.
type GradingOutcome struct {
	Score    float64 `json:"score"`
	MaxScore float64 `json:"max_score"`
	Comments string  `json:"comments,omitempty"`
}
