package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"google.golang.org/genai"

	"github.com/aveledo/examflow/internal/config"
	"github.com/aveledo/examflow/internal/domain"
	"github.com/aveledo/examflow/internal/grading"
)

const gradingPromptTemplate = `You are grading a student's exam answer sheet.
Below is the full text recognized from the scanned sheet. Score the answers.

Respond with a single JSON object and nothing else, using this exact shape:
{
  "score": <number, points awarded>,
  "max_score": <number, maximum attainable points>,
  "comments": "<short feedback for the student>"
}

Recognized sheet text:
%s`

type gradingResponse struct {
	Score    float64 `json:"score"`
	MaxScore float64 `json:"max_score"`
	Comments string  `json:"comments"`
}

// GeminiGrader implements the grading.Grader interface using Google's Gemini
// API to score recognized answer sheets.
type GeminiGrader struct {
	logger *slog.Logger
	client *genai.Client
	model  string
}

// NewGeminiGrader creates a GeminiGrader. The recognition config supplies the
// API credentials; the grading config supplies the model name, so grading can
// run on a different model than recognition.
func NewGeminiGrader(
	ctx context.Context,
	logger *slog.Logger,
	recognitionCfg config.RecognitionConfig,
	gradingCfg config.GradingConfig,
) (*GeminiGrader, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if gradingCfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", grading.ErrInvalidConfig)
	}

	client, err := newClient(ctx, recognitionCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", grading.ErrInvalidConfig, err)
	}

	return &GeminiGrader{
		logger: logger.With(slog.String("component", "gemini_grader")),
		client: client,
		model:  gradingCfg.ModelName,
	}, nil
}

// Ensure GeminiGrader implements grading.Grader
var _ grading.Grader = (*GeminiGrader)(nil)

// Grade implements grading.Grader.Grade. Each call is a single attempt; the
// task layer owns the retry policy.
func (g *GeminiGrader) Grade(ctx context.Context, sheet *domain.Sheet) (*domain.GradingOutcome, error) {
	if sheet == nil {
		return nil, fmt.Errorf("%w: sheet is nil", grading.ErrGradingFailed)
	}
	if sheet.RecognizedText == "" {
		return nil, fmt.Errorf("%w: sheet has no recognized text", grading.ErrGradingFailed)
	}

	g.logger.DebugContext(ctx, "calling grading service",
		slog.String("sheet_id", sheet.ID.String()),
		slog.String("model", g.model))

	prompt := fmt.Sprintf(gradingPromptTemplate, sheet.RecognizedText)
	parts := []*genai.Part{genai.NewPartFromText(prompt)}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", grading.ErrGradingFailed, err)
	}

	raw := resp.Text()
	if raw == "" {
		return nil, fmt.Errorf("%w: empty response", grading.ErrInvalidResponse)
	}

	var parsed gradingResponse
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &parsed); err != nil {
		return nil, fmt.Errorf("%w: failed to parse JSON response: %v",
			grading.ErrInvalidResponse, err)
	}

	if parsed.MaxScore <= 0 || parsed.Score < 0 || parsed.Score > parsed.MaxScore {
		return nil, fmt.Errorf("%w: implausible score %.2f/%.2f",
			grading.ErrInvalidResponse, parsed.Score, parsed.MaxScore)
	}

	g.logger.InfoContext(ctx, "sheet graded",
		slog.String("sheet_id", sheet.ID.String()),
		slog.Float64("score", parsed.Score),
		slog.Float64("max_score", parsed.MaxScore))

	return &domain.GradingOutcome{
		Score:    parsed.Score,
		MaxScore: parsed.MaxScore,
		Comments: parsed.Comments,
	}, nil
}
