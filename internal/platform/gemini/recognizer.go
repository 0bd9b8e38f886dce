package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"google.golang.org/genai"

	"github.com/aveledo/examflow/internal/config"
	"github.com/aveledo/examflow/internal/recognition"
)

// recognitionPrompt instructs the model to return strictly structured JSON.
const recognitionPrompt = `You are an OCR service for scanned exam answer sheets.
Extract all visible text from the attached image, preserving the reading order.
Also extract the student identity fields if they are present.

Respond with a single JSON object and nothing else, using this exact shape:
{
  "text": "<all recognized text>",
  "confidence": <number 0-100, your overall confidence in the transcription>,
  "fields": {
    "student_id": "<student or exam number, empty if absent>",
    "student_name": "<student name, empty if absent>",
    "class_name": "<class name, empty if absent>"
  }
}`

// recognitionResponse is the JSON shape the model is asked to produce.
type recognitionResponse struct {
	Text       string            `json:"text"`
	Confidence float64           `json:"confidence"`
	Fields     map[string]string `json:"fields"`
}

// GeminiRecognizer implements the recognition.Recognizer interface using
// Google's Gemini API to transcribe scanned answer sheets.
type GeminiRecognizer struct {
	logger *slog.Logger
	client *genai.Client
	model  string
}

// NewGeminiRecognizer creates a GeminiRecognizer from the recognition
// configuration. The API key and model name must be set.
func NewGeminiRecognizer(
	ctx context.Context,
	logger *slog.Logger,
	cfg config.RecognitionConfig,
) (*GeminiRecognizer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", recognition.ErrInvalidConfig)
	}

	client, err := newClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &GeminiRecognizer{
		logger: logger.With(slog.String("component", "gemini_recognizer")),
		client: client,
		model:  cfg.ModelName,
	}, nil
}

// Ensure GeminiRecognizer implements recognition.Recognizer
var _ recognition.Recognizer = (*GeminiRecognizer)(nil)

// Recognize implements recognition.Recognizer.Recognize. It uploads the sheet
// image inline with the prompt and parses the structured JSON the model
// returns. The caller controls the deadline through ctx.
func (r *GeminiRecognizer) Recognize(ctx context.Context, filePath string) (*recognition.Result, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", recognition.ErrUnreadableFile, err)
	}

	r.logger.DebugContext(ctx, "calling recognition service",
		slog.String("file", filePath),
		slog.Int("bytes", len(data)),
		slog.String("model", r.model))

	parts := []*genai.Part{
		genai.NewPartFromBytes(data, mimeTypeFor(filepath.Ext(filePath))),
		genai.NewPartFromText(recognitionPrompt),
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := r.client.Models.GenerateContent(ctx, r.model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", recognition.ErrRecognitionFailed, err)
	}

	raw := resp.Text()
	if raw == "" {
		return nil, fmt.Errorf("%w: empty response", recognition.ErrInvalidResponse)
	}

	var parsed recognitionResponse
	cleaned := stripCodeFence(raw)
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return nil, fmt.Errorf("%w: failed to parse JSON response: %v",
			recognition.ErrInvalidResponse, err)
	}

	if parsed.Confidence < 0 || parsed.Confidence > 100 {
		return nil, fmt.Errorf("%w: confidence %.2f out of range",
			recognition.ErrInvalidResponse, parsed.Confidence)
	}

	r.logger.DebugContext(ctx, "recognition call succeeded",
		slog.String("file", filePath),
		slog.Float64("confidence", parsed.Confidence),
		slog.Int("text_length", len(parsed.Text)))

	return &recognition.Result{
		Text:       parsed.Text,
		Confidence: parsed.Confidence,
		Fields:     parsed.Fields,
		Raw:        json.RawMessage(cleaned),
	}, nil
}
