package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"time"

	"pixelsense/internal/imaging"
	"pixelsense/internal/logging"

	"google.golang.org/genai"
)

// GeminiConfig configures the Gemini-backed vision client.
type GeminiConfig struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

// GeminiClient implements Client and OCRClient over the Gemini API.
type GeminiClient struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGeminiClient creates the Gemini vision client.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiClient{client: client, model: model, timeout: timeout}, nil
}

// Analyze sends the image plus the structured prompt and parses the JSON
// caption envelope out of the response.
func (g *GeminiClient) Analyze(ctx context.Context, imagePath string, prompt string) (*AnalyzeResult, error) {
	timer := logging.StartTimer(logging.CategoryVision, "Gemini.Analyze")
	defer timer.Stop()

	data, mime, err := readImagePayload(imagePath)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(data, mime),
			genai.NewPartFromText(prompt),
		}, genai.RoleUser),
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("gemini generate failed: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	caption := parseCaptionEnvelope(text)
	logging.Get(logging.CategoryVision).Debug("gemini caption: %q", caption)
	return &AnalyzeResult{
		Success: caption != "",
		Caption: caption,
		Model:   g.model,
	}, nil
}

// ExtractText OCRs the image (or the selected animation frames) by asking
// the model for verbatim text only.
func (g *GeminiClient) ExtractText(ctx context.Context, imagePath string, frameIndices []int) (string, error) {
	timer := logging.StartTimer(logging.CategoryVision, "Gemini.ExtractText")
	defer timer.Stop()

	const ocrPrompt = "Extract all visible text from this image verbatim. Return only the text, no commentary. Return an empty response if there is no text."

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	parts, err := imageParts(imagePath, frameIndices)
	if err != nil {
		return "", err
	}
	parts = append(parts, genai.NewPartFromText(ocrPrompt))

	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("gemini ocr failed: %w", err)
	}
	return strings.TrimSpace(resp.Text()), nil
}

// imageParts builds the request payload: the file as-is for stills, or the
// selected frames re-encoded as PNG for animations.
func imageParts(imagePath string, frameIndices []int) ([]*genai.Part, error) {
	if len(frameIndices) == 0 {
		data, mime, err := readImagePayload(imagePath)
		if err != nil {
			return nil, err
		}
		return []*genai.Part{genai.NewPartFromBytes(data, mime)}, nil
	}

	img, err := imaging.Decode(imagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s for frame extraction: %w", imagePath, err)
	}
	var parts []*genai.Part
	for _, idx := range frameIndices {
		if idx < 0 || idx >= img.FrameCount() {
			continue
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img.Frames[idx]); err != nil {
			return nil, fmt.Errorf("failed to encode frame %d: %w", idx, err)
		}
		parts = append(parts, genai.NewPartFromBytes(buf.Bytes(), "image/png"))
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("no valid frames among %v", frameIndices)
	}
	return parts, nil
}

func readImagePayload(imagePath string) ([]byte, string, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image: %w", err)
	}
	mime := "image/png"
	switch strings.ToLower(filepath.Ext(imagePath)) {
	case ".jpg", ".jpeg":
		mime = "image/jpeg"
	case ".gif":
		mime = "image/gif"
	case ".webp":
		mime = "image/webp"
	case ".bmp":
		mime = "image/bmp"
	}
	return data, mime, nil
}

// parseCaptionEnvelope pulls the caption out of the requested JSON format,
// tolerating code fences and falling back to the raw text.
func parseCaptionEnvelope(text string) string {
	trimmed := strings.TrimSpace(text)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var envelope struct {
		Caption string `json:"caption"`
	}
	if err := json.Unmarshal([]byte(trimmed), &envelope); err == nil && envelope.Caption != "" {
		return strings.TrimSpace(envelope.Caption)
	}
	return trimmed
}
