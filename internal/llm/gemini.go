package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/antoinelm/listful/internal/provider"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

const geminiModel = "gemini-3-flash-preview"

// Gemini pricing (per million tokens)
const (
	geminiInputPricePerMillion  = 0.50
	geminiOutputPricePerMillion = 3.00
)

// maxImagesPerDetect bounds how many photos are sent to the vision model.
const maxImagesPerDetect = 5

const brandHint = "Apple, Dell, HP, Lenovo, ASUS, Acer, MSI, LG, Samsung, BenQ, Philips, ViewSonic, Sony, " +
	"NVIDIA, AMD, Canon, Nikon, PlayStation, Xbox, Nintendo, Nike, Adidas, Puma, New Balance"

const detectSystemPrompt = `Tu es un extracteur francophone STRICT. Réponds UNIQUEMENT avec un JSON minifié.
Schéma: {"label":string|null,"brand":string|null,"model":string|null,"color":string|null,"category":string|null,"attributes":string[],"confidence":number}
Règles:
- Privilégie un label spécifique: brand + model + type.
- Déduis brand/model si probables.
- Si incertain, mets confidence<0.6 et certains champs à null.
- confidence [0..1].
- Pas de texte hors JSON.`

// Client talks to the Gemini API for both vision identification and
// listing-copy generation. It uses the GEMINI_API_KEY environment variable
// for authentication.
type Client struct {
	client *genai.Client
}

// NewClient creates a Gemini-backed client.
func NewClient(ctx context.Context) (*Client, error) {
	c, err := genai.NewClient(ctx, &genai.ClientConfig{})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &Client{client: c}, nil
}

// Detect implements provider.VisionClient. With empty hints this is the
// first identification pass; with OCR text or a prior label it is the
// refinement pass.
func (c *Client) Detect(ctx context.Context, images [][]byte, hints provider.Hints) (provider.Identification, error) {
	if len(images) == 0 {
		return provider.Identification{}, &provider.Error{Provider: "gemini-vision", Err: fmt.Errorf("no images provided")}
	}
	if len(images) > maxImagesPerDetect {
		images = images[:maxImagesPerDetect]
	}

	var sb strings.Builder
	sb.WriteString("Identifie le produit et remplis le JSON.\n")
	if hints.PriorLabel != "" {
		fmt.Fprintf(&sb, "Label précédent: %s\n", hints.PriorLabel)
	}
	if hints.OCRText != "" {
		ocr := provider.ClampBytes(hints.OCRText, 2000)
		fmt.Fprintf(&sb, "Indices OCR: %s\n", ocr)
	}
	fmt.Fprintf(&sb, "Marques possibles: %s", brandHint)

	parts := []*genai.Part{
		genai.NewPartFromText(detectSystemPrompt),
		genai.NewPartFromText(sb.String()),
	}
	for _, img := range images {
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{Data: img, MIMEType: "image/jpeg"},
		})
	}

	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}

	result, err := c.client.Models.GenerateContent(ctx, geminiModel, contents, nil)
	if err != nil {
		return provider.Identification{}, &provider.Error{Provider: "gemini-vision", Err: err}
	}
	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return provider.Identification{}, &provider.Error{Provider: "gemini-vision", Err: fmt.Errorf("empty response")}
	}

	id, err := parseIdentification(result.Text())
	if err != nil {
		return provider.Identification{}, &provider.Error{Provider: "gemini-vision", Err: err}
	}

	logUsage(result, "vision detect", len(images))

	return provider.Sanitize(id), nil
}

// WriteListing implements provider.TextModel. The prompt pair comes from the
// listing package; this only runs the model and parses the strict JSON
// response.
func (c *Client) WriteListing(ctx context.Context, system, user string) (provider.ListingText, error) {
	parts := []*genai.Part{
		genai.NewPartFromText(system),
		genai.NewPartFromText(user),
	}
	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}

	result, err := c.client.Models.GenerateContent(ctx, geminiModel, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return provider.ListingText{}, &provider.Error{Provider: "gemini-text", Err: err}
	}
	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return provider.ListingText{}, &provider.Error{Provider: "gemini-text", Err: fmt.Errorf("empty response")}
	}

	text := extractJSONObject(result.Text())
	var out provider.ListingText
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return provider.ListingText{}, &provider.Error{Provider: "gemini-text", Err: fmt.Errorf("failed to parse response JSON: %w (response: %s)", err, text)}
	}

	logUsage(result, "listing copy", 0)

	return out, nil
}

func logUsage(result *genai.GenerateContentResponse, op string, imageCount int) {
	if result.UsageMetadata == nil {
		return
	}
	in := int64(result.UsageMetadata.PromptTokenCount)
	out := int64(result.UsageMetadata.CandidatesTokenCount)
	log.Info().
		Str("model", geminiModel).
		Str("op", op).
		Int("imageCount", imageCount).
		Int64("inputTokens", in).
		Int64("outputTokens", out).
		Float64("costUSD", calculateGeminiCost(in, out)).
		Msg("gemini llm call")
}

func calculateGeminiCost(inputTokens, outputTokens int64) float64 {
	inputCost := float64(inputTokens) / 1_000_000 * geminiInputPricePerMillion
	outputCost := float64(outputTokens) / 1_000_000 * geminiOutputPricePerMillion
	return inputCost + outputCost
}

// extractJSONObject pulls the first {...} object out of a model response,
// tolerating markdown fences and chatty preambles.
func extractJSONObject(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end <= start {
		return text
	}
	return text[start : end+1]
}

func parseIdentification(text string) (provider.Identification, error) {
	text = extractJSONObject(text)

	// The model answers with null for unknown fields; pointers absorb them
	// so an explicit null and a missing key both map to the empty string.
	var raw struct {
		Label      *string  `json:"label"`
		Brand      *string  `json:"brand"`
		Model      *string  `json:"model"`
		Color      *string  `json:"color"`
		Category   *string  `json:"category"`
		Attributes []string `json:"attributes"`
		Confidence float64  `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return provider.Identification{}, fmt.Errorf("failed to parse response JSON: %w (response: %s)", err, text)
	}

	deref := func(s *string) string {
		if s == nil {
			return ""
		}
		return strings.TrimSpace(*s)
	}

	return provider.Identification{
		Label:      deref(raw.Label),
		Brand:      deref(raw.Brand),
		Model:      deref(raw.Model),
		Color:      deref(raw.Color),
		Category:   deref(raw.Category),
		Attributes: raw.Attributes,
		Confidence: raw.Confidence,
	}, nil
}
