package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const DefaultModel = "gemini-2.5-flash"

// GeminiConfig configures both Gemini-backed components.
type GeminiConfig struct {
	APIKey      string
	Model       string
	Temperature float32
}

func (c GeminiConfig) model() string {
	if c.Model == "" {
		return DefaultModel
	}
	return c.Model
}

// GeminiProvider implements ItineraryPlanner using Google's Gemini models.
type GeminiProvider struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGeminiProvider initializes a Gemini client configured for schema-constrained JSON output.
func NewGeminiProvider(ctx context.Context, cfg GeminiConfig) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(cfg.model())
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = itinerarySchema()
	if cfg.Temperature > 0 {
		model.SetTemperature(cfg.Temperature)
	}

	return &GeminiProvider{
		client: client,
		model:  model,
	}, nil
}

// Close cleans up the Gemini client resources.
func (p *GeminiProvider) Close() {
	p.client.Close()
}

// PlanItinerary issues one generation call and parses the result. Every
// failure is a *GenerationError.
func (p *GeminiProvider) PlanItinerary(ctx context.Context, req TripRequest) (*Itinerary, error) {
	resp, err := p.model.GenerateContent(ctx, genai.Text(buildItineraryPrompt(req)))
	if err != nil {
		return nil, &GenerationError{Op: "request", Err: err}
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, &GenerationError{Op: "response", Err: errors.New("no response candidates from Gemini")}
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			responseText.WriteString(string(txt))
		}
	}

	return parseItinerary(responseText.String())
}

func buildItineraryPrompt(req TripRequest) string {
	interests := strings.TrimSpace(req.Interests)
	if interests == "" {
		interests = "none in particular"
	}
	return fmt.Sprintf("Plan a %d-day trip to %s. The vibe should be %s. User interests: %s.\nProvide a detailed, structured itinerary.",
		req.Days, strings.TrimSpace(req.Destination), req.Vibe, interests)
}

// parseItinerary decodes and validates a raw model response.
func parseItinerary(raw string) (*Itinerary, error) {
	cleanJSON := cleanJSONString(raw)
	if cleanJSON == "" {
		return nil, &GenerationError{Op: "response", Err: errors.New("empty response body")}
	}

	var it Itinerary
	if err := json.Unmarshal([]byte(cleanJSON), &it); err != nil {
		return nil, &GenerationError{Op: "decode", Err: fmt.Errorf("failed to parse JSON response: %w", err)}
	}
	if err := it.Validate(); err != nil {
		return nil, &GenerationError{Op: "validate", Err: err}
	}
	return &it, nil
}

// cleanJSONString removes markdown code fences if present (e.g. ```json ... ```).
func cleanJSONString(input string) string {
	input = strings.TrimSpace(input)
	input = strings.TrimPrefix(input, "```json")
	input = strings.TrimPrefix(input, "```")
	input = strings.TrimSuffix(input, "```")
	return strings.TrimSpace(input)
}
