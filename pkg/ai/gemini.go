package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/api/option"
)

// GeminiConfig configures the Gemini oracle.
type GeminiConfig struct {
	APIKey      string
	Model       string
	Temperature float32
	Logger      zerolog.Logger
}

// GeminiOracle implements Oracle with the Gemini generative model API.
type GeminiOracle struct {
	client *genai.Client
	cfg    GeminiConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewGeminiOracle constructs the oracle. Close releases the underlying client.
func NewGeminiOracle(ctx context.Context, cfg GeminiConfig) (*GeminiOracle, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-flash"
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.2
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("initialise gemini client: %w", err)
	}

	return &GeminiOracle{
		client: client,
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/screening-api/pkg/ai/gemini"),
		logger: cfg.Logger.With().Str("component", "gemini_oracle").Logger(),
	}, nil
}

// Score sends the scoring request to Gemini and parses the response.
func (g *GeminiOracle) Score(ctx context.Context, req ScoreRequest) (Judgment, error) {
	return score(ctx, g.tracer, "gemini", g.cfg.Model, req, g.complete)
}

// Close releases the Gemini client.
func (g *GeminiOracle) Close() error {
	return g.client.Close()
}

func (g *GeminiOracle) complete(ctx context.Context, system, user string, maxTokens int) (string, error) {
	model := g.client.GenerativeModel(g.cfg.Model)
	temperature := g.cfg.Temperature
	model.Temperature = &temperature
	limit := int32(maxTokens)
	model.MaxOutputTokens = &limit
	model.ResponseMIMEType = "application/json"
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}

	resp, err := model.GenerateContent(ctx, genai.Text(user))
	if err != nil {
		return "", fmt.Errorf("gemini score: %w", err)
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				builder.WriteString(string(text))
			}
		}
		break
	}

	if builder.Len() == 0 {
		return "", fmt.Errorf("gemini returned no text: %w", ErrEmptyResponse)
	}
	return builder.String(), nil
}
