package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Provider names accepted by New.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// Config selects and configures an oracle provider.
type Config struct {
	Provider        string
	Model           string
	Timeout         time.Duration
	OpenAIAPIKey    string
	AnthropicAPIKey string
	GeminiAPIKey    string
	Logger          zerolog.Logger
}

// New builds the oracle for the configured provider. The returned closer is never nil.
func New(ctx context.Context, cfg Config) (Oracle, func() error, error) {
	noop := func() error { return nil }

	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderOpenAI, "":
		oracle, err := NewOpenAIOracle(OpenAIConfig{APIKey: cfg.OpenAIAPIKey, Model: cfg.Model, Logger: cfg.Logger})
		if err != nil {
			return nil, noop, err
		}
		return oracle, noop, nil
	case ProviderAnthropic:
		oracle, err := NewAnthropicOracle(AnthropicConfig{APIKey: cfg.AnthropicAPIKey, Model: cfg.Model, Timeout: cfg.Timeout, Logger: cfg.Logger})
		if err != nil {
			return nil, noop, err
		}
		return oracle, noop, nil
	case ProviderGemini:
		oracle, err := NewGeminiOracle(ctx, GeminiConfig{APIKey: cfg.GeminiAPIKey, Model: cfg.Model, Logger: cfg.Logger})
		if err != nil {
			return nil, noop, err
		}
		return oracle, oracle.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown ai provider %q", cfg.Provider)
	}
}
