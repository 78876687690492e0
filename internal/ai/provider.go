package ai

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/christopherklint97/billr/internal/config"
)

// Generator sends a request to a text-generation service and returns the
// raw response text.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// GenerationError wraps any transport or service failure.
type GenerationError struct {
	Provider string
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s generation failed: %v", e.Provider, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// NewGenerator builds the provider named in cfg.
func NewGenerator(cfg config.AIConfig, logger *slog.Logger) (Generator, error) {
	switch cfg.Provider {
	case "openai", "":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("OpenAI API key not configured — set OPENAI_API_KEY or ai.api_key")
		}
		return NewOpenAI(OpenAIOptions{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			MaxRetries: cfg.MaxRetries,
			Timeout:    time.Duration(cfg.TimeoutSeconds) * time.Second,
		}, logger), nil
	case "claude-cli":
		return NewClaudeCLI(cfg.Model, logger), nil
	}
	return nil, fmt.Errorf("unknown AI provider %q (want openai or claude-cli)", cfg.Provider)
}
