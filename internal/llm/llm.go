// Package llm wraps the generation and embedding collaborators. Every call
// is a blocking external-service call; callers own timeouts via context and
// must treat any error as a transient collaborator failure.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNoCompletion is returned when the provider answers without content.
var ErrNoCompletion = errors.New("llm: provider returned no completion")

// Generator produces text for a prompt.
type Generator interface {
	Complete(ctx context.Context, prompt string, temperature float32) (string, error)
}

// Embedder turns texts into fixed-size vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Client is a generation plus embedding provider.
type Client interface {
	Generator
	Embedder
}

// Config controls provider construction.
type Config struct {
	// Provider is one of auto|openai|mock.
	Provider       string
	APIKey         string
	Model          string
	EmbeddingModel string
}

// New selects a provider. "auto" picks openai when an API key is configured
// and falls back to the mock provider otherwise.
func New(cfg Config) (Client, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = "auto"
	}

	switch provider {
	case "openai":
		if strings.TrimSpace(cfg.APIKey) == "" {
			return nil, errors.New("llm: openai provider requires an API key")
		}
		return NewOpenAIClient(cfg), nil
	case "mock":
		return NewMockClient(), nil
	case "auto":
		if strings.TrimSpace(cfg.APIKey) != "" {
			return NewOpenAIClient(cfg), nil
		}
		return NewMockClient(), nil
	default:
		return nil, fmt.Errorf("llm: unsupported provider %q (expected auto|openai|mock)", cfg.Provider)
	}
}

// Summarizer folds evicted conversation turns into a running digest using
// the generator with a low temperature.
type Summarizer struct {
	gen         Generator
	temperature float32
}

func NewSummarizer(gen Generator, temperature float32) *Summarizer {
	return &Summarizer{gen: gen, temperature: temperature}
}

func (s *Summarizer) Summarize(ctx context.Context, previousSummary, turnsText string) (string, error) {
	var b strings.Builder
	b.WriteString("Compress the following conversation excerpt into a short factual summary. ")
	b.WriteString("Keep every distinct topic; drop pleasantries and repetition.\n\n")
	if strings.TrimSpace(previousSummary) != "" {
		b.WriteString("Existing summary of even earlier conversation:\n")
		b.WriteString(previousSummary)
		b.WriteString("\n\nExtend that summary with the excerpt below; return one merged summary.\n\n")
	}
	b.WriteString("Excerpt:\n")
	b.WriteString(turnsText)

	out, err := s.gen.Complete(ctx, b.String(), s.temperature)
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}
	return strings.TrimSpace(out), nil
}
