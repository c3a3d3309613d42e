// Package llm adapts the provider SDK clients to the two capabilities the
// mapping engine needs: JSON completions and text embeddings. Every provider
// instance owns its rate limiter and retry policy.
package llm

import (
	"context"
	"strings"
	"time"

	"github.com/sells-group/esg-hub/internal/resilience"
	"github.com/sells-group/esg-hub/pkg/openai"
)

// ErrRateLimited marks a refused provider call. It is never retried and
// callers stop escalating strategies when they see it.
var ErrRateLimited = resilience.ErrRateLimited

// IsRateLimited reports whether err carries ErrRateLimited.
func IsRateLimited(err error) bool {
	return resilience.IsRateLimited(err)
}

// Prompt is a single-turn request whose answer must be a JSON object.
type Prompt struct {
	System string
	User   string
	// Schema is used by providers that support strict structured output.
	Schema *openai.ResponseSchema
}

// Completer returns the raw JSON text answering a prompt.
type Completer interface {
	CompleteJSON(ctx context.Context, p Prompt) (string, error)
}

// Embedder returns one vector per input text, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// Options are the limits shared by all provider adapters.
type Options struct {
	RateLimitPerMinute int
	Timeout            time.Duration
	RetryAttempts      int
	// RetryBackoff overrides the initial retry delay when positive.
	RetryBackoff       time.Duration
	Temperature        float64
	MaxTokens          int64
	EmbeddingBatchSize int
}

func (o Options) retryConfig(provider, operation string) resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	if o.RetryAttempts > 0 {
		cfg.MaxAttempts = o.RetryAttempts
	}
	if o.RetryBackoff > 0 {
		cfg.InitialBackoff = o.RetryBackoff
	}
	cfg.OnRetry = resilience.RetryLogger(provider, operation)
	return cfg
}

// withTimeout bounds a single provider call.
func (o Options) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.Timeout)
}

// CleanJSON extracts a JSON object from text that may contain markdown code
// fences or other wrapping.
func CleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
