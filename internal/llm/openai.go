package llm

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/esg-hub/internal/resilience"
	"github.com/sells-group/esg-hub/pkg/openai"
)

// OpenAICompleter serves JSON completions with strict schema output.
type OpenAICompleter struct {
	client  openai.Client
	model   string
	opts    Options
	limiter *resilience.Limiter
}

// NewOpenAICompleter wires a client with its own limiter.
func NewOpenAICompleter(client openai.Client, model string, opts Options) *OpenAICompleter {
	return &OpenAICompleter{
		client:  client,
		model:   model,
		opts:    opts,
		limiter: resilience.NewLimiter(opts.RateLimitPerMinute),
	}
}

func (c *OpenAICompleter) CompleteJSON(ctx context.Context, p Prompt) (string, error) {
	if err := c.limiter.Allow(); err != nil {
		return "", eris.Wrap(err, "openai completer")
	}

	temp := c.opts.Temperature
	req := openai.ChatRequest{
		Model:       c.model,
		System:      p.System,
		User:        p.User,
		MaxTokens:   c.opts.MaxTokens,
		Temperature: &temp,
		Schema:      p.Schema,
	}

	resp, err := resilience.DoVal(ctx, c.opts.retryConfig("openai", "complete"), func(ctx context.Context) (*openai.ChatResponse, error) {
		callCtx, cancel := c.opts.withTimeout(ctx)
		defer cancel()
		resp, err := c.client.CreateChatJSON(callCtx, req)
		if err != nil {
			return nil, resilience.ClassifyHTTPStatus(err, openai.StatusCode(err))
		}
		return resp, nil
	})
	if err != nil {
		return "", eris.Wrap(err, "openai completer")
	}
	return CleanJSON(resp.Content), nil
}

// OpenAIEmbedder computes embeddings in batches. Each batch consumes one
// request from the limiter.
type OpenAIEmbedder struct {
	client  openai.Client
	model   string
	opts    Options
	limiter *resilience.Limiter
}

// NewOpenAIEmbedder wires a client with its own limiter.
func NewOpenAIEmbedder(client openai.Client, model string, opts Options) *OpenAIEmbedder {
	return &OpenAIEmbedder{
		client:  client,
		model:   model,
		opts:    opts,
		limiter: resilience.NewLimiter(opts.RateLimitPerMinute),
	}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	batchSize := e.opts.EmbeddingBatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	out := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		end := min(start+batchSize, len(texts))
		batch := texts[start:end]

		if err := e.limiter.Allow(); err != nil {
			return nil, eris.Wrap(err, "openai embedder")
		}

		vecs, err := resilience.DoVal(ctx, e.opts.retryConfig("openai", "embed"), func(ctx context.Context) ([][]float64, error) {
			callCtx, cancel := e.opts.withTimeout(ctx)
			defer cancel()
			vecs, err := e.client.CreateEmbeddings(callCtx, e.model, batch)
			if err != nil {
				return nil, resilience.ClassifyHTTPStatus(err, openai.StatusCode(err))
			}
			return vecs, nil
		})
		if err != nil {
			return nil, eris.Wrapf(err, "openai embedder: batch %d-%d", start, end)
		}
		out = append(out, vecs...)
	}
	return out, nil
}
