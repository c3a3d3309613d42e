package llm

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/esg-hub/internal/resilience"
	"github.com/sells-group/esg-hub/pkg/anthropic"
)

// AnthropicCompleter serves JSON completions from the Messages API.
type AnthropicCompleter struct {
	client  anthropic.Client
	model   string
	opts    Options
	limiter *resilience.Limiter
}

// NewAnthropicCompleter wires a client with its own limiter.
func NewAnthropicCompleter(client anthropic.Client, model string, opts Options) *AnthropicCompleter {
	return &AnthropicCompleter{
		client:  client,
		model:   model,
		opts:    opts,
		limiter: resilience.NewLimiter(opts.RateLimitPerMinute),
	}
}

func (c *AnthropicCompleter) CompleteJSON(ctx context.Context, p Prompt) (string, error) {
	if err := c.limiter.Allow(); err != nil {
		return "", eris.Wrap(err, "anthropic completer")
	}

	temp := c.opts.Temperature
	maxTokens := c.opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 500
	}
	req := anthropic.MessageRequest{
		Model:       c.model,
		MaxTokens:   maxTokens,
		System:      []anthropic.SystemBlock{{Text: p.System, CacheControl: &anthropic.CacheControl{TTL: "5m"}}},
		Messages:    []anthropic.Message{{Role: "user", Content: p.User}},
		Temperature: &temp,
	}

	resp, err := resilience.DoVal(ctx, c.opts.retryConfig("anthropic", "complete"), func(ctx context.Context) (*anthropic.MessageResponse, error) {
		callCtx, cancel := c.opts.withTimeout(ctx)
		defer cancel()
		resp, err := c.client.CreateMessage(callCtx, req)
		if err != nil {
			return nil, resilience.ClassifyHTTPStatus(err, anthropic.StatusCode(err))
		}
		return resp, nil
	})
	if err != nil {
		return "", eris.Wrap(err, "anthropic completer")
	}

	resp.Usage.LogCost(c.model, "classify")
	return CleanJSON(resp.Text()), nil
}
