// Package openai wraps the OpenAI SDK for strict JSON-schema chat
// completions and batched embeddings.
package openai

import (
	"context"
	"errors"
	"sort"

	"github.com/invopop/jsonschema"
	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Client defines the OpenAI operations used by the mapping engine.
type Client interface {
	CreateChatJSON(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	CreateEmbeddings(ctx context.Context, model string, inputs []string) ([][]float64, error)
}

// ChatRequest is a single system+user exchange whose answer must be JSON.
type ChatRequest struct {
	Model       string
	System      string
	User        string
	MaxTokens   int64
	Temperature *float64
	// Schema, when set, switches the response format to strict JSON schema.
	Schema *ResponseSchema
}

// ResponseSchema names a JSON schema for structured outputs.
type ResponseSchema struct {
	Name        string
	Description string
	Schema      any
}

// ChatResponse carries the first choice's content.
type ChatResponse struct {
	Content          string
	Model            string
	PromptTokens     int64
	CompletionTokens int64
}

// SchemaFor reflects a strict JSON schema for T: no additional properties,
// no $ref indirection.
func SchemaFor[T any]() any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

// StatusCode extracts the HTTP status from an API error, or 0.
func StatusCode(err error) int {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// ClientOption customizes NewClient.
type ClientOption func(*[]option.RequestOption)

// WithBaseURL points the client at a different API host (tests, proxies).
func WithBaseURL(url string) ClientOption {
	return func(opts *[]option.RequestOption) {
		if url != "" {
			*opts = append(*opts, option.WithBaseURL(url))
		}
	}
}

type sdkClient struct {
	client sdk.Client
}

// NewClient creates an OpenAI client. SDK-level retries are disabled;
// callers own retry policy.
func NewClient(apiKey string, opts ...ClientOption) Client {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	for _, o := range opts {
		o(&reqOpts)
	}
	return &sdkClient{client: sdk.NewClient(reqOpts...)}
}

func (c *sdkClient) CreateChatJSON(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	params := sdk.ChatCompletionNewParams{
		Model: sdk.ChatModel(req.Model),
		Messages: []sdk.ChatCompletionMessageParamUnion{
			sdk.SystemMessage(req.System),
			sdk.UserMessage(req.User),
		},
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = sdk.Int(req.MaxTokens)
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}
	if req.Schema != nil {
		params.ResponseFormat = sdk.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &sdk.ResponseFormatJSONSchemaParam{
				JSONSchema: sdk.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        req.Schema.Name,
					Description: sdk.String(req.Schema.Description),
					Schema:      req.Schema.Schema,
					Strict:      sdk.Bool(true),
				},
			},
		}
	} else {
		params.ResponseFormat = sdk.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &sdk.ResponseFormatJSONObjectParam{},
		}
	}

	chat, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, eris.Wrap(err, "openai: chat completion")
	}
	if len(chat.Choices) == 0 {
		return nil, eris.New("openai: empty choices")
	}

	zap.L().Debug("openai: token usage",
		zap.String("model", chat.Model),
		zap.Int64("prompt_tokens", chat.Usage.PromptTokens),
		zap.Int64("completion_tokens", chat.Usage.CompletionTokens),
	)

	return &ChatResponse{
		Content:          chat.Choices[0].Message.Content,
		Model:            chat.Model,
		PromptTokens:     chat.Usage.PromptTokens,
		CompletionTokens: chat.Usage.CompletionTokens,
	}, nil
}

func (c *sdkClient) CreateEmbeddings(ctx context.Context, model string, inputs []string) ([][]float64, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	resp, err := c.client.Embeddings.New(ctx, sdk.EmbeddingNewParams{
		Model: sdk.EmbeddingModel(model),
		Input: sdk.EmbeddingNewParamsInputUnion{OfArrayOfStrings: inputs},
	})
	if err != nil {
		return nil, eris.Wrap(err, "openai: create embeddings")
	}
	if len(resp.Data) != len(inputs) {
		return nil, eris.Errorf("openai: got %d embeddings for %d inputs", len(resp.Data), len(inputs))
	}

	data := resp.Data
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	out := make([][]float64, len(data))
	for i, d := range data {
		out[i] = d.Embedding
	}
	return out, nil
}
