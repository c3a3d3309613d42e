package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/esg-hub/internal/ingest"
	"github.com/sells-group/esg-hub/internal/llm"
	"github.com/sells-group/esg-hub/internal/mapping"
	"github.com/sells-group/esg-hub/internal/missing"
	"github.com/sells-group/esg-hub/internal/notify"
	"github.com/sells-group/esg-hub/internal/quality"
	"github.com/sells-group/esg-hub/internal/store"
	anthropicpkg "github.com/sells-group/esg-hub/pkg/anthropic"
	openaipkg "github.com/sells-group/esg-hub/pkg/openai"
)

// hubEnv holds the store and services needed by the serve, ingest,
// materialize and classify commands.
type hubEnv struct {
	Store        store.Store
	Notifier     notify.Notifier
	Materializer *ingest.Materializer
	Ingest       *ingest.Service
	Mapping      *mapping.Service
	Missing      *missing.Service
}

// Close releases resources held by the environment.
func (e *hubEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initHub validates config for mode, opens the store and wires every
// service. Callers should defer env.Close().
func initHub(ctx context.Context, mode string) (*hubEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	completer, err := initCompleter()
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	embedder := llm.NewOpenAIEmbedder(initOpenAI(), cfg.OpenAI.EmbeddingModel, llmOptions(cfg.OpenAI.MaxTokens))

	orch := mapping.NewOrchestrator(
		mapping.NewRuleClassifier(),
		[]mapping.Strategy{
			mapping.NewSemanticClassifier(completer, cfg.Mapping.MaxSampleValues),
			mapping.NewEmbeddingMatcher(embedder, st, cfg.Mapping.SimilarityThreshold, cfg.Mapping.MaxMatches),
		},
		mapping.OrchestratorConfig{
			EarlyExit:      cfg.Mapping.RuleEarlyExit,
			AgreementBonus: cfg.Mapping.AgreementBonus,
		},
	)
	cache := mapping.NewRuleCache(st, cfg.Mapping.ValidateAbove)

	slack := notify.NewSlack(cfg.Slack)
	if !slack.Enabled() {
		zap.L().Debug("slack not configured, notifications disabled")
	}

	mat := ingest.NewMaterializer(st, cache, orch, cfg.Mapping.MaterializeMin, cfg.Ingest.MaxConcurrentRecords)
	ing := ingest.NewService(st, mat, quality.NewAnalyzer(completer, cfg.Ingest.QualitySampleRows), slack, ingest.ServiceConfig{
		MaxRows:           cfg.Ingest.MaxRows,
		QualityAlertBelow: cfg.Ingest.QualityAlertBelow,
	})

	zap.L().Info("hub initialized",
		zap.String("store", cfg.Store.Driver),
		zap.String("completion_provider", cfg.LLM.CompletionProvider),
	)

	return &hubEnv{
		Store:        st,
		Notifier:     slack,
		Materializer: mat,
		Ingest:       ing,
		Mapping:      mapping.NewService(st, st, cache, orch),
		Missing:      missing.NewService(st, slack),
	}, nil
}

func llmOptions(maxTokens int64) llm.Options {
	return llm.Options{
		RateLimitPerMinute: cfg.LLM.RateLimitPerMinute,
		Timeout:            time.Duration(cfg.LLM.TimeoutSecs) * time.Second,
		RetryAttempts:      cfg.LLM.RetryAttempts,
		Temperature:        cfg.LLM.Temperature,
		MaxTokens:          maxTokens,
		EmbeddingBatchSize: cfg.LLM.EmbeddingBatchSize,
	}
}

func initOpenAI() openaipkg.Client {
	var opts []openaipkg.ClientOption
	if cfg.OpenAI.BaseURL != "" {
		opts = append(opts, openaipkg.WithBaseURL(cfg.OpenAI.BaseURL))
	}
	return openaipkg.NewClient(cfg.OpenAI.Key, opts...)
}

// initCompleter builds the configured structured-completion provider.
func initCompleter() (llm.Completer, error) {
	switch cfg.LLM.CompletionProvider {
	case "anthropic":
		client := anthropicpkg.NewClient(cfg.Anthropic.Key)
		return llm.NewAnthropicCompleter(client, cfg.Anthropic.Model, llmOptions(cfg.Anthropic.MaxTokens)), nil
	case "openai":
		return llm.NewOpenAICompleter(initOpenAI(), cfg.OpenAI.ChatModel, llmOptions(cfg.OpenAI.MaxTokens)), nil
	default:
		return nil, eris.Errorf("unsupported completion provider: %s", cfg.LLM.CompletionProvider)
	}
}
