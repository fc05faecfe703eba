// Package llm wraps langchaingo models behind a single completion surface
// that reports token usage alongside generated text.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/bedrock"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/marcus-pm/lenny-cli/internal/config"
	"github.com/marcus-pm/lenny-cli/internal/costs"
)

// Model wraps a langchaingo LLM for text generation with usage tracking.
type Model struct {
	llm       llms.Model
	modelName string
}

// NewModel creates an LLM client for the configured provider, bound to
// the given model name.
func NewModel(cfg config.Config, modelName string) (*Model, error) {
	var model llms.Model
	var err error

	switch cfg.LLMProvider {
	case config.ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("Anthropic API key required")
		}
		model, err = anthropic.New(
			anthropic.WithToken(cfg.AnthropicAPIKey),
			anthropic.WithModel(modelName),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}

	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		model, err = openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithModel(modelName),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case config.ProviderOllama:
		model, err = ollama.New(
			ollama.WithModel(modelName),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	case config.ProviderBedrock:
		awsCfg, cfgErr := awsconfig.LoadDefaultConfig(context.Background())
		if cfgErr != nil {
			return nil, fmt.Errorf("load aws config: %w", cfgErr)
		}
		client := bedrockruntime.NewFromConfig(awsCfg)
		model, err = bedrock.New(
			bedrock.WithClient(client),
			bedrock.WithModel(modelName),
		)
		if err != nil {
			return nil, fmt.Errorf("create bedrock model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLMProvider)
	}

	return &Model{llm: model, modelName: modelName}, nil
}

// Name returns the model name this client is bound to.
func (m *Model) Name() string {
	return m.modelName
}

// Complete generates text from a system instruction plus user content and
// returns the response with the provider-reported token usage.
func (m *Model) Complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int) (string, costs.Usage, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, userPrompt),
	}

	opts := []llms.CallOption{}
	if maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(maxTokens))
	}

	start := time.Now()
	response, err := m.llm.GenerateContent(ctx, messages, opts...)
	duration := time.Since(start)

	if err != nil {
		slog.Warn("llm call failed", "model", m.modelName, "duration_ms", duration.Milliseconds(), "error", err)
		return "", costs.Usage{}, classify(fmt.Errorf("generate: %w", err))
	}
	if len(response.Choices) == 0 {
		return "", costs.Usage{}, fmt.Errorf("no response choices")
	}

	choice := response.Choices[0]
	usage := usageFromGenerationInfo(choice.GenerationInfo)
	slog.Debug("llm call complete",
		"model", m.modelName,
		"duration_ms", duration.Milliseconds(),
		"input_tokens", usage.InputTokens,
		"output_tokens", usage.OutputTokens,
	)
	return choice.Content, usage, nil
}

// usageFromGenerationInfo extracts token counts from provider-specific
// GenerationInfo keys. Providers disagree on key names and numeric types,
// so probe the known spellings.
func usageFromGenerationInfo(info map[string]any) costs.Usage {
	usage := costs.Usage{Calls: 1}
	usage.InputTokens = intFromAny(info, "InputTokens", "PromptTokens", "input_tokens", "prompt_tokens")
	usage.OutputTokens = intFromAny(info, "OutputTokens", "CompletionTokens", "output_tokens", "completion_tokens")
	return usage
}

func intFromAny(info map[string]any, keys ...string) int64 {
	for _, key := range keys {
		switch v := info[key].(type) {
		case int:
			return int64(v)
		case int32:
			return int64(v)
		case int64:
			return v
		case float64:
			return int64(v)
		}
	}
	return 0
}
