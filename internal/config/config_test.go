package config

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"LENNY_LLM_PROVIDER", "ANTHROPIC_API_KEY", "LENNY_SYNTH_MODEL",
		"LENNY_RELEVANCE_THRESHOLD", "LENNY_SEARCH_TOP_K", "LENNY_LOG_LEVEL",
		"LENNY_TRANSCRIPTS",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()
	require.Equal(t, ProviderAnthropic, cfg.LLMProvider)
	require.Equal(t, 5.0, cfg.RelevanceThreshold)
	require.Equal(t, 30, cfg.TopK)
	require.Equal(t, 3, cfg.MaxChunksPerEp)
	require.Equal(t, 15, cfg.MaxTotalChunks)
	require.Equal(t, slog.LevelInfo, cfg.LogLevel)
	require.Empty(t, cfg.TranscriptDir)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("LENNY_LLM_PROVIDER", "ollama")
	t.Setenv("LENNY_RELEVANCE_THRESHOLD", "2.5")
	t.Setenv("LENNY_SEARCH_TOP_K", "50")
	t.Setenv("LENNY_LOG_LEVEL", "debug")
	t.Setenv("LENNY_TRANSCRIPTS", "/data/episodes")

	cfg := Load()
	require.Equal(t, ProviderOllama, cfg.LLMProvider)
	require.Equal(t, 2.5, cfg.RelevanceThreshold)
	require.Equal(t, 50, cfg.TopK)
	require.Equal(t, slog.LevelDebug, cfg.LogLevel)
	require.Equal(t, "/data/episodes", cfg.TranscriptDir)
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("LENNY_RELEVANCE_THRESHOLD", "not-a-number")
	t.Setenv("LENNY_SEARCH_TOP_K", "3.9")

	cfg := Load()
	require.Equal(t, 5.0, cfg.RelevanceThreshold)
	require.Equal(t, 30, cfg.TopK)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"anthropic with key", Config{LLMProvider: ProviderAnthropic, AnthropicAPIKey: "sk-ant-x"}, ""},
		{"anthropic missing key", Config{LLMProvider: ProviderAnthropic}, "ANTHROPIC_API_KEY"},
		{"openai missing key", Config{LLMProvider: ProviderOpenAI}, "OPENAI_API_KEY"},
		{"ollama needs nothing", Config{LLMProvider: ProviderOllama}, ""},
		{"bedrock needs nothing", Config{LLMProvider: ProviderBedrock}, ""},
		{"unknown provider", Config{LLMProvider: "gemini"}, "unsupported"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
			} else {
				require.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"Warn", slog.LevelWarn},
		{"WARNING", slog.LevelWarn},
		{"error", slog.LevelError},
		{"garbage", slog.LevelInfo},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, parseLogLevel(tt.in), "level %q", tt.in)
	}
}
