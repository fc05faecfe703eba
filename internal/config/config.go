// Package config holds environment-driven configuration for lenny.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Provider identifies an LLM backend.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderOllama    Provider = "ollama"
	ProviderBedrock   Provider = "bedrock"
)

// Config holds all configuration values.
type Config struct {
	// LLM backend
	LLMProvider     Provider
	AnthropicAPIKey string
	OpenAIAPIKey    string
	OllamaHost      string

	// Models per role
	SynthModel string // fast-path synthesis
	JudgeModel string // router tier-2 judge
	AgentModel string // deep-path orchestrator

	// Corpus
	TranscriptDir string // empty = auto-discover

	// Fast-path tuning
	RelevanceThreshold float64
	TopK               int
	MaxChunksPerEp     int
	MaxTotalChunks     int

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Load reads configuration from environment variables.
func Load() Config {
	return Config{
		LLMProvider:     Provider(getEnv("LENNY_LLM_PROVIDER", "anthropic")),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		OllamaHost:      getEnv("OLLAMA_HOST", "http://localhost:11434"),

		SynthModel: getEnv("LENNY_SYNTH_MODEL", "claude-haiku-4-5-20251001"),
		JudgeModel: getEnv("LENNY_JUDGE_MODEL", "claude-haiku-4-5-20251001"),
		AgentModel: getEnv("LENNY_AGENT_MODEL", "claude-opus-4-1-20250805"),

		TranscriptDir: os.Getenv("LENNY_TRANSCRIPTS"),

		RelevanceThreshold: getEnvFloat("LENNY_RELEVANCE_THRESHOLD", 5.0),
		TopK:               getEnvInt("LENNY_SEARCH_TOP_K", 30),
		MaxChunksPerEp:     getEnvInt("LENNY_MAX_CHUNKS_PER_EPISODE", 3),
		MaxTotalChunks:     getEnvInt("LENNY_MAX_TOTAL_CHUNKS", 15),

		LogFile:  getEnv("LENNY_LOG_FILE", filepath.Join(os.TempDir(), "lenny.log")),
		LogLevel: parseLogLevel(getEnv("LENNY_LOG_LEVEL", "INFO")),
	}
}

// Validate checks startup requirements and returns actionable errors.
func (c Config) Validate() error {
	switch c.LLMProvider {
	case ProviderAnthropic:
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY not set.\n" +
				"  Export it in your shell:\n" +
				"    export ANTHROPIC_API_KEY=sk-ant-...\n" +
				"  or run `lenny chat` in an interactive terminal to set it up")
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY not set")
		}
	case ProviderOllama, ProviderBedrock:
		// ollama needs no key; bedrock uses the ambient AWS credential chain
	default:
		return fmt.Errorf("unsupported LLM provider: %s", c.LLMProvider)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
