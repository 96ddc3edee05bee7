// Package config loads and validates the machdoc configuration.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides (MACHDOC_*).
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Start from defaults.
	cfg := DefaultConfig()

	// Load YAML file if it exists.
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("accessing config %s: %w", path, err)
	}

	// Overlay environment variables: MACHDOC_SERVER_PORT -> server_port,
	// MACHDOC_SEARCH.ALPHA -> search.alpha, etc.
	if err := k.Load(env.Provider("MACHDOC_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "MACHDOC_"))
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// validProviders is the set of recognized embedding provider values.
var validProviders = map[ProviderType]bool{
	ProviderOpenAI: true,
	ProviderOllama: true,
}

// validRerankProviders is the set of recognized rerank provider values.
var validRerankProviders = map[RerankProviderType]bool{
	RerankNone: true,
	RerankHTTP: true,
}

// Validate checks that the configuration contains valid values.
func (c *Config) Validate() error {
	if c.EmbeddingProvider == "" {
		return fmt.Errorf("embedding_provider is required")
	}
	if !validProviders[c.EmbeddingProvider] {
		return fmt.Errorf("invalid embedding_provider %q: must be one of openai, ollama", c.EmbeddingProvider)
	}
	if c.EmbeddingModel == "" {
		return fmt.Errorf("embedding_model is required")
	}

	if c.Rerank.Provider != "" && !validRerankProviders[c.Rerank.Provider] {
		return fmt.Errorf("invalid rerank provider %q: must be one of none, http", c.Rerank.Provider)
	}
	if c.Rerank.Provider == RerankHTTP && c.Rerank.Endpoint == "" {
		return fmt.Errorf("rerank endpoint is required for the http provider")
	}
	if c.Rerank.Weight < 0 || c.Rerank.Weight > 1 {
		return fmt.Errorf("rerank weight must be in [0,1], got %v", c.Rerank.Weight)
	}

	if c.Search.Alpha < 0 || c.Search.Alpha > 1 {
		return fmt.Errorf("search alpha must be in [0,1], got %v", c.Search.Alpha)
	}
	if c.Search.TopK < 1 {
		return fmt.Errorf("search top_k must be positive")
	}
	if c.Search.OverfetchFactor < 1 {
		return fmt.Errorf("search overfetch_factor must be at least 1")
	}

	if c.Chunking.MinTokens < 1 || c.Chunking.MaxTokens < 1 {
		return fmt.Errorf("chunking token budget must be positive")
	}
	if c.Chunking.MinTokens > c.Chunking.MaxTokens {
		return fmt.Errorf("chunking min_tokens (%d) exceeds max_tokens (%d)", c.Chunking.MinTokens, c.Chunking.MaxTokens)
	}
	if c.Chunking.ChunkOverlap >= c.Chunking.MaxTokens {
		return fmt.Errorf("chunk_overlap (%d) must be smaller than max_tokens (%d)", c.Chunking.ChunkOverlap, c.Chunking.MaxTokens)
	}

	if c.Embed.BatchSize < 1 {
		return fmt.Errorf("embed batch_size must be positive")
	}
	if c.Embed.MaxAttempts < 1 {
		return fmt.Errorf("embed max_attempts must be positive")
	}

	if c.Ingest.Workers < 1 {
		return fmt.Errorf("ingest workers must be positive")
	}

	return nil
}

// APIKeyEnvVar returns the conventional environment variable name for
// the API key of the given provider, or empty when none is needed.
func APIKeyEnvVar(provider ProviderType) string {
	if provider == ProviderOpenAI {
		return "OPENAI_API_KEY"
	}
	return ""
}
