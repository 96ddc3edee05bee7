package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mkoblar/machdoc/internal/config"
	"github.com/mkoblar/machdoc/internal/embeddings"
	"github.com/mkoblar/machdoc/internal/metastore"
	"github.com/mkoblar/machdoc/internal/query"
	"github.com/mkoblar/machdoc/internal/rerank"
	"github.com/mkoblar/machdoc/internal/vectorindex"
)

// loadConfig loads and validates the config, providing a user-friendly error.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w\nRun `machdoc init` to create a config file", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// createEmbedderFromConfig creates an embeddings.Embedder based on config.
func createEmbedderFromConfig(cfg *config.Config) (embeddings.Embedder, error) {
	switch cfg.EmbeddingProvider {
	case config.ProviderOpenAI:
		apiKey := os.Getenv(config.APIKeyEnvVar(config.ProviderOpenAI))
		if apiKey == "" {
			return nil, fmt.Errorf("%s environment variable is required for OpenAI embeddings", config.APIKeyEnvVar(config.ProviderOpenAI))
		}
		return embeddings.NewOpenAIEmbedder(apiKey, embeddings.OpenAIModel(cfg.EmbeddingModel)), nil
	case config.ProviderOllama:
		return embeddings.NewOllamaEmbedder(cfg.OllamaBaseURL, cfg.EmbeddingModel), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.EmbeddingProvider)
	}
}

// createDispatcher wraps an embedder with the configured batching and
// retry behavior. The same dispatcher is shared by ingestion and query.
func createDispatcher(cfg *config.Config, embedder embeddings.Embedder) *embeddings.Dispatcher {
	return embeddings.NewDispatcher(embedder, embeddings.DispatcherConfig{
		BatchSize:   cfg.Embed.BatchSize,
		MaxAttempts: cfg.Embed.MaxAttempts,
		BackoffBase: time.Duration(cfg.Embed.BackoffBaseMS) * time.Millisecond,
		MaxInFlight: cfg.Embed.MaxInFlight,
		Timeout:     time.Duration(cfg.Embed.TimeoutMS) * time.Millisecond,
	})
}

// openStores opens the metadata store and the vector index from the
// data directory. loadIndex controls whether a missing vector snapshot
// is an error or just a fresh start.
func openStores(cfg *config.Config, embedder embeddings.Embedder, loadIndex bool) (*metastore.Store, *vectorindex.Index, error) {
	store, err := metastore.Open(filepath.Join(cfg.DataDir, "machdoc.db"))
	if err != nil {
		return nil, nil, fmt.Errorf("opening metadata store: %w", err)
	}

	index, err := vectorindex.New(embedder)
	if err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("creating vector index: %w", err)
	}
	if err := index.Load(cfg.DataDir); err != nil {
		if loadIndex {
			store.Close()
			return nil, nil, fmt.Errorf("loading vector index from %s: %w\nRun `machdoc ingest` first to build the index", cfg.DataDir, err)
		}
		if verbose {
			fmt.Fprintf(os.Stderr, "No existing vector index found (fresh ingest): %v\n", err)
		}
	}

	return store, index, nil
}

// createOrchestrator wires an orchestrator from config. The returned
// reranker may be nil when reranking is disabled.
func createOrchestrator(cfg *config.Config, dispatcher *embeddings.Dispatcher, store *metastore.Store, index *vectorindex.Index) (*query.Orchestrator, error) {
	reranker, err := rerank.New(rerank.Config{
		Provider: string(cfg.Rerank.Provider),
		Endpoint: cfg.Rerank.Endpoint,
		Model:    cfg.Rerank.Model,
		Timeout:  time.Duration(cfg.Rerank.TimeoutMS) * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("creating reranker: %w", err)
	}

	return query.New(dispatcher.Embedder(), index, store, reranker, query.Options{
		Alpha:           cfg.Search.Alpha,
		TopK:            cfg.Search.TopK,
		OverfetchFactor: cfg.Search.OverfetchFactor,
		RerankPoolFloor: cfg.Search.RerankPoolFloor,
		RerankWeight:    cfg.Rerank.Weight,
		SearchTimeout:   time.Duration(cfg.Search.TimeoutMS) * time.Millisecond,
		RerankTimeout:   time.Duration(cfg.Rerank.TimeoutMS) * time.Millisecond,
	}), nil
}
