// Package rerank rescores a candidate pool against the query with a
// cross-encoder service. Reranking is optional; failures degrade the
// query to blended-score ordering rather than failing it.
package rerank

import (
	"context"
	"fmt"
	"time"
)

// Reranker scores documents against a query. Scores are returned in
// input order and higher means more relevant.
type Reranker interface {
	Rerank(ctx context.Context, query string, documents []string) ([]float64, error)
	Name() string
}

// Config selects and configures a reranker.
type Config struct {
	Provider string
	Endpoint string
	Model    string
	Timeout  time.Duration
}

// New builds the reranker named by cfg.Provider. "none" and the empty
// string return nil, meaning reranking is disabled.
func New(cfg Config) (Reranker, error) {
	switch cfg.Provider {
	case "", "none":
		return nil, nil
	case "http":
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("http reranker requires an endpoint")
		}
		return NewHTTPReranker(cfg.Endpoint, cfg.Model, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown rerank provider %q", cfg.Provider)
	}
}
