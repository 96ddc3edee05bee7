// Package embeddings provides the embedding-provider abstraction and
// the batching dispatcher used at ingestion and query time.
package embeddings

import "context"

// Embedder defines the interface for generating text embeddings. The
// same provider instance is used at ingestion and for query embedding,
// so both sides share one embedding space.
type Embedder interface {
	// Embed generates embeddings for one or more texts, aligned by index.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the number of dimensions in the embedding vectors.
	Dimensions() int

	// Name returns the name/identifier of the embedding model.
	Name() string
}
