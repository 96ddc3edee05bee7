package config

// DefaultMachineKeywords tags units that mention known machine codes.
var DefaultMachineKeywords = map[string]string{
	"ptl007": "machine_ptl007",
	"ptl008": "machine_ptl008",
	"rom27":  "machine_rom27",
	"rom28":  "machine_rom28",
	"stgh":   "machine_stgh",
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DataDir:           ".machdoc",
		LayoutDir:         "data/layout",
		ImageDir:          "data/images",
		ServerPort:        8090,
		EmbeddingProvider: ProviderOpenAI,
		EmbeddingModel:    "text-embedding-3-small",
		Include:           []string{"**/*.layout.json"},
		Exclude:           nil,
		Chunking: ChunkingConfig{
			MinTokens:    100,
			MaxTokens:    800,
			ChunkOverlap: 100,
		},
		Embed: EmbedConfig{
			BatchSize:     32,
			MaxAttempts:   3,
			BackoffBaseMS: 500,
			MaxInFlight:   8,
			TimeoutMS:     30_000,
		},
		Search: SearchConfig{
			Alpha:           0.5,
			TopK:            10,
			OverfetchFactor: 3,
			RerankPoolFloor: 20,
			TimeoutMS:       10_000,
		},
		Rerank: RerankConfig{
			Provider:  RerankNone,
			Model:     "rerank-multilingual-v3.0",
			Weight:    0.8,
			TimeoutMS: 5_000,
		},
		Ingest: IngestConfig{
			Workers: 4,
		},
		MachineKeywords: DefaultMachineKeywords,
	}
}
