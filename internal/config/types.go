package config

// ProviderType identifies an embedding provider.
type ProviderType string

const (
	ProviderOpenAI ProviderType = "openai"
	ProviderOllama ProviderType = "ollama"
)

// RerankProviderType identifies a rerank provider.
type RerankProviderType string

const (
	RerankNone RerankProviderType = "none"
	RerankHTTP RerankProviderType = "http"
)

// Config is the top-level machdoc configuration, corresponding to .machdoc.yml.
// All values are fixed at process construction; nothing here is mutated at runtime.
type Config struct {
	DataDir    string `yaml:"data_dir" koanf:"data_dir"`
	LayoutDir  string `yaml:"layout_dir" koanf:"layout_dir"`
	ImageDir   string `yaml:"image_dir" koanf:"image_dir"`
	ServerPort int    `yaml:"server_port" koanf:"server_port"`

	EmbeddingProvider ProviderType `yaml:"embedding_provider" koanf:"embedding_provider"`
	EmbeddingModel    string       `yaml:"embedding_model" koanf:"embedding_model"`
	OllamaBaseURL     string       `yaml:"ollama_base_url" koanf:"ollama_base_url"`

	Include []string `yaml:"include" koanf:"include"`
	Exclude []string `yaml:"exclude" koanf:"exclude"`

	Chunking ChunkingConfig `yaml:"chunking" koanf:"chunking"`
	Embed    EmbedConfig    `yaml:"embed" koanf:"embed"`
	Search   SearchConfig   `yaml:"search" koanf:"search"`
	Rerank   RerankConfig   `yaml:"rerank" koanf:"rerank"`
	Ingest   IngestConfig   `yaml:"ingest" koanf:"ingest"`

	// MachineKeywords maps lowercase keywords to tags applied to units
	// whose text mentions them, e.g. "ptl007" -> "machine_ptl007".
	MachineKeywords map[string]string `yaml:"machine_keywords" koanf:"machine_keywords"`
}

// ChunkingConfig controls content unit construction.
type ChunkingConfig struct {
	MinTokens    int `yaml:"min_tokens" koanf:"min_tokens"`
	MaxTokens    int `yaml:"max_tokens" koanf:"max_tokens"`
	ChunkOverlap int `yaml:"chunk_overlap" koanf:"chunk_overlap"`
}

// EmbedConfig controls the embedding dispatcher.
type EmbedConfig struct {
	BatchSize     int `yaml:"batch_size" koanf:"batch_size"`
	MaxAttempts   int `yaml:"max_attempts" koanf:"max_attempts"`
	BackoffBaseMS int `yaml:"backoff_base_ms" koanf:"backoff_base_ms"`
	MaxInFlight   int `yaml:"max_in_flight" koanf:"max_in_flight"`
	TimeoutMS     int `yaml:"timeout_ms" koanf:"timeout_ms"`
}

// SearchConfig controls hybrid ranking.
type SearchConfig struct {
	Alpha           float64 `yaml:"alpha" koanf:"alpha"`
	TopK            int     `yaml:"top_k" koanf:"top_k"`
	OverfetchFactor int     `yaml:"overfetch_factor" koanf:"overfetch_factor"`
	RerankPoolFloor int     `yaml:"rerank_pool_floor" koanf:"rerank_pool_floor"`
	TimeoutMS       int     `yaml:"timeout_ms" koanf:"timeout_ms"`
}

// RerankConfig controls the optional rerank pass.
type RerankConfig struct {
	Provider  RerankProviderType `yaml:"provider" koanf:"provider"`
	Endpoint  string             `yaml:"endpoint" koanf:"endpoint"`
	Model     string             `yaml:"model" koanf:"model"`
	Weight    float64            `yaml:"weight" koanf:"weight"`
	TimeoutMS int                `yaml:"timeout_ms" koanf:"timeout_ms"`
}

// IngestConfig controls the ingestion worker pool.
type IngestConfig struct {
	Workers int `yaml:"workers" koanf:"workers"`
}
