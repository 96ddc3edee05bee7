package config

import (
	"fmt"

	"github.com/manifoldco/promptui"
)

// RunWizard runs an interactive configuration wizard and returns the
// resulting Config. It also saves the config to .machdoc.yml.
func RunWizard() (*Config, error) {
	fmt.Println("Welcome to machdoc! Let's configure your documentation index.")
	fmt.Println()

	cfg := DefaultConfig()

	providerPrompt := promptui.Select{
		Label: "Embedding provider",
		Items: []string{"openai", "ollama"},
	}
	_, provider, err := providerPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("wizard aborted: %w", err)
	}
	cfg.EmbeddingProvider = ProviderType(provider)

	defaultModel := "text-embedding-3-small"
	if cfg.EmbeddingProvider == ProviderOllama {
		defaultModel = "nomic-embed-text"
	}
	modelPrompt := promptui.Prompt{
		Label:   "Embedding model",
		Default: defaultModel,
	}
	model, err := modelPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("wizard aborted: %w", err)
	}
	cfg.EmbeddingModel = model

	layoutPrompt := promptui.Prompt{
		Label:   "Directory containing parsed layout files",
		Default: cfg.LayoutDir,
	}
	layoutDir, err := layoutPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("wizard aborted: %w", err)
	}
	cfg.LayoutDir = layoutDir

	rerankPrompt := promptui.Select{
		Label: "Rerank provider",
		Items: []string{"none", "http"},
	}
	_, rerank, err := rerankPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("wizard aborted: %w", err)
	}
	cfg.Rerank.Provider = RerankProviderType(rerank)

	if cfg.Rerank.Provider == RerankHTTP {
		endpointPrompt := promptui.Prompt{
			Label: "Rerank endpoint URL",
		}
		endpoint, err := endpointPrompt.Run()
		if err != nil {
			return nil, fmt.Errorf("wizard aborted: %w", err)
		}
		cfg.Rerank.Endpoint = endpoint
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Save(".machdoc.yml"); err != nil {
		return nil, err
	}

	fmt.Println()
	fmt.Println("Configuration saved to .machdoc.yml")
	return cfg, nil
}
