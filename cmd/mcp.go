package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	mcpserver "github.com/mkoblar/machdoc/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server for AI agent integration",
	Long:  `Starts a Model Context Protocol (MCP) server on stdio, exposing documentation search tools for AI agents.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		embedder, err := createEmbedderFromConfig(cfg)
		if err != nil {
			return fmt.Errorf("creating embedder: %w", err)
		}
		dispatcher := createDispatcher(cfg, embedder)

		// Missing index is not fatal here: the server may be wired into
		// an agent before the first ingest has run.
		store, index, err := openStores(cfg, embedder, false)
		if err != nil {
			return err
		}
		defer store.Close()

		if index.Count() == 0 {
			fmt.Fprintf(os.Stderr, "Warning: vector index is empty. Run `machdoc ingest` first.\n")
		}

		orchestrator, err := createOrchestrator(cfg, dispatcher, store, index)
		if err != nil {
			return err
		}

		mcpserver.Version = Version

		fmt.Fprintf(os.Stderr, "machdoc MCP server started on stdio (data=%s, units=%d)\n", cfg.DataDir, index.Count())

		srv := mcpserver.NewServer(store, orchestrator, cfg.ImageDir)
		return srv.Serve()
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
