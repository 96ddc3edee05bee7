package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/mkoblar/machdoc/internal/fuse"
	"github.com/mkoblar/machdoc/internal/ingest"
	"github.com/mkoblar/machdoc/internal/layout"
	"github.com/mkoblar/machdoc/internal/progress"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest parsed layout files into the search index",
	Long: `Scans the layout directory for .layout.json files, fuses their blocks
into content units, embeds them and writes both stores. Documents whose
content hash is unchanged since the last run are skipped.`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().Int("workers", 0, "max parallel documents (overrides config)")
	ingestCmd.Flags().Bool("force", false, "re-ingest documents even when unchanged")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	workers, _ := cmd.Flags().GetInt("workers")
	if workers > 0 {
		cfg.Ingest.Workers = workers
	}
	force, _ := cmd.Flags().GetBool("force")

	if verbose {
		fmt.Fprintf(os.Stderr, "Scanning layout files in %s...\n", cfg.LayoutDir)
	}
	files, err := layout.Scan(layout.ScanConfig{
		RootDir: cfg.LayoutDir,
		Include: cfg.Include,
		Exclude: cfg.Exclude,
	})
	if err != nil {
		return fmt.Errorf("scanning layout files: %w", err)
	}
	if len(files) == 0 {
		fmt.Println("No layout files found to ingest.")
		return nil
	}
	if verbose {
		fmt.Fprintf(os.Stderr, "Found %d layout files\n", len(files))
	}

	embedder, err := createEmbedderFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("creating embedder: %w", err)
	}
	dispatcher := createDispatcher(cfg, embedder)

	store, index, err := openStores(cfg, embedder, false)
	if err != nil {
		return err
	}
	defer store.Close()

	if force {
		if err := os.Remove(ingest.StatePath(cfg.DataDir)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("clearing ingest state: %w", err)
		}
	}

	builder := fuse.NewBuilder(
		cfg.Chunking.MinTokens,
		cfg.Chunking.MaxTokens,
		cfg.Chunking.ChunkOverlap,
		cfg.MachineKeywords,
	)
	pipeline := ingest.NewPipeline(dispatcher, store, index, builder, cfg.DataDir, cfg.Ingest.Workers)

	reporter := progress.NewReporter()
	reporter.Start(len(files))
	pipeline.SetProgressFunc(func(done, total int, report ingest.DocReport) {
		title := report.Title
		if title == "" {
			title = filepath.Base(report.FilePath)
		}
		reporter.Doc(done, progress.Doc{
			Title:   title,
			Units:   report.Units - len(report.FailedUnits),
			Skipped: report.Skipped,
			Failed:  report.Failed,
		})
	})

	result, err := pipeline.Run(ctx, files)
	reporter.Finish()
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	fmt.Println()
	fmt.Println("Ingestion complete!")
	fmt.Printf("  Documents processed: %d\n", result.DocsProcessed)
	fmt.Printf("  Documents skipped:   %d (unchanged)\n", result.DocsSkipped)
	fmt.Printf("  Documents failed:    %d\n", result.DocsFailed)
	fmt.Printf("  Units indexed:       %d\n", result.UnitsIndexed)
	if result.UnitsFailed > 0 {
		fmt.Printf("  Units failed:        %d (will be retried on next run)\n", result.UnitsFailed)
	}
	fmt.Printf("  Duration:            %s\n", result.Duration.Round(time.Millisecond))
	if verbose {
		fmt.Printf("  Run ID:              %s\n", result.RunID)
	}

	if len(result.Errors) > 0 {
		fmt.Fprintf(os.Stderr, "\nWarnings (%d):\n", len(result.Errors))
		for _, e := range result.Errors {
			fmt.Fprintf(os.Stderr, "  - %v\n", e)
		}
	}

	return nil
}
