package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/mkoblar/machdoc/internal/query"
)

var queryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Search the ingested machine documentation",
	Long: `Runs a hybrid keyword+semantic search over the ingested content units
and prints the ranked results with their provenance.`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().Int("top-k", 0, "maximum number of results (overrides config)")
	queryCmd.Flags().Float64("alpha", -1, "hybrid weight: 1 pure vector, 0 pure keyword (overrides config)")
	queryCmd.Flags().String("doc", "", "restrict results to one document id")
	queryCmd.Flags().String("type", "", "filter by unit type: TEXT_ONLY or IMAGE_WITH_CONTEXT")
	queryCmd.Flags().StringSlice("tags", nil, "tags a result must carry")
	queryCmd.Flags().Bool("no-rerank", false, "skip the rerank pass")
	queryCmd.Flags().Bool("json", false, "output results as JSON")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	queryText := args[0]

	topK, _ := cmd.Flags().GetInt("top-k")
	alpha, _ := cmd.Flags().GetFloat64("alpha")
	docID, _ := cmd.Flags().GetString("doc")
	unitType, _ := cmd.Flags().GetString("type")
	tags, _ := cmd.Flags().GetStringSlice("tags")
	noRerank, _ := cmd.Flags().GetBool("no-rerank")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	embedder, err := createEmbedderFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("creating embedder: %w", err)
	}
	dispatcher := createDispatcher(cfg, embedder)

	store, index, err := openStores(cfg, embedder, true)
	if err != nil {
		return err
	}
	defer store.Close()

	if index.Count() == 0 {
		fmt.Println("The index is empty. Run `machdoc ingest` first.")
		return nil
	}

	orchestrator, err := createOrchestrator(cfg, dispatcher, store, index)
	if err != nil {
		return err
	}

	req := query.Request{
		Query:    queryText,
		TopK:     topK,
		DocID:    docID,
		UnitType: unitType,
		Tags:     tags,
	}
	if noRerank {
		off := false
		req.Rerank = &off
	}
	if alpha >= 0 {
		req.Alpha = &alpha
	}

	resp, err := orchestrator.Run(ctx, req)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	printResults(resp)
	return nil
}

func printResults(resp *query.Response) {
	if len(resp.Results) == 0 {
		fmt.Println("No results found.")
		return
	}

	header := fmt.Sprintf("%d result(s)", len(resp.Results))
	if resp.Reranked {
		header += " (reranked)"
	} else if resp.Degraded {
		header += " (rerank unavailable, blended ordering)"
	}
	fmt.Println(header)
	fmt.Println()

	for i, r := range resp.Results {
		fmt.Printf("%d. %s — page %d", i+1, r.Provenance.Title, r.Provenance.PageNumber)
		if r.Provenance.SectionPath != "" {
			fmt.Printf(" — %s", r.Provenance.SectionPath)
		}
		fmt.Println()
		fmt.Printf("   unit: %s  score: %.3f", r.Unit.UnitID, r.Scores.Combined)
		if r.Unit.HasImage() {
			fmt.Printf("  image: %s", r.Unit.ImageID)
		}
		if len(r.Unit.Tags) > 0 {
			fmt.Printf("  tags: %s", strings.Join(r.Unit.Tags, ","))
		}
		fmt.Println()
		fmt.Printf("   %s\n\n", snippet(r.Unit.Text, 240))
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "timing: embed=%dms search=%dms rerank=%dms assemble=%dms total=%dms\n",
			resp.Timing.Embed, resp.Timing.Search, resp.Timing.Rerank, resp.Timing.Assemble, resp.Timing.Total)
	}
}

func snippet(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
