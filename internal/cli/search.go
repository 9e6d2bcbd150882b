package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ashfaque/local-search-in-scanned-pdf/internal/docstore"
	"github.com/ashfaque/local-search-in-scanned-pdf/internal/indexer"
	"github.com/ashfaque/local-search-in-scanned-pdf/internal/searcher"
)

var (
	searchLimit int
	searchJSON  bool
	searchExact bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the indexed corpus",
	Long: `Run a ranked search over the indexed documents. Terms are matched
exactly first; terms the OCR may have garbled are matched fuzzily and
reported with their expansions. Prefix a term with - to exclude documents
containing it.

Examples:
  pdfsearch search "invoice total"
  pdfsearch search 'contract -draft' --limit 5
  pdfsearch search hypotheek --exact --json`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "k", 0, "number of results (default from config)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output as JSON")
	searchCmd.Flags().BoolVar(&searchExact, "exact", false, "disable fuzzy term matching")
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	// Read path: recover the index from its newest segment, whichever
	// engine wrote it, and resolve snippets from the document store.
	engine, err := indexer.NewEngine(cfg.Index, "", nil)
	if err != nil {
		return fmt.Errorf("opening index: %w", err)
	}
	defer engine.Close()
	docs, err := docstore.NewBolt(cfg.Index.DataDir)
	if err != nil {
		return fmt.Errorf("opening document store: %w", err)
	}
	defer docs.Close()

	if engine.DocCount() == 0 {
		return fmt.Errorf("the index is empty; run 'pdfsearch ingest' first")
	}

	svc, err := searcher.New(engine, docs, cfg.Search, nil)
	if err != nil {
		return err
	}

	limit := cfg.Search.DefaultLimit
	if searchLimit > 0 {
		limit = searchLimit
	}
	search := svc.Search
	if searchExact {
		search = svc.SearchExact
	}
	result, err := search(ctx, args[0], limit)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	if result.TotalHits == 0 {
		fmt.Printf("No matches for %q.\n", result.Query)
		return nil
	}

	fmt.Printf("%d matching document(s) for %q:\n\n", result.TotalHits, result.Query)
	for i, hit := range result.Results {
		fmt.Printf("%2d. %s  (score %.2f%s)\n", i+1, hit.DocID, hit.Score, formatPages(hit.Pages))
		if hit.Snippet != "" {
			fmt.Printf("    %s\n", hit.Snippet)
		}
	}

	if len(result.Expansions) > 0 {
		fmt.Printf("\nFuzzy matches:\n")
		terms := make([]string, 0, len(result.Expansions))
		for term := range result.Expansions {
			terms = append(terms, term)
		}
		sort.Strings(terms)
		for _, term := range terms {
			var alts []string
			for _, m := range result.Expansions[term] {
				alts = append(alts, fmt.Sprintf("%s (%d docs)", m.Term, m.DocFreq))
			}
			fmt.Printf("  %s -> %s\n", term, strings.Join(alts, ", "))
		}
	}
	return nil
}

func formatPages(pages []int) string {
	if len(pages) == 0 {
		return ""
	}
	parts := make([]string, len(pages))
	for i, p := range pages {
		parts[i] = fmt.Sprint(p)
	}
	if len(pages) == 1 {
		return ", page " + parts[0]
	}
	return ", pages " + strings.Join(parts, ",")
}
