package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/medsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/medsearch/internal/searcher/engine"
)

type queryOptions struct {
	categories []string
	limit      int
	offset     int
}

func newQueryCmd(global *globalOptions) *cobra.Command {
	var opts queryOptions

	cmd := &cobra.Command{
		Use:   "query <term>",
		Short: "Run a ranked search",
		Long: `Run a ranked, fuzzy search over the corpus.

Examples:
  searchctl query appendic --corpus configs/corpus.yaml
  searchctl query "chest pain" --corpus corpus.json --category symptoms --limit 5
  searchctl query fever --corpus corpus.json --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, global, opts, strings.Join(args, " "))
		},
	}

	cmd.Flags().StringSliceVarP(&opts.categories, "category", "c", nil, "Restrict to categories (repeatable)")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().IntVar(&opts.offset, "offset", 0, "Number of results to skip")
	return cmd
}

func runQuery(cmd *cobra.Command, global *globalOptions, opts queryOptions, term string) error {
	if opts.limit < 0 || opts.offset < 0 {
		return fmt.Errorf("limit and offset must be non-negative")
	}
	var cats []index.Category
	for _, c := range opts.categories {
		cat := index.Category(c)
		if !cat.Valid() {
			return fmt.Errorf("unknown category %q", c)
		}
		cats = append(cats, cat)
	}

	ws, err := loadWorkspace(cmd, global)
	if err != nil {
		return err
	}
	resp := ws.engine.Search(cmd.Context(), engine.Query{
		Term:       term,
		Categories: cats,
		Limit:      opts.limit,
		Offset:     opts.offset,
	})

	out := cmd.OutOrStdout()
	if global.format == "json" {
		return writeJSON(out, resp)
	}

	fmt.Fprintf(out, "%d result(s) for %q (%.2fms)\n", resp.TotalCount, term, resp.ElapsedMs)
	for i, r := range resp.Results {
		fmt.Fprintf(out, "%3d. [%s] %s (%s) score=%.3f match=%.3f relevance=%.3f\n",
			opts.offset+i+1, r.Category, r.Title, r.ID, r.Score, r.MatchScore, r.RelevanceScore)
	}
	if resp.HasMore {
		fmt.Fprintf(out, "... more results available, use --offset %d\n", opts.offset+len(resp.Results))
	}
	if len(resp.Facets) > 0 {
		fmt.Fprintln(out, "facets:")
		for _, cat := range index.Categories() {
			if n := resp.Facets[cat]; n > 0 {
				fmt.Fprintf(out, "  %-13s %d\n", cat, n)
			}
		}
	}
	if len(resp.Suggestions) > 0 {
		fmt.Fprintf(out, "suggestions: %s\n", strings.Join(resp.Suggestions, ", "))
	}
	return nil
}

func newSuggestCmd(global *globalOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "suggest <partial>",
		Short: "Complete a partial query from the indexed terms",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := loadWorkspace(cmd, global)
			if err != nil {
				return err
			}
			suggestions := ws.engine.Suggestions(args[0], limit)
			if global.format == "json" {
				return writeJSON(cmd.OutOrStdout(), suggestions)
			}
			for _, s := range suggestions {
				fmt.Fprintln(cmd.OutOrStdout(), s)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum number of suggestions")
	return cmd
}
