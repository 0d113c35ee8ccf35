// Package cmd provides the searchctl commands. Each command loads a corpus
// file into a fresh in-memory index and runs one operation against it.
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/medsearch/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/medsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/medsearch/internal/searcher/engine"
	"github.com/Adithya-Monish-Kumar-K/medsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/medsearch/pkg/logger"
)

type globalOptions struct {
	corpusPath string
	configPath string
	format     string
	verbose    bool
}

// NewRootCmd creates the root command for the searchctl CLI.
func NewRootCmd() *cobra.Command {
	var opts globalOptions

	cmd := &cobra.Command{
		Use:   "searchctl",
		Short: "Query a medical content corpus from the command line",
		Long: `searchctl loads a corpus file into an in-memory index and runs
searches, suggestions, statistics or exports against it.

A corpus file is a JSON or YAML mapping of category to record list, or an
index export blob.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.corpusPath, "corpus", "", "Corpus file (JSON, YAML or export blob)")
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Optional service config file for search and ranking settings")
	cmd.PersistentFlags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log index activity to stderr")
	_ = cmd.MarkPersistentFlagRequired("corpus")

	cmd.AddCommand(
		newQueryCmd(&opts),
		newSuggestCmd(&opts),
		newStatsCmd(&opts),
		newExportCmd(&opts),
	)
	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// workspace is a loaded corpus ready to query.
type workspace struct {
	cfg    *config.Config
	idx    *index.Index
	engine *engine.Engine
}

func loadWorkspace(cmd *cobra.Command, opts *globalOptions) (*workspace, error) {
	log := logger.Discard()
	if opts.verbose {
		log = logger.New(cmd.ErrOrStderr(), "debug", "text")
	}

	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	c, err := corpus.LoadFile(opts.corpusPath)
	if err != nil {
		return nil, fmt.Errorf("loading corpus %s: %w", opts.corpusPath, err)
	}
	idx := index.New(index.WithLogger(log))
	if err := c.Apply(idx); err != nil {
		return nil, fmt.Errorf("indexing corpus %s: %w", opts.corpusPath, err)
	}
	log.Debug("corpus indexed", slog.String("path", opts.corpusPath), slog.Int("documents", idx.Len()))

	return &workspace{
		cfg:    cfg,
		idx:    idx,
		engine: engine.New(idx, cfg.Search, engine.WithLogger(log)),
	}, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
