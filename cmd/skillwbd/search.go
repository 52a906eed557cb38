package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/skillwb/skillwb/pkg/searchindex"
)

var (
	searchTags       []string
	searchLayers     []string
	searchPlatforms  []string
	searchK          int
	searchDeprecated bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query text>",
	Short: "Run a hybrid BM25+embedding query against the index",
	Args:  cobra.ArbitraryArgs,
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().StringSliceVar(&searchTags, "tags", nil, "AND-filter tags")
	searchCmd.Flags().StringSliceVar(&searchLayers, "layers", nil, "OR-filter layers")
	searchCmd.Flags().StringSliceVar(&searchPlatforms, "platforms", nil, "OR-filter platforms")
	searchCmd.Flags().IntVar(&searchK, "k", 10, "result count")
	searchCmd.Flags().BoolVar(&searchDeprecated, "include-deprecated", false, "include deprecated skills")
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	svc, cleanup, err := buildService(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	q, err := searchindex.ParseQuery(strings.Join(args, " "), searchTags, searchLayers, searchPlatforms, searchDeprecated, searchK)
	if err != nil {
		return err
	}

	resp, err := svc.Search(ctx, q)
	if err != nil {
		return err
	}
	if resp.Warning != "" {
		fmt.Fprintln(cmd.ErrOrStderr(), "warning:", resp.Warning)
	}
	for _, r := range resp.Results {
		fmt.Fprintf(cmd.OutOrStdout(), "%-30s score=%.4f lex=%.4f sem=%.4f\n", r.ID, r.Score, r.BM25, r.Semantic)
	}
	return nil
}
