package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gyeh/feesched/internal/engine"
	"github.com/gyeh/feesched/internal/exitcode"
	"github.com/gyeh/feesched/internal/search"
)

var searchOpts struct {
	query string
	year  int
	limit int
}

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search codes by code, prefix or description",
	RunE:  runSearch,
}

func init() {
	f := searchCmd.Flags()
	f.StringVarP(&searchOpts.query, "query", "q", "", "Search text (required)")
	f.IntVar(&searchOpts.year, "year", 0, "Fee schedule year (default: latest loaded)")
	f.IntVar(&searchOpts.limit, "limit", search.DefaultLimit, "Maximum results")
	_ = searchCmd.MarkFlagRequired("query")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	log := newLogger()
	ctx := context.Background()

	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("config validation failed")
		os.Exit(exitcode.UsageError)
	}

	e, err := engine.Open(ctx, &cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("open reference data failed")
		os.Exit(exitcode.DBConnError)
	}
	defer e.Close()

	results, err := e.Search(ctx, searchOpts.query, searchOpts.year, searchOpts.limit)
	if err != nil {
		log.Error().Err(err).Msg("search failed")
		os.Exit(exitFor(err))
	}

	if len(results) == 0 {
		fmt.Println("No matching codes.")
		return nil
	}
	for _, r := range results {
		code := r.Code
		if r.Modifier != "" {
			code += "-" + r.Modifier
		}
		fmt.Printf("%-9s %-8s %-11s %s\n", code, r.CodeSystem, r.Match, r.Description)
	}
	return nil
}
