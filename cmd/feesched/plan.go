package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/gyeh/feesched/internal/exitcode"
	"github.com/gyeh/feesched/internal/ingest"
	"github.com/gyeh/feesched/internal/model"
	"github.com/gyeh/feesched/internal/refdata"
)

var planYear int

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Dry-run validation and stats of the CSV reference dataset (no writes)",
	RunE:  runPlan,
}

func init() {
	planCmd.Flags().IntVar(&planYear, "year", 0, "Year to inspect (default: every year in --data-dir)")
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	log := newLogger()
	ctx := context.Background()

	if _, err := os.Stat(cfg.DataDir); err != nil {
		log.Error().Err(err).Msg("data dir not accessible")
		os.Exit(exitcode.UsageError)
	}
	src := refdata.NewCSVSource(cfg.DataDir)

	years := []int{planYear}
	if planYear == 0 {
		var err error
		if years, err = src.Years(ctx); err != nil {
			log.Error().Err(err).Msg("list years failed")
			os.Exit(exitcode.ValidationError)
		}
	}

	fmt.Println("=== feesched plan ===")
	fmt.Printf("Data dir:   %s\n", cfg.DataDir)
	fmt.Printf("Years:      %v\n", years)

	for _, year := range years {
		insp, err := ingest.Inspect(ctx, src, year)
		if err != nil {
			log.Error().Err(err).Int("year", year).Msg("validation failed")
			if errors.Is(err, model.ErrUnsupportedYear) {
				os.Exit(exitcode.UnsupportedYear)
			}
			os.Exit(exitcode.ValidationError)
		}
		snap := insp.Snapshot

		fmt.Println()
		fmt.Printf("Year %d\n", year)
		fmt.Printf("  Conversion factor: %s\n", snap.ConversionFactor.StringFixed(4))
		fmt.Printf("  Codes:             %d\n", len(snap.Codes()))
		counts := model.CountByCodeSystem(snap.Codes())
		for _, cs := range model.AllCodeSystems {
			if n := counts[cs.Name]; n > 0 {
				fmt.Printf("    %-8s %6d  %s\n", cs.Name, n, cs.Label)
			}
		}
		if n := counts[""]; n > 0 {
			fmt.Printf("    %-8s %6d\n", "other", n)
		}
		fmt.Printf("  Localities:        %d\n", snap.NumLocalities())
		fmt.Printf("  ZIPs:              %d\n", snap.NumZips())
		fmt.Printf("  Dataset SHA-256:   %s\n", insp.FilesSHA256)
		for _, f := range insp.Files {
			fmt.Printf("    %-22s %10d bytes  %s\n", filepath.Base(f.Path), f.Size, f.SHA256)
		}
	}
	fmt.Println("\nValidation: OK")
	return nil
}
