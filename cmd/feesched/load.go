package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gyeh/feesched/internal/db"
	"github.com/gyeh/feesched/internal/exitcode"
	"github.com/gyeh/feesched/internal/ingest"
	"github.com/gyeh/feesched/internal/model"
	"github.com/gyeh/feesched/internal/refdata"
)

var loadOpts ingest.Options

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load one reference year from --data-dir into Postgres",
	RunE:  runLoad,
}

func init() {
	f := loadCmd.Flags()
	f.IntVar(&loadOpts.Year, "year", 0, "Year to load (required)")
	f.BoolVar(&loadOpts.Force, "force", false, "Reload even if an identical dataset is already active")
	_ = loadCmd.MarkFlagRequired("year")
	rootCmd.AddCommand(loadCmd)
}

func runLoad(cmd *cobra.Command, args []string) error {
	log := newLogger()
	ctx := context.Background()

	if err := cfg.ValidateWithDSN(); err != nil {
		log.Error().Err(err).Msg("config validation failed")
		os.Exit(exitcode.UsageError)
	}
	if _, err := os.Stat(cfg.DataDir); err != nil {
		log.Error().Err(err).Msg("data dir not accessible")
		os.Exit(exitcode.UsageError)
	}

	pool, err := db.NewPool(ctx, cfg.DSN)
	if err != nil {
		log.Error().Err(err).Msg("database connection failed")
		os.Exit(exitcode.DBConnError)
	}
	defer pool.Close()

	summary, err := ingest.Run(ctx, pool, refdata.NewCSVSource(cfg.DataDir), log, loadOpts)
	if err != nil {
		var pe *ingest.PipelineError
		if errors.As(err, &pe) {
			log.Error().Err(pe.Err).Str("phase", pe.Phase).Msg("load failed")
			switch {
			case errors.Is(pe.Err, model.ErrUnsupportedYear):
				os.Exit(exitcode.UnsupportedYear)
			case pe.Phase == ingest.PhasePreflight:
				os.Exit(exitcode.ValidationError)
			default:
				os.Exit(exitcode.LoadError)
			}
		}
		log.Error().Err(err).Msg("load failed")
		os.Exit(exitcode.LoadError)
	}

	if summary.AlreadyLoaded {
		fmt.Printf("Year %d already loaded as dataset %s (use --force to reload)\n", summary.Year, summary.DatasetID)
		return nil
	}
	fmt.Printf("Load complete: year %d, %d codes, %d localities, %d ZIPs (%.1fs)\n",
		summary.Year, summary.CodesLoaded, summary.LocalitiesLoaded, summary.ZipsLoaded, summary.DurationTotal.Seconds())
	return nil
}
