package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gyeh/feesched/internal/api"
	"github.com/gyeh/feesched/internal/engine"
	"github.com/gyeh/feesched/internal/exitcode"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the pricing, search and analysis HTTP API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&cfg.Listen, "listen", cfg.Listen, "HTTP listen address")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	log := newLogger()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	if err := e.Warm(ctx); err != nil {
		log.Warn().Err(err).Msg("reference data not warmed, years load on first use")
	}

	if err := api.NewServer(e, log).Start(ctx, cfg.Listen); err != nil {
		log.Error().Err(err).Msg("server failed")
		os.Exit(exitcode.UsageError)
	}
	log.Info().Msg("server stopped")
	return nil
}
