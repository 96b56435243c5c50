package main

import (
	"errors"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/gyeh/feesched/internal/config"
	"github.com/gyeh/feesched/internal/exitcode"
	"github.com/gyeh/feesched/internal/logging"
	"github.com/gyeh/feesched/internal/model"
)

var (
	cfg        = config.Default()
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "feesched",
	Short: "Physician fee schedule pricing and contract variance analysis",
	Long: "Prices procedure codes against the yearly RVU, GPCI and conversion factor tables, " +
		"searches the code table, and compares contracted rate sheets to the Medicare benchmark.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configPath == "" {
			return nil
		}
		return cfg.LoadFromFile(configPath, cmd.Flags().Changed)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "YAML config file")
	pf.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "Reference dataset directory")
	pf.StringVar(&cfg.Source, "source", cfg.Source, "Reference source: csv or postgres")
	pf.StringVar(&cfg.DSN, "dsn", cfg.DSN, "Postgres connection string (or set "+config.DSNEnv+")")
	pf.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format: text or json")
	pf.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
}

func newLogger() zerolog.Logger {
	return logging.Setup(cfg.LogFormat, cfg.LogLevel)
}

// exitFor maps a domain error to the process exit code.
func exitFor(err error) int {
	switch model.KindOf(err) {
	case model.KindUnsupportedYear:
		return exitcode.UnsupportedYear
	case model.KindCodeNotFound, model.KindLocalityNotFound:
		return exitcode.NotFound
	case model.KindInvalidInput, model.KindLocalityUnresolvable, model.KindRowParse:
		return exitcode.ValidationError
	}
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return exitcode.UsageError
	}
	return exitcode.AnalysisError
}
