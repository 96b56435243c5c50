package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gyeh/feesched/internal/contractfile"
	"github.com/gyeh/feesched/internal/engine"
	"github.com/gyeh/feesched/internal/exitcode"
	"github.com/gyeh/feesched/internal/model"
)

var analyzeOpts struct {
	file, out, zip, locality, setting string
	year                              int
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Compare a contracted rate sheet (CSV or XLSX) to the fee schedule",
	RunE:  runAnalyze,
}

func init() {
	f := analyzeCmd.Flags()
	f.StringVar(&analyzeOpts.file, "file", "", "Rate sheet, .csv or .xlsx (required)")
	f.StringVar(&analyzeOpts.out, "out", "", "Write the result to .csv, .xlsx, .parquet or .json")
	f.StringVar(&analyzeOpts.zip, "zip", "", "Service ZIP code")
	f.StringVar(&analyzeOpts.locality, "locality", "", "Locality code, instead of --zip")
	f.IntVar(&analyzeOpts.year, "year", 0, "Fee schedule year (default: latest loaded)")
	f.StringVar(&analyzeOpts.setting, "setting", string(model.SettingNonFacility), "facility or non_facility")
	_ = analyzeCmd.MarkFlagRequired("file")
	analyzeCmd.MarkFlagsMutuallyExclusive("zip", "locality")
	analyzeCmd.MarkFlagsOneRequired("zip", "locality")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	log := newLogger()
	ctx := context.Background()

	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("config validation failed")
		os.Exit(exitcode.UsageError)
	}
	setting, err := model.ParseSetting(analyzeOpts.setting)
	if err != nil {
		log.Error().Err(err).Msg("invalid --setting")
		os.Exit(exitcode.UsageError)
	}
	inFormat, err := contractfile.FormatFromName(analyzeOpts.file)
	if err != nil {
		log.Error().Err(err).Msg("unsupported rate sheet")
		os.Exit(exitcode.UsageError)
	}
	var outFormat contractfile.Format
	if analyzeOpts.out != "" {
		if outFormat, err = contractfile.FormatFromName(analyzeOpts.out); err != nil {
			log.Error().Err(err).Msg("unsupported --out format")
			os.Exit(exitcode.UsageError)
		}
	}

	in, err := os.Open(analyzeOpts.file)
	if err != nil {
		log.Error().Err(err).Msg("open rate sheet failed")
		os.Exit(exitcode.UsageError)
	}
	defer in.Close()

	e, err := engine.Open(ctx, &cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("open reference data failed")
		os.Exit(exitcode.DBConnError)
	}
	defer e.Close()

	result, err := e.AnalyzeFile(ctx, in, inFormat, model.AnalysisRequest{
		Zip:          analyzeOpts.zip,
		LocalityCode: analyzeOpts.locality,
		Year:         analyzeOpts.year,
		Setting:      setting,
	})
	if err != nil {
		log.Error().Err(err).Str("file", analyzeOpts.file).Msg("analysis failed")
		os.Exit(exitFor(err))
	}

	if analyzeOpts.out != "" {
		if err := writeResult(analyzeOpts.out, result, outFormat); err != nil {
			log.Error().Err(err).Str("out", analyzeOpts.out).Msg("write result failed")
			os.Exit(exitcode.AnalysisError)
		}
	}
	printAnalysis(result)
	return nil
}

func writeResult(path string, result *model.AnalysisResult, f contractfile.Format) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := contractfile.Write(out, result, f); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func printAnalysis(r *model.AnalysisResult) {
	loc := r.Resolution.Locality
	fmt.Println("=== feesched analyze ===")
	fmt.Printf("Analysis:    %s\n", r.AnalysisID)
	fmt.Printf("Year:        %d (%s), CF %s\n", r.Year, r.Setting, r.ConversionFactor.StringFixed(4))
	fmt.Printf("Locality:    %s %s, %s [%s]\n", loc.Code, loc.Name, loc.State, r.Resolution.Method)
	fmt.Printf("Lines:       %d (%d matched, %d unmatched)\n", r.TotalCodes, r.CodesMatched, r.CodesUnmatched)
	fmt.Printf("Below/above: %d below, %d above, %d equal\n", r.CountBelow, r.CountAbove, r.CountEqual)
	fmt.Printf("Contracted:  $%s\n", r.TotalContracted.StringFixed(2))
	fmt.Printf("Benchmark:   $%s\n", r.TotalBenchmark.StringFixed(2))
	fmt.Printf("Variance:    $%s\n", r.TotalVariance.StringFixed(2))
	fmt.Printf("Rev. impact: $%s\n", r.TotalRevenueImpact.StringFixed(2))

	if len(r.RedFlags) > 0 {
		fmt.Printf("\nRed flags (variance <= %s%%):\n", r.RedFlagThreshold.String())
		for _, it := range r.RedFlags {
			fmt.Printf("  line %-4d %-9s contracted $%-10s benchmark $%-10s %s%%\n",
				it.Line, it.Code, it.ContractedRate.StringFixed(2), it.BenchmarkRate.StringFixed(2), it.VariancePct.StringFixed(2))
		}
	}

	var failed bool
	for _, it := range r.LineItems {
		if it.Error == "" {
			continue
		}
		if !failed {
			fmt.Println("\nUnmatched lines:")
			failed = true
		}
		fmt.Printf("  line %-4d %-9s %s: %s\n", it.Line, it.Code, it.ErrorKind, it.Error)
	}
}
