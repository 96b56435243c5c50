package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gyeh/feesched/internal/engine"
	"github.com/gyeh/feesched/internal/exitcode"
	"github.com/gyeh/feesched/internal/model"
	"github.com/gyeh/feesched/internal/pricing"
)

var priceOpts struct {
	code, modifier, zip, locality, setting string
	year                                   int
	json                                   bool
}

var priceCmd = &cobra.Command{
	Use:   "price",
	Short: "Price one code for a ZIP or locality",
	RunE:  runPrice,
}

func init() {
	f := priceCmd.Flags()
	f.StringVar(&priceOpts.code, "code", "", "CPT/HCPCS code (required)")
	f.StringVar(&priceOpts.modifier, "modifier", "", "Modifier, e.g. 26 or TC")
	f.StringVar(&priceOpts.zip, "zip", "", "Service ZIP code")
	f.StringVar(&priceOpts.locality, "locality", "", "Locality code, instead of --zip")
	f.IntVar(&priceOpts.year, "year", 0, "Fee schedule year (default: latest loaded)")
	f.StringVar(&priceOpts.setting, "setting", string(model.SettingNonFacility), "facility or non_facility")
	f.BoolVar(&priceOpts.json, "json", false, "Print the full quote as JSON")
	_ = priceCmd.MarkFlagRequired("code")
	priceCmd.MarkFlagsMutuallyExclusive("zip", "locality")
	rootCmd.AddCommand(priceCmd)
}

func runPrice(cmd *cobra.Command, args []string) error {
	log := newLogger()
	ctx := context.Background()

	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("config validation failed")
		os.Exit(exitcode.UsageError)
	}
	setting, err := model.ParseSetting(priceOpts.setting)
	if err != nil {
		log.Error().Err(err).Msg("invalid --setting")
		os.Exit(exitcode.UsageError)
	}

	e, err := engine.Open(ctx, &cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("open reference data failed")
		os.Exit(exitcode.DBConnError)
	}
	defer e.Close()

	q, err := e.Quote(ctx, pricing.QuoteRequest{
		Code:         priceOpts.code,
		Modifier:     priceOpts.modifier,
		Zip:          priceOpts.zip,
		LocalityCode: priceOpts.locality,
		Year:         priceOpts.year,
		Setting:      setting,
	})
	if err != nil {
		log.Error().Err(err).Msg("price lookup failed")
		os.Exit(exitFor(err))
	}

	if priceOpts.json {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(q)
	}

	code := q.Code
	if q.Modifier != "" {
		code += "-" + q.Modifier
	}
	fmt.Printf("Code:        %s (%s)\n", code, q.CodeSystem)
	fmt.Printf("Description: %s\n", q.Description)
	if q.Modifier != "" && !q.ModifierApplied {
		fmt.Println("Modifier:    no RVU row of its own, priced as the base code")
	}
	fmt.Printf("Year:        %d (%s)\n", q.Year, q.Setting)
	fmt.Printf("Locality:    %s %s, %s [%s", q.Locality.Code, q.Locality.Name, q.Locality.State, q.Resolution.Method)
	if q.Resolution.Fallback {
		fmt.Print(", fallback")
	}
	fmt.Println("]")
	fmt.Printf("CF:          %s\n", q.ConversionFactor.StringFixed(4))
	fmt.Printf("Price:       $%s\n", q.Price.StringFixed(2))
	fmt.Printf("National:    $%s\n", q.NationalPrice.StringFixed(2))
	return nil
}
