package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/fundsync/internal/scheduler"
)

var cashflowOpts struct {
	symbols       []string
	maxSymbols    int
	forceRefresh  bool
	skipQuarterly bool
	skipAnnual    bool
}

var cashflowCmd = &cobra.Command{
	Use:   "cashflow",
	Short: "Run one cash-flow statement ingestion batch",
	Long:  "Fetches quarterly then annual cash-flow statements for a small batch of symbols, skipping fiscal periods already stored within the freshness window.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("ingest"); err != nil {
			return err
		}

		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		rep, err := env.Scheduler.RunCashFlow(cmd.Context(), scheduler.Options{
			Symbols:       cashflowOpts.symbols,
			MaxSymbols:    cashflowOpts.maxSymbols,
			ForceRefresh:  cashflowOpts.forceRefresh,
			SkipQuarterly: cashflowOpts.skipQuarterly,
			SkipAnnual:    cashflowOpts.skipAnnual,
		})
		if err != nil {
			return err
		}

		return printReport(rep)
	},
}

func init() {
	cashflowCmd.Flags().StringSliceVar(&cashflowOpts.symbols, "symbols", nil, "explicit symbols instead of universe selection")
	cashflowCmd.Flags().IntVar(&cashflowOpts.maxSymbols, "max-symbols", 0, "cap the batch size for this run")
	cashflowCmd.Flags().BoolVar(&cashflowOpts.forceRefresh, "force-refresh", false, "ignore the freshness guard")
	cashflowCmd.Flags().BoolVar(&cashflowOpts.skipQuarterly, "skip-quarterly", false, "skip the quarterly pass")
	cashflowCmd.Flags().BoolVar(&cashflowOpts.skipAnnual, "skip-annual", false, "skip the annual pass")
	rootCmd.AddCommand(cashflowCmd)
}
