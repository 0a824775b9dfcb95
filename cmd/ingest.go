package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/fundsync/internal/scheduler"
)

var ingestOpts struct {
	symbols          []string
	maxSymbols       int
	forceRefresh     bool
	prioritizeRecent bool
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run one fundamentals ingestion batch",
	Long:  "Selects a batch of stale symbols (or the given explicit list), fetches fundamentals from all enabled providers, merges and persists them. Re-run to work through the rest of the universe.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("ingest"); err != nil {
			return err
		}

		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		rep, err := env.Scheduler.RunFundamentals(cmd.Context(), scheduler.Options{
			Symbols:          ingestOpts.symbols,
			MaxSymbols:       ingestOpts.maxSymbols,
			ForceRefresh:     ingestOpts.forceRefresh,
			PrioritizeRecent: ingestOpts.prioritizeRecent,
		})
		if err != nil {
			return err
		}

		return printReport(rep)
	},
}

func printReport(rep *scheduler.Report) error {
	out, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func init() {
	ingestCmd.Flags().StringSliceVar(&ingestOpts.symbols, "symbols", nil, "explicit symbols instead of universe selection")
	ingestCmd.Flags().IntVar(&ingestOpts.maxSymbols, "max-symbols", 0, "cap the batch size for this run")
	ingestCmd.Flags().BoolVar(&ingestOpts.forceRefresh, "force-refresh", false, "ignore the freshness guard")
	ingestCmd.Flags().BoolVar(&ingestOpts.prioritizeRecent, "prioritize-recent", false, "order the batch by recent store activity")
	rootCmd.AddCommand(ingestCmd)
}
