package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/fundsync/internal/scheduler"
)

var universeSeedSymbols []string

var universeCmd = &cobra.Command{
	Use:   "universe",
	Short: "Manage the tracked symbol universe",
}

var universeSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Install symbols into the universe table",
	Long:  "Inserts the given symbols (or the built-in fallback list) into the universe table, skipping any that already exist.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("universe"); err != nil {
			return err
		}

		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		symbols := universeSeedSymbols
		if len(symbols) == 0 {
			symbols = scheduler.FallbackUniverse
		}

		added, err := env.Store.SeedUniverse(cmd.Context(), symbols)
		if err != nil {
			return err
		}
		zap.L().Info("universe seeded",
			zap.Int("requested", len(symbols)),
			zap.Int("added", added),
		)
		return nil
	},
}

var universeListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the tracked symbols",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("universe"); err != nil {
			return err
		}

		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		const page = 500
		for offset := 0; ; offset += page {
			symbols, err := env.Store.ListUniverse(cmd.Context(), page, offset)
			if err != nil {
				return err
			}
			for _, sym := range symbols {
				fmt.Println(sym)
			}
			if len(symbols) < page {
				return nil
			}
		}
	},
}

func init() {
	universeSeedCmd.Flags().StringSliceVar(&universeSeedSymbols, "symbols", nil, "symbols to install (default: built-in fallback list)")
	universeCmd.AddCommand(universeSeedCmd)
	universeCmd.AddCommand(universeListCmd)
	rootCmd.AddCommand(universeCmd)
}
