package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/fundsync/internal/config"
	"github.com/sells-group/fundsync/internal/mapping"
	"github.com/sells-group/fundsync/internal/merge"
	"github.com/sells-group/fundsync/internal/provider"
	"github.com/sells-group/fundsync/internal/scheduler"
	"github.com/sells-group/fundsync/internal/store"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "fundsync",
	Short: "Financial fundamentals ingestion pipeline",
	Long:  "Fetches fundamentals and cash-flow statements from multiple market-data providers, reconciles them into canonical records, and persists them idempotently.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// env bundles the wired components a command needs.
type env struct {
	Store     store.Store
	Registry  *provider.Registry
	Scheduler *scheduler.Scheduler
}

func (e *env) Close() {
	if err := e.Store.Close(); err != nil {
		zap.L().Warn("store close failed", zap.Error(err))
	}
}

// initEnv opens the configured store and wires the provider registry,
// mapping tables and scheduler together.
func initEnv(ctx context.Context) (*env, error) {
	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	mappings, err := mapping.Load()
	if err != nil {
		st.Close()
		return nil, err
	}

	registry := provider.NewRegistry(
		provider.NewAlphaVantage(cfg.Providers.AlphaVantage),
		provider.NewFMP(cfg.Providers.FMP),
		provider.NewFinnhub(cfg.Providers.Finnhub),
		provider.NewYahoo(cfg.Providers.Yahoo),
	)

	sched := scheduler.New(schedulerConfig(cfg), st, registry, mappings)
	return &env{Store: st, Registry: registry, Scheduler: sched}, nil
}

func openStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	default:
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	}
}

func schedulerConfig(c *config.Config) scheduler.Config {
	strategy := merge.FirstNonNull
	if c.Merge.Strategy == "priority" {
		strategy = merge.PreferProviders(c.Merge.Priority...)
	}
	return scheduler.Config{
		FundamentalsBatch:     c.Scheduler.FundamentalsBatch,
		StatementsBatch:       c.Scheduler.StatementsBatch,
		FundamentalsFreshness: time.Duration(c.Scheduler.FundamentalsFreshnessHours) * time.Hour,
		StatementsFreshness:   time.Duration(c.Scheduler.StatementsFreshnessDays) * 24 * time.Hour,
		RetryDelay:            time.Duration(c.Scheduler.RetryDelaySecs) * time.Second,
		RecentHorizon:         time.Duration(c.Scheduler.RecentHorizonDays) * 24 * time.Hour,
		Strategy:              strategy,
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
