// Package config loads the application configuration from an optional
// config.yaml plus FUNDSYNC_-prefixed environment variables, and owns
// global logger setup.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/fundsync/internal/provider"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Providers ProvidersConfig `yaml:"providers" mapstructure:"providers"`
	Scheduler SchedulerConfig `yaml:"scheduler" mapstructure:"scheduler"`
	Merge     MergeConfig     `yaml:"merge" mapstructure:"merge"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ProvidersConfig holds per-provider credentials and endpoints. An
// adapter with no API key is disabled, not an error.
type ProvidersConfig struct {
	AlphaVantage provider.AlphaVantageConfig `yaml:"alphavantage" mapstructure:"alphavantage"`
	FMP          provider.FMPConfig          `yaml:"fmp" mapstructure:"fmp"`
	Finnhub      provider.FinnhubConfig      `yaml:"finnhub" mapstructure:"finnhub"`
	Yahoo        provider.YahooConfig        `yaml:"yahoo" mapstructure:"yahoo"`
}

// SchedulerConfig configures batch sizing, freshness windows and the
// single-retry delay.
type SchedulerConfig struct {
	FundamentalsBatch          int `yaml:"fundamentals_batch" mapstructure:"fundamentals_batch"`
	StatementsBatch            int `yaml:"statements_batch" mapstructure:"statements_batch"`
	FundamentalsFreshnessHours int `yaml:"fundamentals_freshness_hours" mapstructure:"fundamentals_freshness_hours"`
	StatementsFreshnessDays    int `yaml:"statements_freshness_days" mapstructure:"statements_freshness_days"`
	RetryDelaySecs             int `yaml:"retry_delay_secs" mapstructure:"retry_delay_secs"`
	RecentHorizonDays          int `yaml:"recent_horizon_days" mapstructure:"recent_horizon_days"`
}

// MergeConfig selects the reconciliation policy. first_non_null folds
// providers in registry order; priority folds the named providers first.
type MergeConfig struct {
	Strategy string   `yaml:"strategy" mapstructure:"strategy"`
	Priority []string `yaml:"priority" mapstructure:"priority"`
}

// ServerConfig configures the HTTP trigger server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("FUNDSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("scheduler.fundamentals_batch", 10)
	v.SetDefault("scheduler.statements_batch", 1)
	v.SetDefault("scheduler.fundamentals_freshness_hours", 24)
	v.SetDefault("scheduler.statements_freshness_days", 7)
	v.SetDefault("scheduler.retry_delay_secs", 2)
	v.SetDefault("scheduler.recent_horizon_days", 30)
	v.SetDefault("merge.strategy", "first_non_null")
	v.SetDefault("providers.alphavantage.base_url", "https://www.alphavantage.co")
	v.SetDefault("providers.fmp.base_url", "https://financialmodelingprep.com/api/v3")
	v.SetDefault("providers.finnhub.base_url", "https://finnhub.io/api/v1")
	v.SetDefault("providers.yahoo.base_url", "https://query1.finance.yahoo.com")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the fields a given mode depends on. Provider keys are
// deliberately not required; a keyless provider is just disabled.
func (c *Config) Validate(mode string) error {
	var problems []string

	check := func() {
		switch c.Store.Driver {
		case "postgres", "sqlite":
		default:
			problems = append(problems, "store.driver must be postgres or sqlite")
		}
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
		if c.Scheduler.FundamentalsBatch < 1 || c.Scheduler.FundamentalsBatch > 100 {
			problems = append(problems, "scheduler.fundamentals_batch must be between 1 and 100")
		}
		if c.Scheduler.StatementsBatch < 1 || c.Scheduler.StatementsBatch > 100 {
			problems = append(problems, "scheduler.statements_batch must be between 1 and 100")
		}
		switch c.Merge.Strategy {
		case "first_non_null":
		case "priority":
			if len(c.Merge.Priority) == 0 {
				problems = append(problems, "merge.priority is required for the priority strategy")
			}
		default:
			problems = append(problems, "merge.strategy must be first_non_null or priority")
		}
	}

	switch mode {
	case "ingest", "migrate", "universe":
		check()
	case "serve":
		check()
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
