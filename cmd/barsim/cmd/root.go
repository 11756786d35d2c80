package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rustyeddy/barsim/config"
	"github.com/rustyeddy/barsim/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "barsim",
	Short: "A deterministic bar replay backtester",
	Long: `Barsim replays historical OHLCV bars through a fixed pipeline:

  indicator (SMA) -> strategy -> risk validator -> execution ledger
  -> portfolio accountant -> performance report

Bars come from CSV, SQLite or ClickHouse. Trades and the equity curve can
be journaled to CSV or SQLite and exported as Org-mode.`,
	SilenceUsage: true,
}

var (
	cfgFile string
	envFile string
	verbose bool
	quiet   bool
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (YAML or JSON, default built-in)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "dotenv file with BARSIM_* overrides")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "log warnings and errors only")
}

// loadConfig reads --config (or the defaults) and applies the environment.
// Flag overrides are applied by each command.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if cfgFile != "" {
		var err error
		if cfg, err = config.LoadFromFile(cfgFile); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(envFile); err != nil {
		return nil, fmt.Errorf("env: %w", err)
	}
	return cfg, nil
}

func newLogger() (*zap.Logger, error) {
	return logging.New(verbose, quiet)
}
