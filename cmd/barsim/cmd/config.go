package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/barsim/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Generate or validate configuration files",
	Long: `Manage configuration files for backtests.

Subcommands:
  init     - Generate a default configuration file
  validate - Validate an existing configuration file

Examples:
  barsim config init -o backtest.yaml
  barsim config validate -f backtest.yaml`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a default configuration file",
	RunE:  runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	RunE:  runConfigValidate,
}

var (
	configInitOutput   string
	configValidatePath string
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)

	configInitCmd.Flags().StringVarP(&configInitOutput, "output", "o", "backtest.yaml", "output config file path")
	configValidateCmd.Flags().StringVarP(&configValidatePath, "file", "f", "", "path to config file (required)")
	configValidateCmd.MarkFlagRequired("file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if err := cfg.SaveToFile(configInitOutput); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Created default configuration: %s\n", configInitOutput)
	fmt.Fprintln(out, "\nEdit the file and run with:")
	fmt.Fprintf(out, "  barsim backtest --config %s\n", configInitOutput)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(configValidatePath)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Configuration valid: %s\n", configValidatePath)
	fmt.Fprintf(out, "  Account: $%.2f\n", cfg.Account.StartingCash)
	fmt.Fprintf(out, "  Strategy: %s %s (SMA %d, size %d)\n", cfg.Strategy.Name, cfg.Strategy.Instrument, cfg.Indicator.Window, cfg.Strategy.Size)
	fmt.Fprintf(out, "  Risk: max DD %.1f%%, stop %.2f%%, take %.2f%%\n",
		cfg.Risk.MaxDrawdown*100, cfg.Risk.StopLossPct*100, cfg.Risk.TakeProfitPct*100)
	fmt.Fprintf(out, "  Data: %s %s\n", cfg.Data.Source, cfg.Data.Path)
	fmt.Fprintf(out, "  Journal: %s\n", cfg.Journal.Type)
	return nil
}
