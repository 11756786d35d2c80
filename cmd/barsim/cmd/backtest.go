package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/barsim/backtest"
	"github.com/rustyeddy/barsim/config"
	"github.com/rustyeddy/barsim/internal/id"
	"github.com/rustyeddy/barsim/journal"
	"github.com/rustyeddy/barsim/strategies"
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Replay bars through the SMA pipeline",
	Long: `Backtest replays OHLCV bars in time order and prints the trade
summary and performance report.

Flags override the config file, which overrides the defaults.

Examples:
  barsim backtest --data data/natgas.csv --instrument NATGAS --window 50
  barsim backtest --source sqlite --data bars.db --from 2023-01-01 --to 2023-06-30
  barsim backtest -c backtest.yaml --journal sqlite --db runs.sqlite`,
	RunE: runBacktest,
}

var (
	btSource       string
	btData         string
	btTable        string
	btFrom         string
	btTo           string
	btInstrument   string
	btStrategy     string
	btWindow       int
	btSize         int64
	btCash         float64
	btEnforceStops bool
	btCloseEnd     bool
	btJournal      string
	btDBPath       string
	btTradesCSV    string
	btEquityCSV    string
	btOrgPath      string
)

func init() {
	rootCmd.AddCommand(backtestCmd)

	f := backtestCmd.Flags()
	f.StringVar(&btSource, "source", "", "bar source: csv, sqlite or clickhouse")
	f.StringVarP(&btData, "data", "d", "", "CSV file or SQLite database with bars")
	f.StringVar(&btTable, "table", "", "bars table for sqlite/clickhouse")
	f.StringVar(&btFrom, "from", "", "first bar time, inclusive (RFC3339 or YYYY-MM-DD)")
	f.StringVar(&btTo, "to", "", "last bar time, inclusive (RFC3339 or YYYY-MM-DD)")
	f.StringVarP(&btInstrument, "instrument", "i", "", "instrument symbol")
	f.StringVarP(&btStrategy, "strategy", "s", "", "strategy name (sma-cross, noop)")
	f.IntVarP(&btWindow, "window", "w", 0, "SMA window")
	f.Int64Var(&btSize, "size", 0, "strategy signal size")
	f.Float64VarP(&btCash, "cash", "b", 0, "starting cash")
	f.BoolVar(&btEnforceStops, "enforce-stops", false, "close positions when a bar touches their stop or take-profit")
	f.BoolVar(&btCloseEnd, "close-end", false, "close open positions at the last close")
	f.StringVar(&btJournal, "journal", "", "journal type: none, csv or sqlite")
	f.StringVar(&btDBPath, "db", "", "SQLite journal path")
	f.StringVar(&btTradesCSV, "trades", "", "CSV journal trades file")
	f.StringVar(&btEquityCSV, "equity", "", "CSV journal equity file")
	f.StringVar(&btOrgPath, "org", "", "write an Org-mode run summary to this file")
}

// applyBacktestFlags copies the flags that were set onto cfg.
func applyBacktestFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	set := func(name string, apply func()) {
		if flags.Changed(name) {
			apply()
		}
	}
	set("source", func() { cfg.Data.Source = btSource })
	set("data", func() { cfg.Data.Path = btData })
	set("table", func() { cfg.Data.Table = btTable })
	set("from", func() { cfg.Data.From = btFrom })
	set("to", func() { cfg.Data.To = btTo })
	set("instrument", func() { cfg.Strategy.Instrument = btInstrument })
	set("strategy", func() { cfg.Strategy.Name = btStrategy })
	set("window", func() { cfg.Indicator.Window = btWindow })
	set("size", func() { cfg.Strategy.Size = btSize })
	set("cash", func() { cfg.Account.StartingCash = btCash })
	set("enforce-stops", func() { cfg.Risk.EnforceStops = btEnforceStops })
	set("journal", func() { cfg.Journal.Type = btJournal })
	set("db", func() { cfg.Journal.DBPath = btDBPath })
	set("trades", func() { cfg.Journal.TradesFile = btTradesCSV })
	set("equity", func() { cfg.Journal.EquityFile = btEquityCSV })
}

func runBacktest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyBacktestFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log, err := newLogger()
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	runID := id.New()
	log = log.With(zap.String("run_id", runID))

	j, sqlj, err := openJournal(cfg)
	if err != nil {
		return err
	}
	if j != nil {
		defer j.Close()
	}

	from, to, err := cfg.Range()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	feed, err := openFeed(ctx, cfg, from, to)
	if err != nil {
		return fmt.Errorf("open data: %w", err)
	}

	strat, err := strategies.ByName(cfg.Strategy.Name, cfg.StrategyParams())
	if err != nil {
		_ = feed.Close()
		return fmt.Errorf("strategy: %w", err)
	}

	pcfg := backtest.Config{
		Instrument:   cfg.Strategy.Instrument,
		Window:       cfg.Indicator.Window,
		Strategy:     strat,
		Policy:       cfg.Policy(),
		StartingCash: cfg.Account.StartingCash,
		Start:        from,
		EnforceStops: cfg.Risk.EnforceStops,
		Journal:      j,
		RunID:        runID,
		Logger:       log,
	}
	pipe, err := backtest.NewPipeline(pcfg)
	if err != nil {
		_ = feed.Close()
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Running backtest %s with strategy: %s\n", runID, strat.Name())
	fmt.Fprintf(out, "  Data: %s %s\n", cfg.Data.Source, cfg.Data.Path)
	fmt.Fprintf(out, "  Journal: %s\n\n", cfg.Journal.Type)

	runner := &backtest.Runner{
		Pipeline: pipe,
		Feed:     feed,
		Options:  backtest.Options{CloseEnd: btCloseEnd},
		Logger:   log,
	}
	res, err := runner.Run(ctx)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	backtest.PrintResult(out, res)

	if sqlj == nil && btOrgPath == "" {
		return nil
	}

	raw, err := yaml.Marshal(cfg.Redacted())
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	run := res.BacktestRun(backtest.RunInfo{
		RunID:      runID,
		Dataset:    cfg.Data.Path,
		Instrument: cfg.Strategy.Instrument,
		Strategy:   strat.Name(),
		Window:     cfg.Indicator.Window,
		Config:     raw,
		Policy:     cfg.Policy(),
		OrgPath:    btOrgPath,
	}, time.Now().UTC())

	var errs []error
	if sqlj != nil {
		if err := sqlj.RecordBacktest(ctx, run); err != nil {
			errs = append(errs, err)
		} else {
			fmt.Fprintf(out, "\nRun recorded: %s\n", runID)
		}
	}
	if btOrgPath != "" {
		if err := run.WriteOrg(); err != nil {
			errs = append(errs, err)
		} else {
			fmt.Fprintf(out, "Org summary: %s\n", btOrgPath)
		}
	}
	return errors.Join(errs...)
}

// openJournal returns the configured journal, plus the SQLite journal when
// that is the type so the run summary can be stored too.
func openJournal(cfg *config.Config) (journal.Journal, *journal.SQLite, error) {
	switch cfg.Journal.Type {
	case "csv":
		j, err := journal.NewCSV(cfg.Journal.TradesFile, cfg.Journal.EquityFile)
		if err != nil {
			return nil, nil, fmt.Errorf("open journal: %w", err)
		}
		return j, nil, nil
	case "sqlite":
		j, err := journal.NewSQLite(cfg.Journal.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open journal: %w", err)
		}
		return j, j, nil
	default:
		return nil, nil, nil
	}
}

func openFeed(ctx context.Context, cfg *config.Config, from, to time.Time) (backtest.BarFeed, error) {
	switch cfg.Data.Source {
	case config.SourceSQLite:
		return backtest.NewSQLiteBarFeed(ctx, cfg.Data.Path, cfg.Data.Table, cfg.Strategy.Instrument, from, to)
	case config.SourceClickHouse:
		ch := cfg.Data.ClickHouse
		return backtest.NewClickHouseBarFeed(ctx, backtest.ClickHouseConfig{
			Addr:     ch.Addr,
			Database: ch.Database,
			Username: ch.Username,
			Password: ch.Password,
			Table:    cfg.Data.Table,
		}, cfg.Strategy.Instrument, from, to)
	default:
		return backtest.NewCSVBarFeed(cfg.Data.Path, cfg.Strategy.Instrument, from, to)
	}
}
