package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/barsim/journal"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query the SQLite run journal",
	Long: `Query and display runs, trades and equity recorded by
"barsim backtest --journal sqlite".

Subcommands:
  runs            - List recorded runs, newest first
  org <run-id>    - Export a run and its trades as Org-mode
  trades <run-id> - List the ledger rows of a run
  equity <run-id> - List the equity curve of a run
  trade <id>      - Show a single ledger row
  day <date>      - List ledger rows filled on a day

Examples:
  barsim journal runs --db runs.sqlite
  barsim journal org 01HZX3... > run.org`,
}

var journalRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded runs",
	Args:  cobra.NoArgs,
	RunE:  runJournalRuns,
}

var journalOrgCmd = &cobra.Command{
	Use:   "org <run-id>",
	Short: "Export a run as Org-mode",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalOrg,
}

var journalTradesCmd = &cobra.Command{
	Use:   "trades <run-id>",
	Short: "List the ledger rows of a run",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalTrades,
}

var journalEquityCmd = &cobra.Command{
	Use:   "equity <run-id>",
	Short: "List the equity curve of a run",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalEquity,
}

var journalTradeCmd = &cobra.Command{
	Use:   "trade <trade-id>",
	Short: "Get details of a specific ledger row",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalTrade,
}

var journalDayCmd = &cobra.Command{
	Use:   "day <YYYY-MM-DD>",
	Short: "List ledger rows filled on a specific day (UTC)",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalDay,
}

var journalDBPath string

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalRunsCmd, journalOrgCmd, journalTradesCmd, journalEquityCmd, journalTradeCmd, journalDayCmd)

	journalCmd.PersistentFlags().StringVar(&journalDBPath, "db", "", "path to SQLite journal DB (default from config or BARSIM_JOURNAL_DB)")
}

func openJournalDB() (*journal.SQLite, error) {
	path := journalDBPath
	if path == "" {
		cfg, err := loadConfig()
		if err != nil {
			return nil, err
		}
		path = cfg.Journal.DBPath
	}
	if path == "" {
		path = "./barsim.sqlite"
	}
	j, err := journal.NewSQLite(path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return j, nil
}

func runJournalRuns(cmd *cobra.Command, args []string) error {
	j, err := openJournalDB()
	if err != nil {
		return err
	}
	defer j.Close()

	ids, err := j.ListBacktestRuns(cmd.Context())
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tCREATED\tSTRATEGY\tINSTRUMENT\tTRADES\tNET P/L")
	for _, id := range ids {
		r, err := j.GetBacktestRun(cmd.Context(), id)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%.2f\n",
			r.RunID, r.Created.Format(time.RFC3339), r.Strategy, r.Instrument, r.Trades, r.NetPL)
	}
	return w.Flush()
}

func runJournalOrg(cmd *cobra.Command, args []string) error {
	j, err := openJournalDB()
	if err != nil {
		return err
	}
	defer j.Close()

	s, err := j.ExportBacktestOrg(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), s)
	return nil
}

func runJournalTrades(cmd *cobra.Command, args []string) error {
	j, err := openJournalDB()
	if err != nil {
		return err
	}
	defer j.Close()

	recs, err := j.ListTrades(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("query trades: %w", err)
	}
	return printTrades(cmd, recs)
}

func runJournalEquity(cmd *cobra.Command, args []string) error {
	j, err := openJournalDB()
	if err != nil {
		return err
	}
	defer j.Close()

	pts, err := j.ListEquity(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("query equity: %w", err)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tCASH\tUNREALIZED\tEQUITY")
	for _, p := range pts {
		fmt.Fprintf(w, "%s\t%.2f\t%.2f\t%.2f\n", p.Time.Format(time.RFC3339), p.Cash, p.Unrealized, p.Equity)
	}
	return w.Flush()
}

func runJournalTrade(cmd *cobra.Command, args []string) error {
	j, err := openJournalDB()
	if err != nil {
		return err
	}
	defer j.Close()

	rec, err := j.GetTrade(args[0])
	if err != nil {
		return fmt.Errorf("get trade: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), journal.FormatTradeOrg(rec))
	return nil
}

func runJournalDay(cmd *cobra.Command, args []string) error {
	j, err := openJournalDB()
	if err != nil {
		return err
	}
	defer j.Close()

	start, end, err := dayBounds(time.UTC, args[0])
	if err != nil {
		return fmt.Errorf("date: %w", err)
	}

	recs, err := j.ListTradesBetween(cmd.Context(), start, end)
	if err != nil {
		return fmt.Errorf("query trades: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), journal.FormatTradesOrg(recs))
	return nil
}

func printTrades(cmd *cobra.Command, recs []journal.TradeRecord) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tACTION\tSIDE\tUNITS\tPRICE\tNET P/L\tBARS\tREASON")
	for _, r := range recs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.5f\t%.2f\t%d\t%s\n",
			r.Time.Format(time.RFC3339), r.Action, r.Side, r.Units, r.Price, r.NetProfit, r.BarsHeld, r.Reason)
	}
	return w.Flush()
}

func dayBounds(loc *time.Location, day string) (time.Time, time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", day, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	end := start.Add(24 * time.Hour)
	return start, end, nil
}
