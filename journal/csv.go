package journal

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

var (
	tradeHeader  = []string{"run_id", "trade_id", "instrument", "action", "side", "units", "price", "time", "reason", "net_profit", "bars_held"}
	equityHeader = []string{"run_id", "time", "cash", "unrealized", "equity"}
)

type CSVJournal struct {
	trades *csv.Writer
	equity *csv.Writer
	tf, ef *os.File
}

var _ Journal = (*CSVJournal)(nil)

func NewCSV(tradesPath, equityPath string) (*CSVJournal, error) {
	tf, err := os.Create(tradesPath)
	if err != nil {
		return nil, err
	}
	ef, err := os.Create(equityPath)
	if err != nil {
		_ = tf.Close()
		return nil, err
	}

	j := &CSVJournal{csv.NewWriter(tf), csv.NewWriter(ef), tf, ef}
	if err := j.write(j.trades, tradeHeader); err != nil {
		_ = j.Close()
		return nil, err
	}
	if err := j.write(j.equity, equityHeader); err != nil {
		_ = j.Close()
		return nil, err
	}
	return j, nil
}

func (j *CSVJournal) RecordTrade(t TradeRecord) error {
	return j.write(j.trades, []string{
		t.RunID,
		t.TradeID,
		t.Instrument,
		t.Action,
		t.Side,
		strconv.FormatInt(t.Units, 10),
		f(t.Price),
		t.Time.UTC().Format(time.RFC3339),
		t.Reason,
		f(t.NetProfit),
		strconv.Itoa(t.BarsHeld),
	})
}

func (j *CSVJournal) RecordEquity(e EquitySnapshot) error {
	return j.write(j.equity, []string{
		e.RunID,
		e.Time.UTC().Format(time.RFC3339),
		f(e.Cash),
		f(e.Unrealized),
		f(e.Equity),
	})
}

func (j *CSVJournal) write(w *csv.Writer, rec []string) error {
	if err := w.Write(rec); err != nil {
		return fmt.Errorf("journal: csv write: %w", err)
	}
	w.Flush()
	return w.Error()
}

func (j *CSVJournal) Close() error {
	j.trades.Flush()
	j.equity.Flush()
	return errors.Join(j.trades.Error(), j.equity.Error(), j.tf.Close(), j.ef.Close())
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
