package journal

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	recs, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return recs
}

func TestCSVJournalHeaders(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tradesPath := filepath.Join(dir, "trades.csv")
	equityPath := filepath.Join(dir, "equity.csv")

	j, err := NewCSV(tradesPath, equityPath)
	require.NoError(t, err)
	require.NoError(t, j.Close())

	assert.Equal(t, [][]string{tradeHeader}, readCSV(t, tradesPath))
	assert.Equal(t, [][]string{equityHeader}, readCSV(t, equityPath))
}

func TestCSVJournalRecords(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tradesPath := filepath.Join(dir, "trades.csv")
	equityPath := filepath.Join(dir, "equity.csv")

	j, err := NewCSV(tradesPath, equityPath)
	require.NoError(t, err)

	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, j.RecordTrade(TradeRecord{
		RunID:      "R1",
		TradeID:    "T1",
		Instrument: "NATGAS",
		Action:     "sell",
		Side:       "long",
		Units:      416,
		Price:      9,
		Time:       ts,
		Reason:     "stop_loss",
		NetProfit:  -12.5,
		BarsHeld:   3,
	}))
	require.NoError(t, j.RecordEquity(EquitySnapshot{RunID: "R1", Time: ts, Cash: 1000.1, Unrealized: -0.2, Equity: 999.9}))
	require.NoError(t, j.Close())

	trades := readCSV(t, tradesPath)
	require.Len(t, trades, 2)
	assert.Equal(t, []string{"R1", "T1", "NATGAS", "sell", "long", "416", "9.000000", "2024-01-02T03:04:05Z", "stop_loss", "-12.500000", "3"}, trades[1])

	equity := readCSV(t, equityPath)
	require.Len(t, equity, 2)
	assert.Equal(t, []string{"R1", "2024-01-02T03:04:05Z", "1000.100000", "-0.200000", "999.900000"}, equity[1])
}

func TestNewCSVBadPath(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, err := NewCSV(filepath.Join(dir, "missing", "trades.csv"), filepath.Join(dir, "equity.csv"))
	assert.Error(t, err)
}
