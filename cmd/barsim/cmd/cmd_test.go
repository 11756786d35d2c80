package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/barsim/config"
	"github.com/rustyeddy/barsim/journal"
)

const testBars = `time,open,high,low,close,volume
2023-04-20,10,10,10,10,1
2023-04-21,12,12,12,12,1
2023-04-22,9,9,9,9,1
`

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	require.NoError(t, err, buf.String())
	return buf.String()
}

// Commands share package-level flag state, so this runs as one sequence.
func TestBacktestAndJournal(t *testing.T) {
	dir := t.TempDir()
	data := filepath.Join(dir, "bars.csv")
	require.NoError(t, os.WriteFile(data, []byte(testBars), 0o644))
	db := filepath.Join(dir, "runs.sqlite")
	org := filepath.Join(dir, "run.org")
	env := filepath.Join(dir, "missing.env")
	t.Setenv(config.EnvClickHousePass, "s3cret-pass")

	out := execute(t, "backtest", "-q", "--env", env,
		"--data", data, "--instrument", "NATGAS", "--window", "2",
		"--journal", "sqlite", "--db", db, "--org", org)
	assert.Contains(t, out, "Backtest Result")
	assert.Contains(t, out, "Trades:        1")
	assert.Contains(t, out, "Run recorded:")
	assert.Contains(t, out, "=== PERFORMANCE REPORT ===")

	body, err := os.ReadFile(org)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(body), "* BACKTEST: sma-cross NATGAS"))
	assert.Contains(t, string(body), "#+begin_src yaml")
	assert.NotContains(t, string(body), "s3cret-pass")

	sq, err := journal.NewSQLite(db)
	require.NoError(t, err)
	ids, err := sq.ListBacktestRuns(context.Background())
	require.NoError(t, err)
	require.Len(t, ids, 1)
	run, err := sq.GetBacktestRun(context.Background(), ids[0])
	require.NoError(t, err)
	assert.NotEmpty(t, run.Config)
	assert.NotContains(t, string(run.Config), "s3cret-pass")
	require.NoError(t, sq.Close())

	out = execute(t, "journal", "runs", "--db", db, "--env", env)
	assert.Contains(t, out, "sma-cross")
	assert.Contains(t, out, "NATGAS")

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	runID := strings.Fields(lines[1])[0]

	out = execute(t, "journal", "trades", runID, "--db", db)
	assert.Contains(t, out, "buy")
	assert.Contains(t, out, "sell")

	out = execute(t, "journal", "equity", runID, "--db", db)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 4)

	out = execute(t, "journal", "org", runID, "--db", db)
	assert.Contains(t, out, "** Trade: SELL NATGAS long")
}

func TestConfigInitAndValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")

	out := execute(t, "config", "init", "-o", path)
	assert.Contains(t, out, "Created default configuration")

	out = execute(t, "config", "validate", "-f", path)
	assert.Contains(t, out, "Configuration valid")
	assert.Contains(t, out, "sma-cross NATGAS (SMA 50, size 1000)")
}

func TestVersion(t *testing.T) {
	out := execute(t, "version")
	assert.Equal(t, "barsim version "+version+"\n", out)
}
