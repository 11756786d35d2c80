package journal

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"text/template"
	"time"
)

// BacktestRun mirrors the backtest_runs table.
type BacktestRun struct {
	RunID   string
	Created time.Time
	Dataset string

	Instrument string
	Strategy   string
	Window     int
	Config     []byte // effective config, YAML

	StopLossPct         float64
	TakeProfitPct       float64
	MaxPositionFraction float64
	MaxDrawdown         float64

	Start time.Time
	End   time.Time
	Bars  int

	Trades int
	Wins   int
	Losses int

	StartBalance float64
	EndBalance   float64

	NetPL        float64
	ReturnPct    float64
	WinRate      float64 // percent
	ProfitFactor float64 // +Inf without losses
	MaxDD        float64 // currency, <= 0

	OrgPath string
	Notes   []string
}

var backtestOrgFuncs = template.FuncMap{
	"mul100": func(x float64) float64 { return x * 100.0 },
	"num": func(x float64) string {
		if math.IsInf(x, 1) {
			return "inf"
		}
		if math.IsInf(x, -1) {
			return "-inf"
		}
		return fmt.Sprintf("%.2f", x)
	},
	"orTime": func(t time.Time) time.Time {
		if t.IsZero() {
			return time.Now()
		}
		return t
	},
}

var backtestOrg = template.Must(template.New("backtest").Funcs(backtestOrgFuncs).Parse(BacktestOrgTemplate))

// Org renders the run as an Org-mode entry.
func (v *BacktestRun) Org() (string, error) {
	buf := new(bytes.Buffer)
	if err := backtestOrg.Execute(buf, v); err != nil {
		return "", fmt.Errorf("journal: render backtest %s: %w", v.RunID, err)
	}
	return buf.String(), nil
}

// WriteOrg renders the run to OrgPath.
func (v *BacktestRun) WriteOrg() error {
	if v.OrgPath == "" {
		return fmt.Errorf("journal: backtest %s has no org path", v.RunID)
	}
	s, err := v.Org()
	if err != nil {
		return err
	}
	return os.WriteFile(v.OrgPath, []byte(s), 0o644)
}

const BacktestOrgTemplate = `* BACKTEST: {{.Strategy}} {{.Instrument}}
:PROPERTIES:
:RUN_ID:      {{if .RunID}}{{.RunID}}{{else}}(run-id?){{end}}
:STRATEGY:    {{.Strategy}}
:INSTRUMENT:  {{.Instrument}}
:DATASET:     {{if .Dataset}}{{.Dataset}}{{else}}(dataset?){{end}}
:WINDOW:      {{.Window}}
:START_DATE:  {{.Start.Format "2006-01-02"}}
:END_DATE:    {{.End.Format "2006-01-02"}}
:BARS:        {{.Bars}}
:START_BAL:   {{printf "%.2f" .StartBalance}}
:END_BAL:     {{printf "%.2f" .EndBalance}}
:NET_PL:      {{printf "%.2f" .NetPL}}
:RETURN_PCT:  {{printf "%.2f" .ReturnPct}}
:MAX_DD:      {{printf "%.2f" .MaxDD}}
:TRADES:      {{.Trades}}
:WINS:        {{.Wins}}
:LOSSES:      {{.Losses}}
:WIN_RATE:    {{printf "%.2f" .WinRate}}
:PROFIT_FAC:  {{num .ProfitFactor}}
:CREATED:     [{{(orTime .Created).Format "2006-01-02 Mon 15:04"}}]
:END:

** Risk Parameters
| Parameter             | Value |
|-----------------------+-------|
| Stop loss %           | {{printf "%.2f" (mul100 .StopLossPct)}} |
| Take profit %         | {{printf "%.2f" (mul100 .TakeProfitPct)}} |
| Max position % equity | {{printf "%.2f" (mul100 .MaxPositionFraction)}} |
| Max drawdown %        | {{printf "%.2f" (mul100 .MaxDrawdown)}} |

** Performance Summary
- Net P/L:          *{{printf "%.2f" .NetPL}}*
- Return:           *{{printf "%.2f" .ReturnPct}}%*
- Max Drawdown:     *{{printf "%.2f" .MaxDD}}*
- Win Rate:         *{{printf "%.2f" .WinRate}}%*
- Profit Factor:    *{{num .ProfitFactor}}*

** Trade Distribution
| Outcome | Count |
|---------+-------|
| Wins    | {{.Wins}} |
| Losses  | {{.Losses}} |
| Total   | {{.Trades}} |
{{- if .Config }}

** Config
#+begin_src yaml
{{printf "%s" .Config}}
#+end_src
{{- end }}
{{- if .Notes }}

** Observations
{{- range .Notes }}
- {{.}}
{{- end }}
{{- end }}
`
