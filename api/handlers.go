package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/barsim/backtest"
	"github.com/rustyeddy/barsim/config"
	"github.com/rustyeddy/barsim/pricing"
	"github.com/rustyeddy/barsim/strategies"
)

// runBacktest handles POST /api/v1/backtest
func (s *Server) runBacktest(c *gin.Context) {
	var req BacktestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "INVALID_REQUEST", err)
		return
	}

	cfg, err := s.mergeConfig(req.Config)
	if err != nil {
		abort(c, http.StatusBadRequest, "INVALID_CONFIG", err)
		return
	}

	bars, err := toBars(req.Bars)
	if err != nil {
		abort(c, http.StatusBadRequest, "INVALID_BAR", err)
		return
	}
	if len(bars) == 0 {
		abort(c, http.StatusBadRequest, "NO_DATA", fmt.Errorf("bars must not be empty"))
		return
	}

	strat, err := strategies.ByName(cfg.Strategy.Name, cfg.StrategyParams())
	if err != nil {
		abort(c, http.StatusBadRequest, "INVALID_CONFIG", err)
		return
	}

	start := bars[0].Time
	pipe, err := backtest.NewPipeline(backtest.Config{
		Instrument:   cfg.Strategy.Instrument,
		Window:       cfg.Indicator.Window,
		Strategy:     strat,
		Policy:       cfg.Policy(),
		StartingCash: cfg.Account.StartingCash,
		Start:        start,
		EnforceStops: cfg.Risk.EnforceStops,
		Logger:       s.log.Named("backtest"),
	})
	if err != nil {
		abort(c, http.StatusBadRequest, "INVALID_CONFIG", err)
		return
	}

	runner := &backtest.Runner{
		Pipeline: pipe,
		Feed:     backtest.NewSliceFeed(bars),
		Options:  backtest.Options{CloseEnd: req.CloseEnd},
		Logger:   s.log.Named("runner"),
	}
	res, err := runner.Run(c.Request.Context())
	if err != nil {
		abort(c, http.StatusInternalServerError, "BACKTEST_ERROR", err)
		return
	}

	c.JSON(http.StatusOK, buildResponse(res, req.IncludeLedger, req.IncludeEquity))
}

// mergeConfig decodes raw over a copy of the base configuration. raw may
// be JSON or YAML text in a JSON string.
func (s *Server) mergeConfig(raw json.RawMessage) (*config.Config, error) {
	cfg := s.base
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
		var text string
		if err := json.Unmarshal(raw, &text); err == nil {
			if err := yaml.Unmarshal([]byte(text), &cfg); err != nil {
				return nil, fmt.Errorf("config: %w", err)
			}
		} else if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func toBars(in []BarInput) ([]pricing.Bar, error) {
	out := make([]pricing.Bar, 0, len(in))
	for i, b := range in {
		t, err := backtest.ParseTime(b.Time)
		if err != nil {
			return nil, fmt.Errorf("bar %d: %w", i, err)
		}
		bar := pricing.Bar{
			Instrument: b.Instrument,
			Time:       t,
			Open:       b.Open,
			High:       b.High,
			Low:        b.Low,
			Volume:     b.Volume,
			NoClose:    b.Close == nil,
		}
		if b.Close != nil {
			bar.Close = *b.Close
		}
		out = append(out, bar)
	}
	return out, nil
}

func buildResponse(r backtest.Result, ledger, equity bool) BacktestResponse {
	trades, wins, losses := r.Closed()
	resp := BacktestResponse{
		Status: "completed",
		Summary: BacktestSummary{
			Start:        r.Start,
			End:          r.End,
			Bars:         r.Bars,
			Skipped:      r.Skipped,
			Signals:      r.Signals,
			Rejections:   r.Rejections,
			Fills:        len(r.Trades),
			Trades:       trades,
			Wins:         wins,
			Losses:       losses,
			StartingCash: r.StartingCash,
			Cash:         r.Cash,
			Equity:       r.Equity,
			RealizedPnL:  r.Realized,
			OpenPnL:      r.Unrealized,
		},
		Rejected: r.Rejected,
	}
	if r.HasMetrics {
		for _, e := range r.Metrics.Entries() {
			resp.Metrics = append(resp.Metrics, MetricEntry{Key: e.Key, Value: e.Format()})
		}
	}
	if ledger {
		for _, t := range r.Trades {
			resp.Ledger = append(resp.Ledger, LedgerRow{
				ID:         t.ID,
				Instrument: t.Instrument,
				Action:     t.Action,
				Side:       t.Side,
				Size:       t.Size,
				Price:      t.FilledPrice,
				Time:       t.Time,
				Reason:     t.Reason,
				NetProfit:  t.NetProfit,
				BarsHeld:   t.BarsHeld,
			})
		}
	}
	if equity {
		for _, p := range r.EquityCurve {
			resp.Equity = append(resp.Equity, EquityRow{Time: p.Time, Equity: p.Equity})
		}
	}
	return resp
}
