package api

import (
	"encoding/json"
	"time"
)

// BacktestRequest is the body of POST /api/v1/backtest. Config is merged
// over the server's base configuration.
type BacktestRequest struct {
	Config   json.RawMessage `json:"config,omitempty"`
	Bars     []BarInput      `json:"bars" binding:"required"`
	CloseEnd bool            `json:"close_end,omitempty"`

	IncludeLedger bool `json:"include_ledger,omitempty"`
	IncludeEquity bool `json:"include_equity,omitempty"`
}

// BarInput is one OHLCV row. A null close marks the bar malformed.
type BarInput struct {
	Instrument string   `json:"instrument,omitempty"`
	Time       string   `json:"time"`
	Open       float64  `json:"open"`
	High       float64  `json:"high"`
	Low        float64  `json:"low"`
	Close      *float64 `json:"close"`
	Volume     float64  `json:"volume"`
}

// BacktestResponse represents the response from a backtest run
type BacktestResponse struct {
	Status   string            `json:"status"`
	Summary  BacktestSummary   `json:"summary"`
	Metrics  []MetricEntry     `json:"metrics,omitempty"`
	Rejected map[string]string `json:"rejected,omitempty"`
	Ledger   []LedgerRow       `json:"ledger,omitempty"`
	Equity   []EquityRow       `json:"equity,omitempty"`
}

type BacktestSummary struct {
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	Bars         int       `json:"bars"`
	Skipped      int       `json:"skipped"`
	Signals      int       `json:"signals"`
	Rejections   int       `json:"rejections"`
	Fills        int       `json:"fills"`
	Trades       int       `json:"trades"`
	Wins         int       `json:"wins"`
	Losses       int       `json:"losses"`
	StartingCash float64   `json:"starting_cash"`
	Cash         float64   `json:"cash"`
	Equity       float64   `json:"equity"`
	RealizedPnL  float64   `json:"realized_pnl"`
	OpenPnL      float64   `json:"open_pnl"`
}

// MetricEntry is a report line. Values are pre-formatted because some
// metrics are infinite.
type MetricEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type LedgerRow struct {
	ID         string    `json:"id"`
	Instrument string    `json:"instrument"`
	Action     string    `json:"action"`
	Side       string    `json:"side"`
	Size       int64     `json:"size"`
	Price      float64   `json:"price"`
	Time       time.Time `json:"time"`
	Reason     string    `json:"reason"`
	NetProfit  float64   `json:"net_profit"`
	BarsHeld   int       `json:"bars_held"`
}

type EquityRow struct {
	Time   time.Time `json:"time"`
	Equity float64   `json:"equity"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
