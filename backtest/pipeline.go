package backtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/barsim/indicators"
	"github.com/rustyeddy/barsim/journal"
	"github.com/rustyeddy/barsim/portfolio"
	"github.com/rustyeddy/barsim/pricing"
	"github.com/rustyeddy/barsim/risk"
	"github.com/rustyeddy/barsim/sim"
	"github.com/rustyeddy/barsim/strategies"
)

// Config assembles a Pipeline.
type Config struct {
	// Instrument is assigned to bars that arrive without one.
	Instrument string
	Window     int
	Strategy   strategies.Strategy
	Policy     risk.Policy

	// StartingCash defaults to Policy.BaseCapital.
	StartingCash float64
	// Start stamps the seed point of the equity curve.
	Start time.Time

	// EnforceStops closes positions whose stop or take-profit level is
	// touched by a bar before the strategy sees it.
	EnforceStops bool

	Journal journal.Journal
	RunID   string
	Logger  *zap.Logger
}

// Step reports what one bar did to the pipeline.
type Step struct {
	Bar        pricing.Bar
	Skipped    bool
	SkipReason string

	Stop     *portfolio.Trade
	Signal   *strategies.Signal
	Decision *risk.Decision
	Trade    *portfolio.Trade
}

// Pipeline feeds bars through the indicator engine, the strategy, the risk
// validator and the portfolio accountant, strictly in that order.
type Pipeline struct {
	instrument   string
	enforceStops bool

	Indicators *indicators.Engine
	Strategy   strategies.Strategy
	Risk       *risk.Validator
	Ledger     *sim.Ledger
	Portfolio  *portfolio.Accountant

	last map[string]pricing.Bar
	log  *zap.Logger

	bars, skipped, signals, rejections int
}

func NewPipeline(cfg Config) (*Pipeline, error) {
	if cfg.Strategy == nil {
		return nil, fmt.Errorf("backtest: Strategy is required")
	}
	if err := cfg.Policy.Validate(); err != nil {
		return nil, err
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	cash := cfg.StartingCash
	if cash == 0 {
		cash = cfg.Policy.BaseCapital
	}
	if cash <= 0 {
		return nil, fmt.Errorf("backtest: starting cash must be positive, got %v", cash)
	}

	ledger := sim.NewLedger(cash, sim.WithLogger(log.Named("ledger")))

	popts := []portfolio.Option{portfolio.WithLogger(log.Named("portfolio"))}
	if cfg.Journal != nil {
		popts = append(popts, portfolio.WithJournal(cfg.Journal), portfolio.WithRunID(cfg.RunID))
	}
	acct, err := portfolio.New(ledger, cfg.Start, popts...)
	if err != nil {
		return nil, err
	}

	validator := risk.NewValidator(cfg.Policy,
		risk.WithLogger(log.Named("risk")),
		risk.WithPositions(ledger))

	eng, err := indicators.NewEngine(cfg.Window,
		indicators.WithLogger(log.Named("indicators")),
		indicators.WithPriceHook(func(instrument string, close float64) {
			validator.UpdatePrice(instrument, close)
			acct.Mark(instrument, close)
		}))
	if err != nil {
		return nil, err
	}

	if s, ok := cfg.Strategy.(interface{ SetLogger(*zap.Logger) }); ok {
		s.SetLogger(log.Named("strategy"))
	}

	return &Pipeline{
		instrument:   cfg.Instrument,
		enforceStops: cfg.EnforceStops,
		Indicators:   eng,
		Strategy:     cfg.Strategy,
		Risk:         validator,
		Ledger:       ledger,
		Portfolio:    acct,
		last:         make(map[string]pricing.Bar),
		log:          log,
	}, nil
}

// ProcessBar runs one bar through every stage. Malformed or out-of-order
// bars are logged and skipped without error. An error means the run can
// not continue: a cancelled context, a ledger contract violation or a
// journal failure.
func (p *Pipeline) ProcessBar(ctx context.Context, bar pricing.Bar) (Step, error) {
	if err := ctx.Err(); err != nil {
		return Step{}, err
	}
	if bar.Instrument == "" {
		bar.Instrument = p.instrument
	}
	step := Step{Bar: bar}

	if reason := p.malformed(bar); reason != "" {
		p.skipped++
		step.Skipped, step.SkipReason = true, reason
		p.log.Warn("skipping bar",
			zap.String("instrument", bar.Instrument),
			zap.Time("time", bar.Time),
			zap.String("reason", reason))
		return step, nil
	}
	p.bars++

	if p.enforceStops {
		tr, err := p.checkStops(bar)
		if err != nil {
			return step, err
		}
		step.Stop = tr
	}

	enriched, err := p.Indicators.OnBar(bar.Instrument, bar)
	if err != nil {
		return step, err
	}
	step.Bar = enriched
	p.last[bar.Instrument] = enriched

	sig, ok := p.Strategy.GenerateSignal(enriched, p.Indicators.History(bar.Instrument))
	if !ok {
		return step, nil
	}
	p.signals++
	step.Signal = &sig

	if step.Stop != nil {
		// One fill per instrument per bar. The strategy is put back to
		// FLAT so it can act on the next bar.
		p.log.Debug("signal dropped, stop filled on this bar",
			zap.String("instrument", sig.Instrument),
			zap.String("action", string(sig.Action)),
			zap.Time("time", sig.Time))
		if l, ok := p.Strategy.(strategies.PositionListener); ok {
			l.OnPositionClosed(sig.Instrument, step.Stop.Reason)
		}
		return step, nil
	}

	dec := p.Risk.Apply(sig)
	step.Decision = &dec
	if !dec.Allowed {
		p.rejections++
		return step, nil
	}

	tr, err := p.Portfolio.OnFill(dec.Order)
	if err != nil {
		return step, fmt.Errorf("backtest: fill %s: %w", dec.Order.ID, err)
	}
	step.Trade = &tr
	p.afterFill(tr)
	return step, nil
}

func (p *Pipeline) malformed(bar pricing.Bar) string {
	if bar.Instrument == "" {
		return "no instrument"
	}
	if err := bar.Validate(); err != nil {
		return err.Error()
	}
	if prev, ok := p.last[bar.Instrument]; ok {
		switch {
		case bar.Time.Before(prev.Time):
			return "out of order"
		case bar.Time.Equal(prev.Time):
			return "duplicate time"
		}
	}
	return ""
}

func (p *Pipeline) checkStops(bar pricing.Bar) (*portfolio.Trade, error) {
	pos, ok := p.Ledger.Position(bar.Instrument)
	if !ok {
		return nil, nil
	}
	level, reason, hit := sim.CheckExit(pos, bar)
	if !hit {
		return nil, nil
	}
	tr, closed, err := p.Portfolio.OnStop(bar.Instrument, level, bar.Time, reason)
	if err != nil || !closed {
		return nil, err
	}
	p.afterFill(tr)
	return &tr, nil
}

// afterFill feeds the fill back upstream: the fill price to the risk
// validator, the new drawdown to the drawdown gate, and a flat position to
// a strategy that tracks its own state.
func (p *Pipeline) afterFill(tr portfolio.Trade) {
	p.Risk.UpdatePrice(tr.Instrument, tr.FilledPrice)
	p.Risk.SetDrawdown(p.Portfolio.CurrentDrawdown())

	if p.Ledger.OpenSize(tr.Instrument) != 0 {
		return
	}
	if l, ok := p.Strategy.(strategies.PositionListener); ok {
		l.OnPositionClosed(tr.Instrument, tr.Reason)
	}
}

// Flatten closes every open position at the last accepted close of its
// instrument.
func (p *Pipeline) Flatten(reason string) ([]portfolio.Trade, error) {
	var out []portfolio.Trade
	var errs []error
	for _, instr := range p.Portfolio.OpenInstruments() {
		b, ok := p.last[instr]
		if !ok {
			errs = append(errs, fmt.Errorf("backtest: no price to close %s", instr))
			continue
		}
		tr, closed, err := p.Portfolio.OnStop(instr, b.Close, b.Time, reason)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if closed {
			p.afterFill(tr)
			out = append(out, tr)
		}
	}
	return out, errors.Join(errs...)
}

// Counts returns bars accepted, bars skipped, signals emitted and signals
// rejected so far.
func (p *Pipeline) Counts() (bars, skipped, signals, rejections int) {
	return p.bars, p.skipped, p.signals, p.rejections
}
