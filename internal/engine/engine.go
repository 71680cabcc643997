// Package engine ties the components into the tick-driven trading loop:
// snapshot refresh, regime classification, exit evaluation on the open
// position, and risk-gated admission of new entries. One goroutine drives
// all decisions; nothing else writes ledger or risk state.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Vrajp610/spy-daytrader-sub000/internal/broker"
	"github.com/Vrajp610/spy-daytrader-sub000/internal/events"
	"github.com/Vrajp610/spy-daytrader-sub000/internal/exits"
	"github.com/Vrajp610/spy-daytrader-sub000/internal/ledger"
	"github.com/Vrajp610/spy-daytrader-sub000/internal/marketdata"
	"github.com/Vrajp610/spy-daytrader-sub000/internal/options"
	"github.com/Vrajp610/spy-daytrader-sub000/internal/regime"
	"github.com/Vrajp610/spy-daytrader-sub000/internal/risk"
	"github.com/Vrajp610/spy-daytrader-sub000/internal/strategy"
	"github.com/Vrajp610/spy-daytrader-sub000/pkg/types"
)

// Mode selects which instrument the engine trades.
type Mode string

const (
	ModeEquity  Mode = "equity"
	ModeOptions Mode = "options"
)

// Config holds the loop parameters.
type Config struct {
	Symbol           string        `mapstructure:"symbol"`
	Mode             Mode          `mapstructure:"mode"`
	TickInterval     time.Duration `mapstructure:"tick_interval"`
	SnapshotInterval time.Duration `mapstructure:"snapshot_interval"`
	Timezone         string        `mapstructure:"timezone"`
	MarketOpen       string        `mapstructure:"market_open"`
	MarketClose      string        `mapstructure:"market_close"`
	// EODFlattenMinutes closes any open position this many minutes before
	// the session close and blocks new entries inside the window.
	EODFlattenMinutes int `mapstructure:"eod_flatten_minutes"`

	// Options positions have no per-share stop, so the loop manages them
	// on fractions of the structure's defined risk and reward.
	OptionsProfitTarget float64       `mapstructure:"options_profit_target"`
	OptionsLossLimit    float64       `mapstructure:"options_loss_limit"`
	OptionsMaxHold      time.Duration `mapstructure:"options_max_hold"`

	StopTimeout time.Duration `mapstructure:"stop_timeout"`
}

// DefaultConfig returns the shipped loop parameters.
func DefaultConfig() Config {
	return Config{
		Symbol:              "SPY",
		Mode:                ModeOptions,
		TickInterval:        5 * time.Second,
		SnapshotInterval:    30 * time.Second,
		Timezone:            "America/New_York",
		MarketOpen:          "09:30",
		MarketClose:         "16:00",
		EODFlattenMinutes:   10,
		OptionsProfitTarget: 0.50,
		OptionsLossLimit:    0.80,
		OptionsMaxHold:      4 * time.Hour,
		StopTimeout:         10 * time.Second,
	}
}

// Deps are the collaborators the engine drives. All are required except
// SynthChain, which is only needed when the fallback chain ends in the
// synthetic generator.
type Deps struct {
	Detector   *regime.Detector
	Risk       *risk.Manager
	Exits      *exits.Manager
	Equity     *ledger.EquityLedger
	Options    *ledger.OptionsLedger
	Selector   *options.Selector
	Chain      *options.FallbackChain
	SynthChain *options.SyntheticProvider
	Data       marketdata.Provider
	Broker     broker.Broker
	Registry   *strategy.Registry
	Bus        *events.Bus
	Metrics    *Metrics
}

// Engine is the orchestrating control loop.
type Engine struct {
	logger *zap.Logger
	config Config
	deps   Deps
	loc    *time.Location

	openMinute  int
	closeMinute int

	mu       sync.RWMutex
	running  bool
	stopChan chan struct{}
	doneChan chan struct{}

	snapshot    *types.MarketSnapshot
	snapshotAt  time.Time
	lastBar     types.Bar
	haveBar     bool
	reg         regime.Regime
	entrySignal *types.TradeSignal
	entryTime   time.Time
	tickCount   uint64
	lastTick    time.Time
}

// New builds an engine. It fails if the timezone or session times cannot
// be parsed.
func New(logger *zap.Logger, config Config, deps Deps) (*Engine, error) {
	loc, err := time.LoadLocation(config.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", config.Timezone, err)
	}
	open, err := sessionMinute(config.MarketOpen)
	if err != nil {
		return nil, fmt.Errorf("parse market_open: %w", err)
	}
	clos, err := sessionMinute(config.MarketClose)
	if err != nil {
		return nil, fmt.Errorf("parse market_close: %w", err)
	}
	if clos <= open {
		return nil, fmt.Errorf("market_close %q not after market_open %q", config.MarketClose, config.MarketOpen)
	}

	return &Engine{
		logger:      logger.Named("engine"),
		config:      config,
		deps:        deps,
		loc:         loc,
		openMinute:  open,
		closeMinute: clos,
		reg:         regime.RangeBound,
	}, nil
}

func sessionMinute(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Start launches the loop goroutine.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("engine already running")
	}
	e.running = true
	e.stopChan = make(chan struct{})
	e.doneChan = make(chan struct{})
	e.mu.Unlock()

	e.logger.Info("starting engine",
		zap.String("symbol", e.config.Symbol),
		zap.String("mode", string(e.config.Mode)),
		zap.Duration("tickInterval", e.config.TickInterval))
	e.deps.Bus.Publish(events.NewStatusEvent("running", "engine started", time.Now()))

	go e.run(ctx)
	return nil
}

// Stop cancels the loop and waits for it to flatten and exit.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return fmt.Errorf("engine not running")
	}
	e.running = false
	close(e.stopChan)
	done := e.doneChan
	e.mu.Unlock()

	select {
	case <-done:
	case <-time.After(e.config.StopTimeout):
		e.logger.Warn("engine stop timed out")
	}
	e.deps.Bus.Publish(events.NewStatusEvent("stopped", "engine stopped", time.Now()))
	return nil
}

// Running reports whether the loop goroutine is active.
func (e *Engine) Running() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

func (e *Engine) run(ctx context.Context) {
	defer close(e.doneChan)

	ticker := time.NewTicker(e.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.flatten("context canceled")
			return
		case <-e.stopChan:
			e.flatten("engine stopped")
			return
		case <-ticker.C:
			e.safeTick(ctx, time.Now().In(e.loc))
		}
	}
}

// safeTick runs one tick with panic containment. A failed tick is logged
// and published; the next ticker fire retries.
func (e *Engine) safeTick(ctx context.Context, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			e.deps.Metrics.TickErrors.Inc()
			e.logger.Error("tick panicked", zap.Any("panic", r))
			e.deps.Bus.Publish(events.NewErrorEvent("engine", fmt.Sprintf("tick panic: %v", r), now))
		}
	}()

	if err := e.Tick(ctx, now); err != nil {
		e.deps.Metrics.TickErrors.Inc()
		e.logger.Warn("tick failed", zap.Error(err))
		e.deps.Bus.Publish(events.NewErrorEvent("engine", err.Error(), now))
	}
}

// Tick runs one pass of the decision loop at the given time. Exported so
// tests and replays can drive the engine deterministically.
func (e *Engine) Tick(ctx context.Context, now time.Time) error {
	e.mu.Lock()
	e.tickCount++
	e.lastTick = now
	e.mu.Unlock()
	e.deps.Metrics.TicksTotal.Inc()

	if !e.inSession(now) {
		return nil
	}

	if err := e.refreshSnapshot(ctx, now); err != nil {
		return err
	}
	bar, ok := e.snapshot.LastBar()
	if !ok {
		return nil
	}
	e.mu.Lock()
	e.lastBar = bar
	e.haveBar = true
	e.mu.Unlock()

	e.markPrices(bar, now)
	e.classifyRegime(now)

	eod := e.nearClose(now)

	if pos := e.deps.Equity.Position(); pos != nil {
		return e.manageEquity(pos, bar, now, eod)
	}
	if e.deps.Options.Position() != nil {
		return e.manageOptions(bar, now, eod)
	}
	if eod {
		return nil
	}
	return e.tryEnter(ctx, bar, now)
}

func (e *Engine) inSession(now time.Time) bool {
	wd := now.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return false
	}
	minute := now.Hour()*60 + now.Minute()
	return minute >= e.openMinute && minute < e.closeMinute
}

func (e *Engine) nearClose(now time.Time) bool {
	minute := now.Hour()*60 + now.Minute()
	return minute >= e.closeMinute-e.config.EODFlattenMinutes
}

func (e *Engine) refreshSnapshot(ctx context.Context, now time.Time) error {
	if e.snapshot != nil && now.Sub(e.snapshotAt) < e.config.SnapshotInterval {
		return nil
	}
	snap, err := e.deps.Data.GetSnapshot(ctx, e.config.Symbol)
	if err != nil {
		return fmt.Errorf("snapshot %s: %w", e.config.Symbol, err)
	}
	e.snapshot = snap
	e.snapshotAt = now
	e.deps.Metrics.SnapshotRefresh.Inc()
	return nil
}

// markPrices folds the latest close into both ledgers, the synthetic chain,
// the paper quote book, and the gauges, then publishes the price event.
func (e *Engine) markPrices(bar types.Bar, now time.Time) {
	e.deps.Equity.MarkToMarket(bar.Close, bar.Timestamp)
	e.deps.Options.MarkToMarket(bar.Close, now)
	if e.deps.SynthChain != nil {
		e.deps.SynthChain.UpdateMarket(bar.Close, bar.ATR)
	}
	if pb, ok := e.deps.Broker.(*broker.PaperBroker); ok {
		pb.UpdateQuote(e.config.Symbol, bar.Close, now)
	}

	m := e.deps.Metrics
	if e.config.Mode == ModeOptions {
		m.Equity.Set(decimalFloat(e.deps.Options.Equity()))
		m.Capital.Set(decimalFloat(e.deps.Options.Cash()))
	} else {
		m.Equity.Set(decimalFloat(e.deps.Equity.Equity()))
		m.Capital.Set(decimalFloat(e.deps.Equity.Capital()))
	}
	m.OpenRisk.Set(decimalFloat(e.deps.Options.OpenRisk()))
	open := 0.0
	if e.deps.Equity.Position() != nil || e.deps.Options.Position() != nil {
		open = 1.0
	}
	m.PositionOpen.Set(open)

	e.deps.Bus.Publish(events.NewPriceEvent(e.config.Symbol, bar.Close, bar.ATR, bar.Volume, now))
}

func (e *Engine) classifyRegime(now time.Time) {
	next := e.deps.Detector.Classify(e.snapshot.Bars5m)
	e.mu.Lock()
	prev := e.reg
	e.reg = next
	e.mu.Unlock()
	if next != prev {
		e.logger.Info("regime changed",
			zap.String("from", string(prev)),
			zap.String("to", string(next)))
		e.deps.Bus.Publish(events.NewRegimeEvent(e.config.Symbol, string(next), string(prev), now))
	}
	e.deps.Metrics.SetRegime(string(next))
}

// manageEquity runs the exit machinery for the open equity position.
func (e *Engine) manageEquity(pos *types.EquityPosition, bar types.Bar, now time.Time, eod bool) error {
	if eod {
		exit := &types.ExitSignal{Reason: types.ExitEndOfDay, Price: bar.Close, Timestamp: now}
		return e.closeEquity(exit, bar, now)
	}

	var strategyExit *types.ExitSignal
	e.mu.RLock()
	entry := e.entrySignal
	entryTime := e.entryTime
	e.mu.RUnlock()
	if entry != nil {
		if s, ok := e.deps.Registry.Get(entry.Strategy); ok {
			strategyExit = s.ShouldExit(e.snapshot.Bars1m, len(e.snapshot.Bars1m)-1,
				entry, entryTime, now, pos.HighestPrice, pos.LowestPrice)
		}
	}

	exit := e.deps.Exits.Evaluate(pos, bar.Close, bar.ATR, strategyExit, now)
	if exit == nil {
		e.deps.Equity.ApplyPositionUpdates(func(p *types.EquityPosition) {
			exits.ApplyUpdates(p, e.deps.Exits.ComputePositionUpdates(p, bar.Close, bar.ATR))
		})
		return nil
	}

	if exit.Quantity > 0 && exit.Quantity < pos.Quantity {
		return e.scaleOutEquity(exit, bar, now)
	}
	return e.closeEquity(exit, bar, now)
}

func (e *Engine) scaleOutEquity(exit *types.ExitSignal, bar types.Bar, now time.Time) error {
	rec, err := e.deps.Equity.ReducePosition(exit, bar, now)
	if err != nil {
		return fmt.Errorf("scale out: %w", err)
	}
	if level := e.deps.Exits.LadderIndex(exit.Reason); level >= 0 {
		e.deps.Equity.ApplyPositionUpdates(func(p *types.EquityPosition) {
			exits.ApplyUpdates(p, e.deps.Exits.PostScaleUpdates(p, level))
		})
	}
	e.deps.Metrics.TradesTotal.WithLabelValues("scale_out", string(exit.Reason)).Inc()
	e.deps.Bus.Publish(events.NewTradeEvent(e.config.Symbol, "scale_out",
		string(rec.Direction), rec.Strategy, rec.Quantity, rec.ExitPrice,
		string(exit.Reason), rec.PnL, now))
	return nil
}

func (e *Engine) closeEquity(exit *types.ExitSignal, bar types.Bar, now time.Time) error {
	rec, err := e.deps.Equity.ClosePosition(exit, bar, now)
	if err != nil {
		return fmt.Errorf("close position: %w", err)
	}
	e.deps.Risk.RecordTradeResult(rec.PnL, now)

	e.mu.Lock()
	e.entrySignal = nil
	e.mu.Unlock()

	e.deps.Metrics.TradesTotal.WithLabelValues("close", string(exit.Reason)).Inc()
	e.deps.Bus.Publish(events.NewTradeEvent(e.config.Symbol, "close",
		string(rec.Direction), rec.Strategy, rec.Quantity, rec.ExitPrice,
		string(exit.Reason), rec.PnL, now))
	return nil
}

// manageOptions applies the defined-risk exit policy to the open structure:
// take profit at a fraction of max profit, cut at a fraction of max loss,
// time stop, and the unconditional end-of-day flatten.
func (e *Engine) manageOptions(bar types.Bar, now time.Time, eod bool) error {
	pos := e.deps.Options.Position()
	if pos == nil {
		return nil
	}

	reason := e.optionsExitReason(pos, now, eod)
	if reason == "" {
		return nil
	}
	return e.closeOptions(reason, bar.Close, now)
}

func (e *Engine) optionsExitReason(pos *ledger.OptionsPosition, now time.Time, eod bool) types.ExitReason {
	if eod {
		return types.ExitEndOfDay
	}

	contracts := float64(pos.Order.Contracts)
	if pos.Order.MaxProfit < types.UnboundedProfit {
		target := e.config.OptionsProfitTarget * pos.Order.MaxProfit * contracts
		if target > 0 && pos.UnrealizedPnL >= target {
			return types.ExitTakeProfit
		}
	}
	limit := e.config.OptionsLossLimit * pos.Order.MaxLoss * contracts
	if limit > 0 && pos.UnrealizedPnL <= -limit {
		return types.ExitStopLoss
	}
	if e.config.OptionsMaxHold > 0 && now.Sub(pos.OpenedAt) >= e.config.OptionsMaxHold {
		return types.ExitTimeStop
	}
	return ""
}

func (e *Engine) closeOptions(reason types.ExitReason, underlying float64, now time.Time) error {
	rec, err := e.deps.Options.Close(reason, underlying, now)
	if err != nil {
		return fmt.Errorf("close options position: %w", err)
	}
	e.deps.Risk.RecordTradeResult(rec.PnL, now)

	e.mu.Lock()
	e.entrySignal = nil
	e.mu.Unlock()

	e.deps.Metrics.TradesTotal.WithLabelValues("close", string(reason)).Inc()
	e.deps.Bus.Publish(events.NewTradeEvent(e.config.Symbol, "close", "",
		rec.Strategy, rec.Contracts, underlying, string(reason), rec.PnL, now))
	return nil
}

// tryEnter runs the admission pipeline: first regime-appropriate strategy
// to signal wins, then the risk gate, then sizing, then the instrument
// specific open. Rejections are frequent and silent.
func (e *Engine) tryEnter(ctx context.Context, bar types.Bar, now time.Time) error {
	e.mu.RLock()
	reg := e.reg
	e.mu.RUnlock()

	var signal *types.TradeSignal
	for _, s := range e.deps.Registry.InPriorityOrder() {
		if !s.FitsRegime(reg) {
			continue
		}
		if sig := s.GenerateSignal(e.snapshot.Bars1m, len(e.snapshot.Bars1m)-1, now); sig != nil {
			signal = sig
			break
		}
	}
	if signal == nil {
		return nil
	}
	e.deps.Metrics.SignalsTotal.WithLabelValues(signal.Strategy).Inc()

	capital, peak, dailyPnL, tradesToday := e.admissionInputs(now)
	allowed, rule, reason := e.deps.Risk.CanTrade(capital, peak, dailyPnL, tradesToday, now)
	if !allowed {
		e.deps.Metrics.BlockedTotal.WithLabelValues(rule).Inc()
		e.logger.Debug("entry blocked", zap.String("rule", rule), zap.String("reason", reason))
		e.deps.Bus.Publish(events.NewRiskEvent(reason, "warning", capital, now))
		return nil
	}

	if e.config.Mode == ModeOptions {
		return e.enterOptions(ctx, signal, bar, reg, capital, now)
	}
	return e.enterEquity(ctx, signal, bar, capital, now)
}

// admissionInputs gathers the risk gate's view of the active ledger.
func (e *Engine) admissionInputs(now time.Time) (capital, peak, dailyPnL decimal.Decimal, tradesToday int) {
	if e.config.Mode == ModeOptions {
		return e.deps.Options.Equity(), e.deps.Options.PeakEquity(),
			e.optionsDailyPnL(now), e.optionsTradesToday(now)
	}
	return e.deps.Equity.Capital(), e.deps.Equity.PeakCapital(),
		e.deps.Equity.DailyPnL(now), e.deps.Equity.TradesToday(now)
}

func (e *Engine) optionsDailyPnL(now time.Time) decimal.Decimal {
	total := decimal.Zero
	trades := e.deps.Options.Trades()
	y, m, d := now.In(e.loc).Date()
	for i := len(trades) - 1; i >= 0; i-- {
		ty, tm, td := trades[i].ClosedAt.In(e.loc).Date()
		if ty != y || tm != m || td != d {
			break
		}
		total = total.Add(trades[i].PnL)
	}
	return total
}

func (e *Engine) optionsTradesToday(now time.Time) int {
	count := 0
	trades := e.deps.Options.Trades()
	y, m, d := now.In(e.loc).Date()
	for i := len(trades) - 1; i >= 0; i-- {
		ty, tm, td := trades[i].ClosedAt.In(e.loc).Date()
		if ty != y || tm != m || td != d {
			break
		}
		count++
	}
	return count
}

func (e *Engine) enterEquity(ctx context.Context, signal *types.TradeSignal, bar types.Bar, capital decimal.Decimal, now time.Time) error {
	qty := e.deps.Risk.CalculatePositionSize(signal, capital)
	if qty < 1 {
		return nil
	}
	signal.Quantity = qty

	side := broker.Buy
	if signal.Direction == types.DirectionShort {
		side = broker.Sell
	}
	if _, err := e.deps.Broker.PlaceMarketOrder(ctx, e.config.Symbol, side, qty); err != nil {
		return fmt.Errorf("place order: %w", err)
	}

	pos, err := e.deps.Equity.OpenPosition(signal, bar, now)
	if err != nil {
		return fmt.Errorf("open position: %w", err)
	}

	e.mu.Lock()
	e.entrySignal = signal
	e.entryTime = now
	e.mu.Unlock()

	e.deps.Metrics.TradesTotal.WithLabelValues("open", "entry").Inc()
	e.deps.Bus.Publish(events.NewTradeEvent(e.config.Symbol, "open",
		string(pos.Direction), pos.Strategy, pos.Quantity, pos.EntryPrice,
		"entry", decimal.Zero, now))
	return nil
}

func (e *Engine) enterOptions(ctx context.Context, signal *types.TradeSignal, bar types.Bar, reg regime.Regime, capital decimal.Decimal, now time.Time) error {
	chain, err := e.deps.Chain.GetChain(ctx, e.config.Symbol)
	if err != nil {
		return fmt.Errorf("option chain: %w", err)
	}

	order, err := e.deps.Selector.Select(signal, reg, chain, capital, e.deps.Options.OpenRisk(), now)
	if err != nil {
		e.logger.Debug("selector rejected signal", zap.Error(err))
		return nil
	}
	if order == nil {
		return nil
	}

	if err := e.deps.Options.Open(order, bar.Close, now); err != nil {
		return fmt.Errorf("open options position: %w", err)
	}

	e.mu.Lock()
	e.entrySignal = signal
	e.entryTime = now
	e.mu.Unlock()

	e.deps.Metrics.TradesTotal.WithLabelValues("open", string(order.Structure)).Inc()
	e.deps.Bus.Publish(events.NewTradeEvent(e.config.Symbol, "open",
		string(signal.Direction), order.Strategy, order.Contracts,
		bar.Close, string(order.Structure), decimal.Zero, now))
	return nil
}

// flatten force-closes any open position at the last known price so a
// stop never strands an open position.
func (e *Engine) flatten(cause string) {
	e.mu.RLock()
	bar := e.lastBar
	haveBar := e.haveBar
	e.mu.RUnlock()
	if !haveBar {
		return
	}
	now := time.Now().In(e.loc)

	if e.deps.Equity.Position() != nil {
		exit := &types.ExitSignal{Reason: types.ExitEndOfDay, Price: bar.Close, Timestamp: now}
		if err := e.closeEquity(exit, bar, now); err != nil {
			e.logger.Error("flatten failed", zap.String("cause", cause), zap.Error(err))
		}
	}
	if e.deps.Options.Position() != nil {
		if err := e.closeOptions(types.ExitEndOfDay, bar.Close, now); err != nil {
			e.logger.Error("flatten failed", zap.String("cause", cause), zap.Error(err))
		}
	}
}

// Status is the consistent snapshot served to API readers.
type Status struct {
	Running      bool          `json:"running"`
	Symbol       string        `json:"symbol"`
	Mode         Mode          `json:"mode"`
	Regime       regime.Regime `json:"regime"`
	TickCount    uint64        `json:"tickCount"`
	LastTick     time.Time     `json:"lastTick"`
	LastPrice    float64       `json:"lastPrice"`
	PositionOpen bool          `json:"positionOpen"`
}

// Status returns the loop's current public state.
func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Status{
		Running:      e.running,
		Symbol:       e.config.Symbol,
		Mode:         e.config.Mode,
		Regime:       e.reg,
		TickCount:    e.tickCount,
		LastTick:     e.lastTick,
		LastPrice:    e.lastBar.Close,
		PositionOpen: e.deps.Equity.Position() != nil || e.deps.Options.Position() != nil,
	}
}

// CurrentRegime returns the last classified regime.
func (e *Engine) CurrentRegime() regime.Regime {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.reg
}

// Equity exposes the equity ledger for read-only API access.
func (e *Engine) Equity() *ledger.EquityLedger { return e.deps.Equity }

// Options exposes the options ledger for read-only API access.
func (e *Engine) Options() *ledger.OptionsLedger { return e.deps.Options }

// Risk exposes the risk manager for state queries and breaker resets.
func (e *Engine) Risk() *risk.Manager { return e.deps.Risk }

// Metrics exposes the engine's metric set.
func (e *Engine) Metrics() *Metrics { return e.deps.Metrics }

func decimalFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
