// Package ledger provides the equity and options position ledgers with a
// simulated fill model and cash accounting.
package ledger

import (
	"fmt"
	"sync"
	"time"

	"github.com/Vrajp610/spy-daytrader-sub000/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// EquityConfig parameterizes the equity ledger.
type EquityConfig struct {
	Symbol             string         `mapstructure:"symbol"`
	InitialCapital     float64        `mapstructure:"initial_capital"`
	CommissionPerShare float64        `mapstructure:"commission_per_share"`
	Slippage           SlippageConfig `mapstructure:"slippage"`
}

// DefaultEquityConfig returns the shipped equity ledger parameters.
func DefaultEquityConfig() EquityConfig {
	return EquityConfig{
		Symbol:             "SPY",
		InitialCapital:     50000,
		CommissionPerShare: 0.005,
		Slippage:           DefaultSlippageConfig(),
	}
}

// EquityLedger tracks the single open equity position, realized trades, and
// account capital. At most one position may be open; a second open attempt
// is rejected defensively, never silently overwritten.
type EquityLedger struct {
	logger *zap.Logger
	config EquityConfig
	slip   *SlippageModel

	mu          sync.RWMutex
	capital     decimal.Decimal
	peakCapital decimal.Decimal
	position    *types.EquityPosition
	trades      []types.TradeRecord
	lastPrice   float64
	lastBarAt   time.Time
}

// NewEquityLedger creates an equity ledger.
func NewEquityLedger(logger *zap.Logger, config EquityConfig) *EquityLedger {
	capital := decimal.NewFromFloat(config.InitialCapital)
	return &EquityLedger{
		logger:      logger.Named("equity-ledger"),
		config:      config,
		slip:        NewSlippageModel(config.Slippage),
		capital:     capital,
		peakCapital: capital,
	}
}

// OpenPosition opens a position for a sized signal, filling at the signal's
// entry price adjusted by the slippage model against the given bar's volume.
func (l *EquityLedger) OpenPosition(signal *types.TradeSignal, bar types.Bar, now time.Time) (*types.EquityPosition, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.position != nil {
		l.logger.Warn("open rejected, position already exists",
			zap.String("existing", l.position.Symbol),
			zap.String("strategy", signal.Strategy))
		return nil, fmt.Errorf("position already open for %s", l.position.Symbol)
	}
	if signal.Quantity <= 0 {
		return nil, fmt.Errorf("signal is unsized")
	}

	fill, _ := l.slip.Fill(signal.Entry, signal.Quantity, bar.Volume, EntryIsBuy(signal.Direction))

	pos := &types.EquityPosition{
		Symbol:           l.config.Symbol,
		Strategy:         signal.Strategy,
		Direction:        signal.Direction,
		Quantity:         signal.Quantity,
		OriginalQuantity: signal.Quantity,
		EntryPrice:       fill,
		EntryTime:        now,
		StopLoss:         signal.StopLoss,
		TakeProfit:       signal.TakeProfit,
		EffectiveStop:    signal.StopLoss,
		ScalesCompleted:  make(map[int]bool),
		HighestPrice:     fill,
		LowestPrice:      fill,
	}
	l.position = pos
	l.lastPrice = fill
	l.lastBarAt = bar.Timestamp

	l.logger.Info("position opened",
		zap.String("direction", string(pos.Direction)),
		zap.Int64("quantity", pos.Quantity),
		zap.Float64("fill", fill),
		zap.Float64("requested", signal.Entry),
		zap.String("strategy", signal.Strategy))

	return l.copyPosition(), nil
}

// ReducePosition closes part of the position per the exit signal and
// realizes the proportional P&L. An exit quantity of zero, or one at or
// above the remaining size, closes the whole position.
func (l *EquityLedger) ReducePosition(exit *types.ExitSignal, bar types.Bar, now time.Time) (*types.TradeRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos := l.position
	if pos == nil {
		return nil, fmt.Errorf("no open position")
	}

	qty := exit.Quantity
	if qty <= 0 || qty > pos.Quantity {
		qty = pos.Quantity
	}

	isBuy := pos.Direction == types.DirectionShort // closing a short buys
	fill, perShare := l.slip.Fill(exit.Price, qty, bar.Volume, isBuy)

	var pnlPerShare float64
	if pos.Direction == types.DirectionLong {
		pnlPerShare = fill - pos.EntryPrice
	} else {
		pnlPerShare = pos.EntryPrice - fill
	}
	commission := l.config.CommissionPerShare * float64(qty)
	pnl := decimal.NewFromFloat(pnlPerShare * float64(qty)).
		Sub(decimal.NewFromFloat(commission)).Round(2)

	record := types.TradeRecord{
		ID:         uuid.New().String(),
		Symbol:     pos.Symbol,
		Strategy:   pos.Strategy,
		Direction:  pos.Direction,
		Quantity:   qty,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  fill,
		EntryTime:  pos.EntryTime,
		ExitTime:   now,
		PnL:        pnl,
		ExitReason: exit.Reason,
		Slippage:   perShare * float64(qty),
		MAE:        pos.MAE,
		MFE:        pos.MFE,
		MAEPercent: pos.MAEPercent,
		MFEPercent: pos.MFEPercent,
		BarsHeld:   pos.BarsHeld,
	}
	if pos.EntryPrice != 0 {
		record.PnLPercent = pnlPerShare / pos.EntryPrice * 100
	}

	l.capital = l.capital.Add(pnl)
	if l.capital.GreaterThan(l.peakCapital) {
		l.peakCapital = l.capital
	}
	l.trades = append(l.trades, record)
	l.lastPrice = fill

	pos.Quantity -= qty
	if pos.Quantity <= 0 {
		l.position = nil
	}

	l.logger.Info("position reduced",
		zap.String("reason", string(exit.Reason)),
		zap.Int64("quantity", qty),
		zap.Int64("remaining", pos.Quantity),
		zap.String("pnl", pnl.StringFixed(2)),
		zap.Float64("fill", fill))

	return &record, nil
}

// ClosePosition closes the entire remaining position.
func (l *EquityLedger) ClosePosition(exit *types.ExitSignal, bar types.Bar, now time.Time) (*types.TradeRecord, error) {
	full := *exit
	full.Quantity = 0
	return l.ReducePosition(&full, bar, now)
}

// MarkToMarket folds the latest price into the open position's extremes and
// the equity high-water mark. Call once per tick; BarsHeld advances only
// when barTime moves past the last seen bar, so re-marking the same bar on
// a faster tick cadence does not inflate holding time.
func (l *EquityLedger) MarkToMarket(price float64, barTime time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.lastPrice = price
	if l.position == nil {
		return
	}
	l.position.ObservePrice(price)
	if barTime.After(l.lastBarAt) {
		l.position.BarsHeld++
		l.lastBarAt = barTime
	}

	equity := l.equityLocked(price)
	if equity.GreaterThan(l.peakCapital) {
		l.peakCapital = equity
	}
}

func (l *EquityLedger) equityLocked(price float64) decimal.Decimal {
	equity := l.capital
	if l.position != nil && price > 0 {
		unrealized := l.position.UnrealizedPerShare(price) * float64(l.position.Quantity)
		equity = equity.Add(decimal.NewFromFloat(unrealized))
	}
	return equity
}

// DailyPnL sums realized P&L for the calendar day of now, scanning the
// trade log backward until a trade from an earlier day is found. Recent
// trades sit at the tail, so the scan touches only today's records.
func (l *EquityLedger) DailyPnL(now time.Time) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()

	total := decimal.Zero
	y, m, d := now.Date()
	for i := len(l.trades) - 1; i >= 0; i-- {
		ty, tm, td := l.trades[i].ExitTime.Date()
		if ty != y || tm != m || td != d {
			break
		}
		total = total.Add(l.trades[i].PnL)
	}
	return total
}

// TradesToday counts trades closed on the calendar day of now, with the
// same backward scan as DailyPnL.
func (l *EquityLedger) TradesToday(now time.Time) int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	count := 0
	y, m, d := now.Date()
	for i := len(l.trades) - 1; i >= 0; i-- {
		ty, tm, td := l.trades[i].ExitTime.Date()
		if ty != y || tm != m || td != d {
			break
		}
		count++
	}
	return count
}

// Capital returns realized account capital.
func (l *EquityLedger) Capital() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.capital
}

// PeakCapital returns the mark-to-market high-water mark.
func (l *EquityLedger) PeakCapital() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.peakCapital
}

// Equity returns capital plus the open position's unrealized P&L at the
// last seen price.
func (l *EquityLedger) Equity() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.equityLocked(l.lastPrice)
}

// Position returns a copy of the open position, or nil.
func (l *EquityLedger) Position() *types.EquityPosition {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.copyPosition()
}

func (l *EquityLedger) copyPosition() *types.EquityPosition {
	if l.position == nil {
		return nil
	}
	cp := *l.position
	cp.ScalesCompleted = make(map[int]bool, len(l.position.ScalesCompleted))
	for k, v := range l.position.ScalesCompleted {
		cp.ScalesCompleted[k] = v
	}
	return &cp
}

// ApplyPositionUpdates mutates the open position through fn while holding
// the ledger lock. The exit manager's computed updates are applied here so
// no caller holds a stale pointer.
func (l *EquityLedger) ApplyPositionUpdates(fn func(*types.EquityPosition)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.position != nil {
		fn(l.position)
	}
}

// Trades returns a copy of the closed-trade log.
func (l *EquityLedger) Trades() []types.TradeRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]types.TradeRecord, len(l.trades))
	copy(out, l.trades)
	return out
}
