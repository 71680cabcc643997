// Package types provides the shared domain types for the trading engine.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the side of a trade.
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// ExitReason tags why a position was closed or reduced.
type ExitReason string

const (
	ExitStopLoss         ExitReason = "stop_loss"
	ExitTakeProfit       ExitReason = "take_profit"
	ExitTrailingStop     ExitReason = "trailing_stop"
	ExitTimeStop         ExitReason = "time_stop"
	ExitEndOfDay         ExitReason = "eod"
	ExitReverseSignal    ExitReason = "reverse_signal"
	ExitFalseBreakout    ExitReason = "false_breakout"
	ExitScaleOut1        ExitReason = "scale_out_1"
	ExitScaleOut2        ExitReason = "scale_out_2"
	ExitAdaptiveTrailing ExitReason = "adaptive_trailing"
)

// TradeSignal is a candidate trade produced by a strategy. It is immutable
// once issued; Quantity stays zero until the risk manager sizes it.
type TradeSignal struct {
	Strategy   string         `json:"strategy"`
	Direction  Direction      `json:"direction"`
	Entry      float64        `json:"entry"`
	StopLoss   float64        `json:"stopLoss"`
	TakeProfit float64        `json:"takeProfit"`
	Quantity   int64          `json:"quantity"`
	Confidence float64        `json:"confidence"` // 0-1
	Timestamp  time.Time      `json:"timestamp"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// ExitSignal describes an exit or partial exit decision.
type ExitSignal struct {
	Reason    ExitReason `json:"reason"`
	Price     float64    `json:"price"`
	Timestamp time.Time  `json:"timestamp"`
	// Quantity is the number of shares to close. Zero means close the
	// entire position.
	Quantity int64 `json:"quantity,omitempty"`
}

// ScaleLevel configures one rung of the scale-out ladder. Fraction applies
// to the original position quantity, not the remaining one.
type ScaleLevel struct {
	Fraction            float64 `json:"fraction" mapstructure:"fraction"`
	TriggerATRMultiple  float64 `json:"triggerAtrMultiple" mapstructure:"trigger_atr_multiple"`
	MoveStopToBreakeven bool    `json:"moveStopToBreakeven" mapstructure:"move_stop_to_breakeven"`
	// NewTrailingATRMult tightens the trailing multiplier after the level
	// fires. Zero leaves the multiplier unchanged.
	NewTrailingATRMult float64 `json:"newTrailingAtrMult" mapstructure:"new_trailing_atr_mult"`
}

// DefaultScaleLadder returns the two-level ladder the system ships with:
// half off at 1xATR profit with a move to breakeven, a quarter off at 2xATR
// with the trail tightened to 0.5xATR.
func DefaultScaleLadder() []ScaleLevel {
	return []ScaleLevel{
		{Fraction: 0.50, TriggerATRMultiple: 1.0, MoveStopToBreakeven: true},
		{Fraction: 0.25, TriggerATRMultiple: 2.0, NewTrailingATRMult: 0.50},
	}
}

// EquityPosition is the single open equity position. Quantity only ever
// decreases; OriginalQuantity never changes after open.
type EquityPosition struct {
	Symbol           string    `json:"symbol"`
	Strategy         string    `json:"strategy"`
	Direction        Direction `json:"direction"`
	Quantity         int64     `json:"quantity"`
	OriginalQuantity int64     `json:"originalQuantity"`
	EntryPrice       float64   `json:"entryPrice"`
	EntryTime        time.Time `json:"entryTime"`
	StopLoss         float64   `json:"stopLoss"`
	TakeProfit       float64   `json:"takeProfit"`
	// EffectiveStop starts at StopLoss and only moves in the favorable
	// direction (up for longs, down for shorts).
	EffectiveStop float64 `json:"effectiveStop"`
	// TrailingATRMult is the adaptive trailing multiplier. Zero means the
	// trail is not armed yet. Once set it only tightens.
	TrailingATRMult float64      `json:"trailingAtrMult"`
	ScalesCompleted map[int]bool `json:"scalesCompleted"`
	HighestPrice    float64      `json:"highestPrice"`
	LowestPrice     float64      `json:"lowestPrice"`
	MAE             float64      `json:"mae"` // worst excursion, price terms
	MFE             float64      `json:"mfe"` // best excursion, price terms
	MAEPercent      float64      `json:"maePercent"`
	MFEPercent      float64      `json:"mfePercent"`
	BarsHeld        int          `json:"barsHeld"`
}

// UnrealizedPerShare returns the per-share open profit at price. Positive is
// favorable for either direction.
func (p *EquityPosition) UnrealizedPerShare(price float64) float64 {
	if p.Direction == DirectionShort {
		return p.EntryPrice - price
	}
	return price - p.EntryPrice
}

// ProfitInATR expresses the open profit as a multiple of ATR. Returns zero
// when atr is not positive.
func (p *EquityPosition) ProfitInATR(price, atr float64) float64 {
	if atr <= 0 {
		return 0
	}
	return p.UnrealizedPerShare(price) / atr
}

// ObservePrice folds a new price into the extremes and the MAE/MFE
// accumulators.
func (p *EquityPosition) ObservePrice(price float64) {
	if price > p.HighestPrice {
		p.HighestPrice = price
	}
	if price < p.LowestPrice || p.LowestPrice == 0 {
		p.LowestPrice = price
	}

	excursion := p.UnrealizedPerShare(price)
	if excursion < -p.MAE {
		p.MAE = -excursion
		if p.EntryPrice != 0 {
			p.MAEPercent = p.MAE / p.EntryPrice * 100
		}
	}
	if excursion > p.MFE {
		p.MFE = excursion
		if p.EntryPrice != 0 {
			p.MFEPercent = p.MFE / p.EntryPrice * 100
		}
	}
}

// TradeRecord is an immutable record of a closed or partially closed trade.
type TradeRecord struct {
	ID         string          `json:"id"`
	Symbol     string          `json:"symbol"`
	Strategy   string          `json:"strategy"`
	Direction  Direction       `json:"direction"`
	Quantity   int64           `json:"quantity"`
	EntryPrice float64         `json:"entryPrice"`
	ExitPrice  float64         `json:"exitPrice"`
	EntryTime  time.Time       `json:"entryTime"`
	ExitTime   time.Time       `json:"exitTime"`
	PnL        decimal.Decimal `json:"pnl"`
	PnLPercent float64         `json:"pnlPercent"`
	ExitReason ExitReason      `json:"exitReason"`
	Slippage   float64         `json:"slippage"` // dollars paid to the fill model
	MAE        float64         `json:"mae"`
	MFE        float64         `json:"mfe"`
	MAEPercent float64         `json:"maePercent"`
	MFEPercent float64         `json:"mfePercent"`
	BarsHeld   int             `json:"barsHeld"`
}
