package strategy

import (
	"time"

	"github.com/Vrajp610/spy-daytrader-sub000/internal/regime"
	"github.com/Vrajp610/spy-daytrader-sub000/pkg/types"
	"go.uber.org/zap"
)

// VWAPReversionStrategy fades stretched moves away from VWAP in quiet
// markets, targeting a reversion back to it.
type VWAPReversionStrategy struct {
	params
	logger *zap.Logger
}

// NewVWAPReversionStrategy creates a VWAP reversion strategy with default
// parameters.
func NewVWAPReversionStrategy(logger *zap.Logger) *VWAPReversionStrategy {
	return &VWAPReversionStrategy{
		logger: logger.Named("vwap-reversion"),
		params: newParams([]Parameter{
			{Name: "stretch_atr", Description: "distance from VWAP in ATRs to fade", Type: "float", Default: 1.5},
			{Name: "rsi_oversold", Description: "RSI floor for longs", Type: "float", Default: 30.0},
			{Name: "rsi_overbought", Description: "RSI ceiling for shorts", Type: "float", Default: 70.0},
			{Name: "atr_stop_mult", Description: "stop distance in ATRs", Type: "float", Default: 1.0},
			{Name: "max_hold_bars", Description: "time stop in bars", Type: "int", Default: 60},
		}),
	}
}

func (s *VWAPReversionStrategy) Name() string { return "vwap_reversion" }

func (s *VWAPReversionStrategy) Description() string {
	return "Mean reversion toward VWAP from stretched extremes"
}

func (s *VWAPReversionStrategy) FitsRegime(r regime.Regime) bool {
	return r == regime.RangeBound
}

func (s *VWAPReversionStrategy) GenerateSignal(history []types.Bar, index int, now time.Time) *types.TradeSignal {
	if index < 0 || index >= len(history) {
		return nil
	}
	bar := history[index]
	if bar.ATR <= 0 || bar.VWAP <= 0 {
		return nil
	}

	stretch := s.floatVal("stretch_atr") * bar.ATR
	stopDist := s.floatVal("atr_stop_mult") * bar.ATR

	var direction types.Direction
	switch {
	case bar.Close < bar.VWAP-stretch && bar.RSI < s.floatVal("rsi_oversold"):
		direction = types.DirectionLong
	case bar.Close > bar.VWAP+stretch && bar.RSI > s.floatVal("rsi_overbought"):
		direction = types.DirectionShort
	default:
		return nil
	}

	entry := bar.Close
	stop := entry - stopDist
	if direction == types.DirectionShort {
		stop = entry + stopDist
	}

	// Stretch beyond the trigger adds conviction.
	confidence := 0.60
	excess := bar.Close - bar.VWAP
	if direction == types.DirectionLong {
		excess = bar.VWAP - bar.Close
	}
	if excess > 2*bar.ATR {
		confidence += 0.10
	}

	s.logger.Debug("vwap reversion signal",
		zap.String("direction", string(direction)),
		zap.Float64("entry", entry),
		zap.Float64("vwap", bar.VWAP))

	return &types.TradeSignal{
		Strategy:   s.Name(),
		Direction:  direction,
		Entry:      entry,
		StopLoss:   stop,
		TakeProfit: bar.VWAP,
		Confidence: confidence,
		Timestamp:  now,
	}
}

func (s *VWAPReversionStrategy) ShouldExit(history []types.Bar, index int, entry *types.TradeSignal, entryTime, now time.Time, highest, lowest float64) *types.ExitSignal {
	if index < 0 || index >= len(history) {
		return nil
	}
	bar := history[index]
	barsHeld := int(now.Sub(entryTime) / time.Minute)

	if barsHeld >= s.intVal("max_hold_bars") {
		return &types.ExitSignal{Reason: types.ExitTimeStop, Price: bar.Close, Timestamp: now}
	}

	// Momentum pushing to the opposite extreme means the fade is wrong.
	if entry.Direction == types.DirectionLong && bar.RSI > s.floatVal("rsi_overbought") {
		return &types.ExitSignal{Reason: types.ExitReverseSignal, Price: bar.Close, Timestamp: now}
	}
	if entry.Direction == types.DirectionShort && bar.RSI < s.floatVal("rsi_oversold") {
		return &types.ExitSignal{Reason: types.ExitReverseSignal, Price: bar.Close, Timestamp: now}
	}
	return nil
}
