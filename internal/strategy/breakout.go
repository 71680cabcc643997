package strategy

import (
	"math"
	"time"

	"github.com/Vrajp610/spy-daytrader-sub000/internal/regime"
	"github.com/Vrajp610/spy-daytrader-sub000/pkg/types"
	"go.uber.org/zap"
)

// BreakoutStrategy trades range breakouts confirmed by volume and momentum.
// It defines the range as the rolling high/low over a lookback window and
// enters on the first close outside it.
type BreakoutStrategy struct {
	params
	logger *zap.Logger
}

// NewBreakoutStrategy creates a breakout strategy with default parameters.
func NewBreakoutStrategy(logger *zap.Logger) *BreakoutStrategy {
	return &BreakoutStrategy{
		logger: logger.Named("breakout"),
		params: newParams([]Parameter{
			{Name: "lookback", Description: "range window in bars", Type: "int", Default: 30},
			{Name: "volume_mult", Description: "minimum volume ratio", Type: "float", Default: 1.5},
			{Name: "atr_stop_mult", Description: "stop distance in ATRs", Type: "float", Default: 1.5},
			{Name: "reward_risk", Description: "take-profit multiple of risk", Type: "float", Default: 2.0},
			{Name: "max_hold_bars", Description: "time stop in bars", Type: "int", Default: 120},
			{Name: "breakout_confirm_bars", Description: "failure window after entry", Type: "int", Default: 5},
		}),
	}
}

func (s *BreakoutStrategy) Name() string { return "breakout" }

func (s *BreakoutStrategy) Description() string {
	return "Range breakout with volume and momentum confirmation"
}

func (s *BreakoutStrategy) FitsRegime(r regime.Regime) bool {
	return r == regime.TrendingUp || r == regime.TrendingDown || r == regime.Volatile
}

func (s *BreakoutStrategy) GenerateSignal(history []types.Bar, index int, now time.Time) *types.TradeSignal {
	lookback := s.intVal("lookback")
	if index < lookback || index >= len(history) {
		return nil
	}
	bar := history[index]
	if bar.ATR <= 0 || bar.VolumeRatio < s.floatVal("volume_mult") {
		return nil
	}

	rangeHigh, rangeLow := rangeExtremes(history[index-lookback:index])

	var direction types.Direction
	switch {
	case bar.Close > rangeHigh && bar.RSI > 50:
		direction = types.DirectionLong
	case bar.Close < rangeLow && bar.RSI < 50:
		direction = types.DirectionShort
	default:
		return nil
	}

	stopDist := s.floatVal("atr_stop_mult") * bar.ATR
	entry := bar.Close
	stop := entry - stopDist
	target := entry + s.floatVal("reward_risk")*stopDist
	if direction == types.DirectionShort {
		stop = entry + stopDist
		target = entry - s.floatVal("reward_risk")*stopDist
	}

	confidence := 0.60
	if bar.ADX > 25 {
		confidence += 0.10
	}
	if bar.VolumeRatio > 2.0 {
		confidence += 0.10
	}

	s.logger.Debug("breakout signal",
		zap.String("direction", string(direction)),
		zap.Float64("entry", entry),
		zap.Float64("range_high", rangeHigh),
		zap.Float64("range_low", rangeLow))

	return &types.TradeSignal{
		Strategy:   s.Name(),
		Direction:  direction,
		Entry:      entry,
		StopLoss:   stop,
		TakeProfit: target,
		Confidence: confidence,
		Timestamp:  now,
	}
}

func (s *BreakoutStrategy) ShouldExit(history []types.Bar, index int, entry *types.TradeSignal, entryTime, now time.Time, highest, lowest float64) *types.ExitSignal {
	if index < 0 || index >= len(history) {
		return nil
	}
	bar := history[index]
	barsHeld := int(now.Sub(entryTime) / time.Minute)

	// A breakout that gives back more than half an ATR inside the confirm
	// window never established itself.
	if barsHeld <= s.intVal("breakout_confirm_bars") && bar.ATR > 0 {
		giveback := entry.Entry - bar.Close
		if entry.Direction == types.DirectionShort {
			giveback = bar.Close - entry.Entry
		}
		if giveback > 0.5*bar.ATR {
			return &types.ExitSignal{Reason: types.ExitFalseBreakout, Price: bar.Close, Timestamp: now}
		}
	}

	if barsHeld >= s.intVal("max_hold_bars") {
		return &types.ExitSignal{Reason: types.ExitTimeStop, Price: bar.Close, Timestamp: now}
	}

	// Momentum flipping through the slow EMA reverses the thesis.
	if entry.Direction == types.DirectionLong && bar.Close < bar.EMA21 && bar.MACD < bar.MACDSignal {
		return &types.ExitSignal{Reason: types.ExitReverseSignal, Price: bar.Close, Timestamp: now}
	}
	if entry.Direction == types.DirectionShort && bar.Close > bar.EMA21 && bar.MACD > bar.MACDSignal {
		return &types.ExitSignal{Reason: types.ExitReverseSignal, Price: bar.Close, Timestamp: now}
	}
	return nil
}

func rangeExtremes(bars []types.Bar) (high, low float64) {
	high = math.Inf(-1)
	low = math.Inf(1)
	for _, b := range bars {
		high = math.Max(high, b.High)
		low = math.Min(low, b.Low)
	}
	return high, low
}
