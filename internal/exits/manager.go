// Package exits implements the priority-ordered exit decision function for
// the open position: scale-out ladder first, then the adaptive trailing
// stop, then the effective stop, then strategy pass-through exits.
package exits

import (
	"math"
	"time"

	"github.com/Vrajp610/spy-daytrader-sub000/pkg/types"
	"go.uber.org/zap"
)

// Config holds the exit-manager parameters.
type Config struct {
	// ScaleLadder is the scale-out schedule. Fractions apply to the
	// original quantity.
	ScaleLadder []types.ScaleLevel `mapstructure:"scale_ladder"`
	// Trailing multiplier tiers by profit measured in ATRs: below
	// TrailArmATR the trail is unset, between TrailArmATR and
	// TrailTightenATR it is TrailWideMult, beyond it TrailTightMult.
	TrailArmATR     float64 `mapstructure:"trail_arm_atr"`
	TrailTightenATR float64 `mapstructure:"trail_tighten_atr"`
	TrailWideMult   float64 `mapstructure:"trail_wide_mult"`
	TrailTightMult  float64 `mapstructure:"trail_tight_mult"`
}

// DefaultConfig returns the shipped exit parameters.
func DefaultConfig() Config {
	return Config{
		ScaleLadder:     types.DefaultScaleLadder(),
		TrailArmATR:     1.0,
		TrailTightenATR: 2.0,
		TrailWideMult:   0.75,
		TrailTightMult:  0.50,
	}
}

// Manager evaluates exits for the open position. It never mutates the
// position itself; ComputePositionUpdates and PostScaleUpdates return the
// mutations for the ledger to apply.
type Manager struct {
	logger *zap.Logger
	config Config
}

// NewManager creates an exit manager.
func NewManager(logger *zap.Logger, config Config) *Manager {
	if len(config.ScaleLadder) == 0 {
		config.ScaleLadder = types.DefaultScaleLadder()
	}
	return &Manager{
		logger: logger.Named("exits"),
		config: config,
	}
}

// scaleReasons maps ladder index to its exit tag.
var scaleReasons = []types.ExitReason{types.ExitScaleOut1, types.ExitScaleOut2}

// Evaluate returns the first exit decision in priority order, or nil when
// the position should be held. strategyExit is the optional exit proposed by
// the originating strategy; only its non-price reasons are honored, the
// price-based ones are superseded by the manager's own checks.
func (m *Manager) Evaluate(pos *types.EquityPosition, price, atr float64, strategyExit *types.ExitSignal, now time.Time) *types.ExitSignal {
	if pos == nil {
		return nil
	}

	// 1. Scale-out ladder.
	if sig := m.evaluateScales(pos, price, atr, now); sig != nil {
		return sig
	}

	// 2. Adaptive trailing stop.
	if sig := m.evaluateTrailing(pos, price, atr, now); sig != nil {
		return sig
	}

	// 3. Effective stop (initial, breakeven, or tightened).
	if m.stopCrossed(pos, price) {
		return &types.ExitSignal{Reason: types.ExitStopLoss, Price: price, Timestamp: now}
	}

	// 4. Pass-through for the strategy's own non-price exits.
	if strategyExit != nil {
		switch strategyExit.Reason {
		case types.ExitEndOfDay, types.ExitTimeStop, types.ExitReverseSignal, types.ExitFalseBreakout:
			return strategyExit
		}
	}

	return nil
}

func (m *Manager) evaluateScales(pos *types.EquityPosition, price, atr float64, now time.Time) *types.ExitSignal {
	profitATR := pos.ProfitInATR(price, atr)

	for i, level := range m.config.ScaleLadder {
		if pos.ScalesCompleted[i] {
			continue
		}
		if profitATR < level.TriggerATRMultiple {
			continue
		}

		qty := int64(math.Floor(float64(pos.OriginalQuantity) * level.Fraction))
		if qty < 1 {
			qty = 1
		}
		// A scale-out never flattens the position.
		if qty > pos.Quantity-1 {
			qty = pos.Quantity - 1
		}
		if qty < 1 {
			continue
		}

		reason := types.ExitScaleOut2
		if i < len(scaleReasons) {
			reason = scaleReasons[i]
		}
		m.logger.Debug("scale-out triggered",
			zap.Int("level", i),
			zap.Int64("quantity", qty),
			zap.Float64("profitAtr", profitATR))
		return &types.ExitSignal{Reason: reason, Price: price, Timestamp: now, Quantity: qty}
	}
	return nil
}

func (m *Manager) evaluateTrailing(pos *types.EquityPosition, price, atr float64, now time.Time) *types.ExitSignal {
	mult := m.trailingMult(pos, price, atr)
	if mult <= 0 || atr <= 0 {
		return nil
	}

	if pos.Direction == types.DirectionLong {
		level := pos.HighestPrice - mult*atr
		if price <= level {
			return &types.ExitSignal{Reason: types.ExitAdaptiveTrailing, Price: price, Timestamp: now}
		}
	} else {
		level := pos.LowestPrice + mult*atr
		if price >= level {
			return &types.ExitSignal{Reason: types.ExitAdaptiveTrailing, Price: price, Timestamp: now}
		}
	}
	return nil
}

// trailingMult returns the multiplier currently in force: the tier implied
// by open profit, never looser than one already set on the position.
func (m *Manager) trailingMult(pos *types.EquityPosition, price, atr float64) float64 {
	tier := 0.0
	profitATR := pos.ProfitInATR(price, atr)
	switch {
	case profitATR >= m.config.TrailTightenATR:
		tier = m.config.TrailTightMult
	case profitATR >= m.config.TrailArmATR:
		tier = m.config.TrailWideMult
	}

	if pos.TrailingATRMult > 0 && (tier == 0 || pos.TrailingATRMult < tier) {
		return pos.TrailingATRMult
	}
	return tier
}

func (m *Manager) stopCrossed(pos *types.EquityPosition, price float64) bool {
	if pos.EffectiveStop <= 0 {
		return false
	}
	if pos.Direction == types.DirectionLong {
		return price <= pos.EffectiveStop
	}
	return price >= pos.EffectiveStop
}

// PositionUpdates is the set of mutations to apply to the open position
// after a tick or a scale-out.
type PositionUpdates struct {
	// TrailingATRMult, when positive, replaces the position's multiplier.
	TrailingATRMult float64
	// EffectiveStop, when non-zero, replaces the effective stop.
	EffectiveStop float64
	// CompleteScale, when >= 0, marks the ladder index as fired.
	CompleteScale int
}

// ComputePositionUpdates keeps the trailing multiplier current. It runs
// every tick regardless of whether an exit fired. The multiplier only ever
// tightens; effective-stop moves come from scale events.
func (m *Manager) ComputePositionUpdates(pos *types.EquityPosition, price, atr float64) PositionUpdates {
	upd := PositionUpdates{CompleteScale: -1}
	if pos == nil || atr <= 0 {
		return upd
	}

	mult := m.trailingMult(pos, price, atr)
	if mult > 0 && (pos.TrailingATRMult == 0 || mult < pos.TrailingATRMult) {
		upd.TrailingATRMult = mult
	}
	return upd
}

// PostScaleUpdates computes the position mutation to apply after the ledger
// executes a scale-out at ladder index level.
func (m *Manager) PostScaleUpdates(pos *types.EquityPosition, level int) PositionUpdates {
	upd := PositionUpdates{CompleteScale: level}
	if pos == nil || level < 0 || level >= len(m.config.ScaleLadder) {
		return upd
	}

	cfg := m.config.ScaleLadder[level]
	if cfg.MoveStopToBreakeven {
		if pos.Direction == types.DirectionLong {
			if pos.EntryPrice > pos.EffectiveStop {
				upd.EffectiveStop = pos.EntryPrice
			}
		} else {
			if pos.EffectiveStop == 0 || pos.EntryPrice < pos.EffectiveStop {
				upd.EffectiveStop = pos.EntryPrice
			}
		}
	}
	if cfg.NewTrailingATRMult > 0 {
		if pos.TrailingATRMult == 0 || cfg.NewTrailingATRMult < pos.TrailingATRMult {
			upd.TrailingATRMult = cfg.NewTrailingATRMult
		}
	}
	return upd
}

// LadderIndex maps a scale-out exit reason back to its ladder index, or -1
// for non-scale reasons.
func (m *Manager) LadderIndex(reason types.ExitReason) int {
	for i, r := range scaleReasons {
		if r == reason && i < len(m.config.ScaleLadder) {
			return i
		}
	}
	return -1
}

// ApplyUpdates applies a PositionUpdates to the position, respecting the
// monotonicity invariants a second time at the write site.
func ApplyUpdates(pos *types.EquityPosition, upd PositionUpdates) {
	if pos == nil {
		return
	}
	if upd.TrailingATRMult > 0 && (pos.TrailingATRMult == 0 || upd.TrailingATRMult < pos.TrailingATRMult) {
		pos.TrailingATRMult = upd.TrailingATRMult
	}
	if upd.EffectiveStop != 0 {
		if pos.Direction == types.DirectionLong {
			if upd.EffectiveStop > pos.EffectiveStop {
				pos.EffectiveStop = upd.EffectiveStop
			}
		} else {
			if pos.EffectiveStop == 0 || upd.EffectiveStop < pos.EffectiveStop {
				pos.EffectiveStop = upd.EffectiveStop
			}
		}
	}
	if upd.CompleteScale >= 0 {
		if pos.ScalesCompleted == nil {
			pos.ScalesCompleted = make(map[int]bool)
		}
		pos.ScalesCompleted[upd.CompleteScale] = true
	}
}
