// Package ledger provides the equity and options position ledgers with a
// simulated fill model and cash accounting.
package ledger

import (
	"github.com/Vrajp610/spy-daytrader-sub000/pkg/types"
)

// SlippageConfig parameterizes the volume-aware fill model.
type SlippageConfig struct {
	// BaseSpreadBps is the half-spread always paid, in basis points.
	BaseSpreadBps float64 `mapstructure:"base_spread_bps"`
	// ImpactCoeff scales the participation-rate impact: impact =
	// ImpactCoeff * (order size / bar volume), in price fraction.
	ImpactCoeff float64 `mapstructure:"impact_coeff"`
	// MaxSlippagePct caps total slippage as a fraction of price.
	MaxSlippagePct float64 `mapstructure:"max_slippage_pct"`
}

// DefaultSlippageConfig returns the shipped fill model parameters.
func DefaultSlippageConfig() SlippageConfig {
	return SlippageConfig{
		BaseSpreadBps:  2.0,
		ImpactCoeff:    0.10,
		MaxSlippagePct: 0.005,
	}
}

// SlippageModel converts a requested price into a simulated fill price.
type SlippageModel struct {
	config SlippageConfig
}

// NewSlippageModel creates a slippage model.
func NewSlippageModel(config SlippageConfig) *SlippageModel {
	return &SlippageModel{config: config}
}

// Fill returns the simulated fill price and the per-share slippage paid.
// Buys fill above the requested price, sells below. barVolume of zero skips
// the participation impact and charges only the base spread.
func (s *SlippageModel) Fill(price float64, quantity int64, barVolume float64, isBuy bool) (fill, perShare float64) {
	if price <= 0 || quantity <= 0 {
		return price, 0
	}

	frac := s.config.BaseSpreadBps / 10000
	if barVolume > 0 {
		frac += s.config.ImpactCoeff * float64(quantity) / barVolume
	}
	if s.config.MaxSlippagePct > 0 && frac > s.config.MaxSlippagePct {
		frac = s.config.MaxSlippagePct
	}

	perShare = price * frac
	if isBuy {
		return price + perShare, perShare
	}
	return price - perShare, perShare
}

// EntryIsBuy reports whether opening a position in the given direction is a
// buy at the fill model's level.
func EntryIsBuy(d types.Direction) bool {
	return d == types.DirectionLong
}
