// Package regime classifies recent market behavior into one of four coarse
// regimes that gate strategy selection and option structuring.
package regime

import (
	"sort"

	"github.com/Vrajp610/spy-daytrader-sub000/pkg/types"
	"go.uber.org/zap"
)

// Regime is a coarse classification of current market behavior.
type Regime string

const (
	TrendingUp   Regime = "trending_up"
	TrendingDown Regime = "trending_down"
	RangeBound   Regime = "range_bound"
	Volatile     Regime = "volatile"
)

// Config holds the classification thresholds.
type Config struct {
	// VolBandWidth is the Bollinger band-width level above which the
	// market is volatility-dominated.
	VolBandWidth float64 `mapstructure:"vol_band_width"`
	// ATRMedianMult: current ATR must exceed this multiple of its rolling
	// median for the volatile classification.
	ATRMedianMult float64 `mapstructure:"atr_median_mult"`
	// TrendADX is the ADX level above which the market counts as trending.
	TrendADX float64 `mapstructure:"trend_adx"`
	// RangeADX is the ADX level below which the market counts as range
	// bound, together with RangeBandWidth.
	RangeADX       float64 `mapstructure:"range_adx"`
	RangeBandWidth float64 `mapstructure:"range_band_width"`
	// SlopeBars is the lookback for the short-term close slope used to
	// break trend-direction ties.
	SlopeBars int `mapstructure:"slope_bars"`
	// ATRWindow is the lookback for the rolling ATR median.
	ATRWindow int `mapstructure:"atr_window"`
	// MinBars is the history needed before any classification other than
	// the range-bound default.
	MinBars int `mapstructure:"min_bars"`
}

// DefaultConfig returns thresholds tuned for 1-minute equity-index bars.
func DefaultConfig() Config {
	return Config{
		VolBandWidth:   0.030,
		ATRMedianMult:  1.5,
		TrendADX:       25,
		RangeADX:       20,
		RangeBandWidth: 0.015,
		SlopeBars:      5,
		ATRWindow:      30,
		MinBars:        10,
	}
}

// Detector classifies a trailing bar window into a Regime. Classify is a
// pure function of its input; the detector only carries config and a logger.
type Detector struct {
	logger *zap.Logger
	config Config
}

// NewDetector creates a regime detector.
func NewDetector(logger *zap.Logger, config Config) *Detector {
	return &Detector{
		logger: logger.Named("regime"),
		config: config,
	}
}

// Classify evaluates the rules in fixed order: volatile, trending,
// range-bound, then the range-bound default for anything ambiguous or with
// insufficient history.
func (d *Detector) Classify(bars []types.Bar) Regime {
	if len(bars) < d.config.MinBars {
		return RangeBound
	}

	cur := bars[len(bars)-1]

	// Volatility dominates: wide bands plus ATR expansion vs its median.
	medATR := d.rollingMedianATR(bars)
	if cur.BandWidth > d.config.VolBandWidth && medATR > 0 && cur.ATR > d.config.ATRMedianMult*medATR {
		return Volatile
	}

	// Trend: strong ADX, direction from price vs VWAP with the short-term
	// close slope as tiebreaker.
	if cur.ADX > d.config.TrendADX {
		if d.trendIsUp(bars, cur) {
			return TrendingUp
		}
		return TrendingDown
	}

	if cur.ADX < d.config.RangeADX && cur.BandWidth < d.config.RangeBandWidth {
		return RangeBound
	}

	return RangeBound
}

func (d *Detector) trendIsUp(bars []types.Bar, cur types.Bar) bool {
	aboveVWAP := cur.VWAP == 0 || cur.Close >= cur.VWAP
	slope := d.closeSlope(bars)

	if aboveVWAP && slope >= 0 {
		return true
	}
	if !aboveVWAP && slope < 0 {
		return false
	}
	// VWAP and slope disagree; the slope is the fresher signal.
	return slope >= 0
}

func (d *Detector) closeSlope(bars []types.Bar) float64 {
	n := d.config.SlopeBars
	if n < 2 {
		n = 2
	}
	if len(bars) < n {
		n = len(bars)
	}
	first := bars[len(bars)-n].Close
	last := bars[len(bars)-1].Close
	return last - first
}

func (d *Detector) rollingMedianATR(bars []types.Bar) float64 {
	window := d.config.ATRWindow
	if window <= 0 || window > len(bars) {
		window = len(bars)
	}

	atrs := make([]float64, 0, window)
	for _, b := range bars[len(bars)-window:] {
		if b.ATR > 0 {
			atrs = append(atrs, b.ATR)
		}
	}
	if len(atrs) == 0 {
		return 0
	}

	sort.Float64s(atrs)
	mid := len(atrs) / 2
	if len(atrs)%2 == 1 {
		return atrs[mid]
	}
	return (atrs[mid-1] + atrs[mid]) / 2
}
