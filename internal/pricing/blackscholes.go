// Package pricing provides closed-form Black-Scholes option pricing and
// Greeks, plus an implied-volatility heuristic for when no live chain
// exists.
package pricing

import (
	"math"
	"time"

	"github.com/Vrajp610/spy-daytrader-sub000/pkg/types"
)

// Config holds pricing parameters.
type Config struct {
	// RiskFreeRate is the annualized continuously compounded rate.
	RiskFreeRate float64 `mapstructure:"risk_free_rate"`
	// MinIV and MaxIV clamp the ATR-implied volatility estimate.
	MinIV float64 `mapstructure:"min_iv"`
	MaxIV float64 `mapstructure:"max_iv"`
}

// DefaultConfig returns the shipped pricing parameters.
func DefaultConfig() Config {
	return Config{
		RiskFreeRate: 0.045,
		MinIV:        0.08,
		MaxIV:        1.20,
	}
}

// Engine prices options and computes Greeks. All methods are pure.
type Engine struct {
	config Config
}

// NewEngine creates a pricing engine.
func NewEngine(config Config) *Engine {
	return &Engine{config: config}
}

const (
	minutesPerSession  = 390.0
	tradingDaysPerYear = 252.0
)

// Price returns the Black-Scholes value of an option. At or past expiry
// (T <= 0) it returns intrinsic value.
func (e *Engine) Price(typ types.OptionType, spot, strike, timeYears, iv float64) float64 {
	if timeYears <= 0 {
		return intrinsic(typ, spot, strike)
	}
	if iv <= 0 || spot <= 0 || strike <= 0 {
		return intrinsic(typ, spot, strike)
	}

	d1, d2 := e.d1d2(spot, strike, timeYears, iv)
	discount := math.Exp(-e.config.RiskFreeRate * timeYears)

	if typ == types.OptionCall {
		return spot*normCDF(d1) - strike*discount*normCDF(d2)
	}
	return strike*discount*normCDF(-d2) - spot*normCDF(-d1)
}

// Greeks returns delta, gamma, theta (per calendar day), and vega (per
// volatility point) for an option. At expiry the Greeks collapse to the
// boundary values.
func (e *Engine) Greeks(typ types.OptionType, spot, strike, timeYears, iv float64) types.Greeks {
	if timeYears <= 0 || iv <= 0 || spot <= 0 || strike <= 0 {
		return expiryGreeks(typ, spot, strike)
	}

	d1, d2 := e.d1d2(spot, strike, timeYears, iv)
	discount := math.Exp(-e.config.RiskFreeRate * timeYears)
	pdf := normPDF(d1)
	sqrtT := math.Sqrt(timeYears)

	g := types.Greeks{
		Gamma: pdf / (spot * iv * sqrtT),
		Vega:  spot * pdf * sqrtT / 100,
	}

	if typ == types.OptionCall {
		g.Delta = normCDF(d1)
		g.Theta = (-spot*pdf*iv/(2*sqrtT) -
			e.config.RiskFreeRate*strike*discount*normCDF(d2)) / 365
	} else {
		g.Delta = normCDF(d1) - 1
		g.Theta = (-spot*pdf*iv/(2*sqrtT) +
			e.config.RiskFreeRate*strike*discount*normCDF(-d2)) / 365
	}
	return g
}

// ImpliedVolFromATR converts a short-window ATR on 1-minute bars into an
// annualized volatility usable when no live chain exists. The ATR is scaled
// to a daily figure over a 390-minute session, expressed as a fraction of
// price, then annualized by sqrt(252). The result is clamped to the
// configured IV bounds.
func (e *Engine) ImpliedVolFromATR(atr, price float64) float64 {
	if atr <= 0 || price <= 0 {
		return e.config.MinIV
	}

	dailyRange := atr * math.Sqrt(minutesPerSession)
	iv := dailyRange / price * math.Sqrt(tradingDaysPerYear)

	if iv < e.config.MinIV {
		return e.config.MinIV
	}
	if iv > e.config.MaxIV {
		return e.config.MaxIV
	}
	return iv
}

// TimeToExpiry returns the year fraction between now and expiration,
// floored at zero.
func TimeToExpiry(expiration, now time.Time) float64 {
	t := expiration.Sub(now).Hours() / 24 / 365
	if t < 0 {
		return 0
	}
	return t
}

func (e *Engine) d1d2(spot, strike, timeYears, iv float64) (float64, float64) {
	sqrtT := math.Sqrt(timeYears)
	d1 := (math.Log(spot/strike) + (e.config.RiskFreeRate+iv*iv/2)*timeYears) / (iv * sqrtT)
	return d1, d1 - iv*sqrtT
}

func intrinsic(typ types.OptionType, spot, strike float64) float64 {
	if typ == types.OptionCall {
		return math.Max(0, spot-strike)
	}
	return math.Max(0, strike-spot)
}

func expiryGreeks(typ types.OptionType, spot, strike float64) types.Greeks {
	var delta float64
	if typ == types.OptionCall {
		if spot > strike {
			delta = 1
		}
	} else {
		if spot < strike {
			delta = -1
		}
	}
	return types.Greeks{Delta: delta}
}

// normCDF is the standard normal cumulative distribution function.
func normCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}

// normPDF is the standard normal probability density function.
func normPDF(x float64) float64 {
	return math.Exp(-x*x/2) / math.Sqrt(2*math.Pi)
}
