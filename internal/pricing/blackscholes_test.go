// Package pricing_test provides tests for the Black-Scholes engine.
package pricing_test

import (
	"math"
	"testing"
	"time"

	"github.com/Vrajp610/spy-daytrader-sub000/internal/pricing"
	"github.com/Vrajp610/spy-daytrader-sub000/pkg/types"
)

func newEngine() *pricing.Engine {
	return pricing.NewEngine(pricing.DefaultConfig())
}

func TestPutCallParity(t *testing.T) {
	e := newEngine()
	spot, strike, tm, iv := 500.0, 505.0, 30.0/365, 0.20
	r := pricing.DefaultConfig().RiskFreeRate

	call := e.Price(types.OptionCall, spot, strike, tm, iv)
	put := e.Price(types.OptionPut, spot, strike, tm, iv)

	// C - P = S - K*exp(-rT)
	lhs := call - put
	rhs := spot - strike*math.Exp(-r*tm)
	if math.Abs(lhs-rhs) > 1e-9 {
		t.Errorf("put-call parity violated: C-P=%.9f, S-Ke^-rT=%.9f", lhs, rhs)
	}
}

func TestPriceBounds(t *testing.T) {
	e := newEngine()
	spot, strike, tm, iv := 500.0, 490.0, 14.0/365, 0.25

	call := e.Price(types.OptionCall, spot, strike, tm, iv)
	if call < spot-strike {
		t.Errorf("call %.4f below intrinsic %.4f", call, spot-strike)
	}
	if call > spot {
		t.Errorf("call %.4f above spot", call)
	}

	put := e.Price(types.OptionPut, spot, strike, tm, iv)
	if put < 0 || put > strike {
		t.Errorf("put %.4f outside (0, strike)", put)
	}
}

func TestExpiryCollapsesToIntrinsic(t *testing.T) {
	e := newEngine()

	if got := e.Price(types.OptionCall, 510, 500, 0, 0.20); got != 10 {
		t.Errorf("expected intrinsic 10 at expiry, got %.4f", got)
	}
	if got := e.Price(types.OptionPut, 510, 500, 0, 0.20); got != 0 {
		t.Errorf("expected worthless put at expiry, got %.4f", got)
	}
	if got := e.Price(types.OptionPut, 490, 500, -0.01, 0.20); got != 10 {
		t.Errorf("expected intrinsic 10 past expiry, got %.4f", got)
	}
}

func TestGreeksSigns(t *testing.T) {
	e := newEngine()
	spot, strike, tm, iv := 500.0, 500.0, 21.0/365, 0.20

	call := e.Greeks(types.OptionCall, spot, strike, tm, iv)
	if call.Delta <= 0 || call.Delta >= 1 {
		t.Errorf("call delta out of (0,1): %.4f", call.Delta)
	}
	// ATM delta is close to a half.
	if call.Delta < 0.45 || call.Delta > 0.60 {
		t.Errorf("ATM call delta should be near 0.5, got %.4f", call.Delta)
	}
	if call.Gamma <= 0 {
		t.Errorf("gamma must be positive, got %.6f", call.Gamma)
	}
	if call.Theta >= 0 {
		t.Errorf("long call theta must be negative, got %.6f", call.Theta)
	}
	if call.Vega <= 0 {
		t.Errorf("vega must be positive, got %.6f", call.Vega)
	}

	put := e.Greeks(types.OptionPut, spot, strike, tm, iv)
	if put.Delta >= 0 || put.Delta <= -1 {
		t.Errorf("put delta out of (-1,0): %.4f", put.Delta)
	}
	// Gamma is identical for calls and puts.
	if math.Abs(put.Gamma-call.Gamma) > 1e-12 {
		t.Errorf("put/call gamma mismatch: %.8f vs %.8f", put.Gamma, call.Gamma)
	}
}

func TestImpliedVolFromATRClamps(t *testing.T) {
	e := newEngine()

	// Tiny ATR clamps to the floor.
	if got := e.ImpliedVolFromATR(0.001, 500); got != 0.08 {
		t.Errorf("expected floor 0.08, got %.4f", got)
	}
	// Huge ATR clamps to the ceiling.
	if got := e.ImpliedVolFromATR(10, 500); got != 1.20 {
		t.Errorf("expected ceiling 1.20, got %.4f", got)
	}
	// Zero inputs fall back to the floor.
	if got := e.ImpliedVolFromATR(0, 0); got != 0.08 {
		t.Errorf("expected floor for zero inputs, got %.4f", got)
	}

	// A normal 1-minute ATR lands strictly inside the clamp band.
	got := e.ImpliedVolFromATR(0.35, 500)
	if got <= 0.08 || got >= 1.20 {
		t.Errorf("expected interior IV, got %.4f", got)
	}
}

func TestTimeToExpiry(t *testing.T) {
	now := time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)
	exp := now.Add(365 * 24 * time.Hour)

	if got := pricing.TimeToExpiry(exp, now); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("expected 1 year, got %.6f", got)
	}
	if got := pricing.TimeToExpiry(now.Add(-time.Hour), now); got != 0 {
		t.Errorf("expected 0 for the past, got %.6f", got)
	}
}
