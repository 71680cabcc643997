// Package regime_test provides tests for the regime detector.
package regime_test

import (
	"testing"
	"time"

	"github.com/Vrajp610/spy-daytrader-sub000/internal/regime"
	"github.com/Vrajp610/spy-daytrader-sub000/pkg/types"
	"go.uber.org/zap"
)

func makeBars(n int, mutate func(i int, b *types.Bar)) []types.Bar {
	bars := make([]types.Bar, n)
	base := time.Date(2024, 6, 3, 9, 30, 0, 0, time.UTC)
	for i := range bars {
		b := types.Bar{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Open:      500, High: 500.5, Low: 499.5, Close: 500,
			Volume:    100000,
			ATR:       0.5,
			ADX:       15,
			VWAP:      500,
			BandWidth: 0.010,
		}
		if mutate != nil {
			mutate(i, &b)
		}
		bars[i] = b
	}
	return bars
}

func newDetector() *regime.Detector {
	return regime.NewDetector(zap.NewNop(), regime.DefaultConfig())
}

func TestInsufficientHistoryDefaultsToRangeBound(t *testing.T) {
	d := newDetector()

	got := d.Classify(makeBars(3, nil))
	if got != regime.RangeBound {
		t.Errorf("expected range_bound for short history, got %s", got)
	}

	if got := d.Classify(nil); got != regime.RangeBound {
		t.Errorf("expected range_bound for nil history, got %s", got)
	}
}

func TestVolatileTakesPriorityOverTrend(t *testing.T) {
	d := newDetector()

	bars := makeBars(60, func(i int, b *types.Bar) {
		// Strong ADX that would otherwise classify as trending.
		b.ADX = 40
		b.Close = 500 + float64(i)*0.2
	})
	last := &bars[len(bars)-1]
	last.BandWidth = 0.05
	last.ATR = 2.0 // well above the 0.5 median

	if got := d.Classify(bars); got != regime.Volatile {
		t.Errorf("expected volatile, got %s", got)
	}
}

func TestTrendingUpAndDown(t *testing.T) {
	d := newDetector()

	up := makeBars(60, func(i int, b *types.Bar) {
		b.ADX = 30
		b.Close = 500 + float64(i)*0.1
		b.VWAP = 499
	})
	if got := d.Classify(up); got != regime.TrendingUp {
		t.Errorf("expected trending_up, got %s", got)
	}

	down := makeBars(60, func(i int, b *types.Bar) {
		b.ADX = 30
		b.Close = 500 - float64(i)*0.1
		b.VWAP = 501
	})
	if got := d.Classify(down); got != regime.TrendingDown {
		t.Errorf("expected trending_down, got %s", got)
	}
}

func TestRangeBoundOnQuietTape(t *testing.T) {
	d := newDetector()

	bars := makeBars(60, func(i int, b *types.Bar) {
		b.ADX = 12
		b.BandWidth = 0.008
	})
	if got := d.Classify(bars); got != regime.RangeBound {
		t.Errorf("expected range_bound, got %s", got)
	}
}

func TestAmbiguousDefaultsToRangeBound(t *testing.T) {
	d := newDetector()

	// ADX between the range and trend thresholds, normal volatility.
	bars := makeBars(60, func(i int, b *types.Bar) {
		b.ADX = 22
		b.BandWidth = 0.020
	})
	if got := d.Classify(bars); got != regime.RangeBound {
		t.Errorf("expected range_bound for ambiguous tape, got %s", got)
	}
}
