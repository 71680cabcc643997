// Package marketdata provides bar history for the engine: a provider
// interface, a deterministic synthetic generator, and a file-backed store.
// Providers deliver bars with their indicator columns already computed;
// the engine never calculates indicators itself.
package marketdata

import (
	"math"

	"github.com/Vrajp610/spy-daytrader-sub000/pkg/types"
)

// ComputeIndicators fills the indicator columns of a bar series in place.
// VWAP anchors at the first bar of each calendar day.
func ComputeIndicators(bars []types.Bar) {
	if len(bars) == 0 {
		return
	}

	computeATR(bars, 14)
	computeRSI(bars, 14)
	computeEMAs(bars)
	computeMACD(bars)
	computeADX(bars, 14)
	computeVWAP(bars)
	computeBandWidth(bars, 20)
	computeVolumeRatio(bars, 20)
}

func computeATR(bars []types.Bar, period int) {
	var atr float64
	for i := range bars {
		tr := bars[i].High - bars[i].Low
		if i > 0 {
			prev := bars[i-1].Close
			tr = math.Max(tr, math.Max(math.Abs(bars[i].High-prev), math.Abs(bars[i].Low-prev)))
		}
		if i == 0 {
			atr = tr
		} else {
			// Wilder smoothing.
			atr = (atr*float64(period-1) + tr) / float64(period)
		}
		bars[i].ATR = atr
	}
}

func computeRSI(bars []types.Bar, period int) {
	var avgGain, avgLoss float64
	for i := range bars {
		if i == 0 {
			bars[i].RSI = 50
			continue
		}
		change := bars[i].Close - bars[i-1].Close
		gain, loss := math.Max(change, 0), math.Max(-change, 0)
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		if avgLoss == 0 {
			bars[i].RSI = 100
			continue
		}
		rs := avgGain / avgLoss
		bars[i].RSI = 100 - 100/(1+rs)
	}
}

func computeEMAs(bars []types.Bar) {
	ema9 := newEMA(9)
	ema21 := newEMA(21)
	for i := range bars {
		bars[i].EMA9 = ema9.update(bars[i].Close)
		bars[i].EMA21 = ema21.update(bars[i].Close)
	}
}

func computeMACD(bars []types.Bar) {
	fast := newEMA(12)
	slow := newEMA(26)
	signal := newEMA(9)
	for i := range bars {
		macd := fast.update(bars[i].Close) - slow.update(bars[i].Close)
		bars[i].MACD = macd
		bars[i].MACDSignal = signal.update(macd)
	}
}

func computeADX(bars []types.Bar, period int) {
	var smTR, smPlusDM, smMinusDM, adx float64
	for i := range bars {
		if i == 0 {
			bars[i].ADX = 0
			continue
		}
		upMove := bars[i].High - bars[i-1].High
		downMove := bars[i-1].Low - bars[i].Low
		var plusDM, minusDM float64
		if upMove > downMove && upMove > 0 {
			plusDM = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM = downMove
		}
		tr := math.Max(bars[i].High-bars[i].Low,
			math.Max(math.Abs(bars[i].High-bars[i-1].Close), math.Abs(bars[i].Low-bars[i-1].Close)))

		n := float64(period)
		smTR = (smTR*(n-1) + tr) / n
		smPlusDM = (smPlusDM*(n-1) + plusDM) / n
		smMinusDM = (smMinusDM*(n-1) + minusDM) / n

		if smTR == 0 {
			bars[i].ADX = adx
			continue
		}
		plusDI := 100 * smPlusDM / smTR
		minusDI := 100 * smMinusDM / smTR
		sum := plusDI + minusDI
		var dx float64
		if sum > 0 {
			dx = 100 * math.Abs(plusDI-minusDI) / sum
		}
		adx = (adx*(n-1) + dx) / n
		bars[i].ADX = adx
	}
}

func computeVWAP(bars []types.Bar) {
	var cumPV, cumVol float64
	for i := range bars {
		if i > 0 && bars[i].Timestamp.YearDay() != bars[i-1].Timestamp.YearDay() {
			cumPV, cumVol = 0, 0
		}
		typical := (bars[i].High + bars[i].Low + bars[i].Close) / 3
		cumPV += typical * bars[i].Volume
		cumVol += bars[i].Volume
		if cumVol > 0 {
			bars[i].VWAP = cumPV / cumVol
		} else {
			bars[i].VWAP = bars[i].Close
		}
	}
}

func computeBandWidth(bars []types.Bar, period int) {
	for i := range bars {
		lo := i - period + 1
		if lo < 0 {
			lo = 0
		}
		window := bars[lo : i+1]

		var sum float64
		for _, b := range window {
			sum += b.Close
		}
		mean := sum / float64(len(window))

		var variance float64
		for _, b := range window {
			d := b.Close - mean
			variance += d * d
		}
		sd := math.Sqrt(variance / float64(len(window)))

		if mean > 0 {
			bars[i].BandWidth = 4 * sd / mean
		}
	}
}

func computeVolumeRatio(bars []types.Bar, period int) {
	for i := range bars {
		lo := i - period
		if lo < 0 {
			lo = 0
		}
		if i == lo {
			bars[i].VolumeRatio = 1
			continue
		}
		var sum float64
		for _, b := range bars[lo:i] {
			sum += b.Volume
		}
		avg := sum / float64(i-lo)
		if avg > 0 {
			bars[i].VolumeRatio = bars[i].Volume / avg
		} else {
			bars[i].VolumeRatio = 1
		}
	}
}

type ema struct {
	alpha  float64
	value  float64
	primed bool
}

func newEMA(period int) *ema {
	return &ema{alpha: 2.0 / float64(period+1)}
}

func (e *ema) update(v float64) float64 {
	if !e.primed {
		e.value = v
		e.primed = true
		return v
	}
	e.value = e.alpha*v + (1-e.alpha)*e.value
	return e.value
}
