// Package types provides the shared domain types for the trading engine.
package types

import "time"

// Timeframe is a bar resolution.
type Timeframe string

const (
	Timeframe1m Timeframe = "1m"
	Timeframe5m Timeframe = "5m"
)

// Bar is one OHLCV bar with its precomputed indicator columns. Indicator
// computation is the data provider's job; the engine only reads them.
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`

	ATR         float64 `json:"atr"`
	RSI         float64 `json:"rsi"`
	MACD        float64 `json:"macd"`
	MACDSignal  float64 `json:"macdSignal"`
	ADX         float64 `json:"adx"`
	EMA9        float64 `json:"ema9"`
	EMA21       float64 `json:"ema21"`
	VWAP        float64 `json:"vwap"`
	BandWidth   float64 `json:"bandWidth"` // Bollinger band width / middle band
	VolumeRatio float64 `json:"volumeRatio"`
}

// MarketSnapshot is the per-tick view of the market the engine decides on.
type MarketSnapshot struct {
	Symbol    string    `json:"symbol"`
	Bars1m    []Bar     `json:"-"`
	Bars5m    []Bar     `json:"-"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// LastBar returns the most recent 1-minute bar, or false when the snapshot
// has no history yet.
func (s *MarketSnapshot) LastBar() (Bar, bool) {
	if s == nil || len(s.Bars1m) == 0 {
		return Bar{}, false
	}
	return s.Bars1m[len(s.Bars1m)-1], true
}
