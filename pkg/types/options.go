// Package types provides the shared domain types for the trading engine.
package types

import (
	"time"
)

// OptionType is CALL or PUT.
type OptionType string

const (
	OptionCall OptionType = "CALL"
	OptionPut  OptionType = "PUT"
)

// OptionAction is the open/close side of a leg.
type OptionAction string

const (
	BuyToOpen   OptionAction = "BUY_TO_OPEN"
	SellToOpen  OptionAction = "SELL_TO_OPEN"
	BuyToClose  OptionAction = "BUY_TO_CLOSE"
	SellToClose OptionAction = "SELL_TO_CLOSE"
)

// Greeks holds the first-order option sensitivities. Theta is per calendar
// day, vega per volatility point.
type Greeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`
}

// OptionLeg is a single contract within a structure.
type OptionLeg struct {
	Contract   string       `json:"contract"` // e.g. SPY240920C00550000
	Type       OptionType   `json:"type"`
	Strike     float64      `json:"strike"`
	Expiration time.Time    `json:"expiration"`
	Action     OptionAction `json:"action"`
	Quantity   int64        `json:"quantity"`
	Premium    float64      `json:"premium"` // per share
	Greeks     Greeks       `json:"greeks"`
	IV         float64      `json:"iv"`
}

// StructureType identifies one of the nine supported option structures.
type StructureType string

const (
	StructureLongCall        StructureType = "long_call"
	StructureLongPut         StructureType = "long_put"
	StructureBullPutCredit   StructureType = "bull_put_credit_spread"
	StructureBearCallCredit  StructureType = "bear_call_credit_spread"
	StructureBullCallDebit   StructureType = "bull_call_debit_spread"
	StructureBearPutDebit    StructureType = "bear_put_debit_spread"
	StructureIronCondor      StructureType = "iron_condor"
	StructureLongStraddle    StructureType = "long_straddle"
	StructureLongStrangle    StructureType = "long_strangle"
)

// UnboundedProfit is the sentinel max profit for long structures whose
// upside has no cap.
const UnboundedProfit = 1e9

// OptionsOrder is a fully structured multi-leg option trade.
type OptionsOrder struct {
	ID              string        `json:"id"`
	Structure       StructureType `json:"structure"`
	Legs            []OptionLeg   `json:"legs"`
	UnderlyingPrice float64       `json:"underlyingPrice"`
	// NetPremium is the per-share cash flow at open. Negative means a
	// credit was received.
	NetPremium float64 `json:"netPremium"`
	MaxLoss    float64 `json:"maxLoss"`   // per contract, dollars, >= 0
	MaxProfit  float64 `json:"maxProfit"` // per contract, dollars, >= 0
	Contracts  int64   `json:"contracts"`
	NetDelta   float64 `json:"netDelta"`
	NetGamma   float64 `json:"netGamma"`
	NetTheta   float64 `json:"netTheta"`
	Strategy   string  `json:"strategy"`
	Confidence float64 `json:"confidence"`
	CreatedAt  time.Time `json:"createdAt"`
}

// IsCredit reports whether the structure received premium at open.
func (o *OptionsOrder) IsCredit() bool {
	return o.NetPremium < 0
}

// OptionQuote is one contract's market snapshot within a chain.
type OptionQuote struct {
	Contract   string     `json:"contract"`
	Type       OptionType `json:"type"`
	Strike     float64    `json:"strike"`
	Expiration time.Time  `json:"expiration"`
	Bid        float64    `json:"bid"`
	Ask        float64    `json:"ask"`
	Mid        float64    `json:"mid"`
	IV         float64    `json:"iv"`
	Greeks     Greeks     `json:"greeks"`
	Volume     int64      `json:"volume"`
	OpenInt    int64      `json:"openInterest"`
}

// ChainExpiryKey formats an expiration for chain map lookups.
func ChainExpiryKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// OptionChainSnapshot is a point-in-time view of the option chain for one
// underlying. Calls and Puts are keyed by expiration date and sorted by
// strike ascending.
type OptionChainSnapshot struct {
	Symbol       string                   `json:"symbol"`
	Underlying   float64                  `json:"underlying"`
	Timestamp    time.Time                `json:"timestamp"`
	Expirations  []time.Time              `json:"expirations"`
	Calls        map[string][]OptionQuote `json:"calls"`
	Puts         map[string][]OptionQuote `json:"puts"`
	IVRank       float64                  `json:"ivRank"`       // 0-100
	IVPercentile float64                  `json:"ivPercentile"` // 0-100
}

// QuotesFor returns the quotes of the given type for an expiration.
func (c *OptionChainSnapshot) QuotesFor(typ OptionType, expiration time.Time) []OptionQuote {
	key := ChainExpiryKey(expiration)
	if typ == OptionCall {
		return c.Calls[key]
	}
	return c.Puts[key]
}

// Empty reports whether the snapshot carries no usable quotes.
func (c *OptionChainSnapshot) Empty() bool {
	return c == nil || (len(c.Calls) == 0 && len(c.Puts) == 0)
}
