package options

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/Vrajp610/spy-daytrader-sub000/internal/regime"
	"github.com/Vrajp610/spy-daytrader-sub000/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SelectorConfig holds the structure-selection thresholds.
type SelectorConfig struct {
	// ConfidenceFloor is the minimum signal confidence for any trade.
	ConfidenceFloor float64 `mapstructure:"confidence_floor"`
	// HighConfidence and ModerateConfidence split signals into the tiers
	// used by the regime table.
	HighConfidence     float64 `mapstructure:"high_confidence"`
	ModerateConfidence float64 `mapstructure:"moderate_confidence"`
	// IVRankHigh forces premium selling, IVRankLow forces premium buying.
	// IVRankCondor splits range-bound markets between an iron condor and
	// a one-sided credit spread.
	IVRankHigh   float64 `mapstructure:"iv_rank_high"`
	IVRankLow    float64 `mapstructure:"iv_rank_low"`
	IVRankCondor float64 `mapstructure:"iv_rank_condor"`
	// Expiration targets in calendar days.
	IdealDTECredit int `mapstructure:"ideal_dte_credit"`
	IdealDTEDebit  int `mapstructure:"ideal_dte_debit"`
	MinDTE         int `mapstructure:"min_dte"`
	MaxDTE         int `mapstructure:"max_dte"`
	// TargetShortDelta picks short strikes; StrangleDelta picks the long
	// wings of a strangle.
	TargetShortDelta float64 `mapstructure:"target_short_delta"`
	StrangleDelta    float64 `mapstructure:"strangle_delta"`
	// SpreadWidth is the fixed strike distance for verticals and condor
	// wings.
	SpreadWidth float64 `mapstructure:"spread_width"`
	// RiskFraction of capital risked per trade; MaxContracts is the
	// per-trade ceiling; MaxPortfolioRisk caps total open max-loss as a
	// fraction of capital.
	RiskFraction     float64 `mapstructure:"risk_fraction"`
	MaxContracts     int64   `mapstructure:"max_contracts"`
	MaxPortfolioRisk float64 `mapstructure:"max_portfolio_risk"`
}

// DefaultSelectorConfig returns the standard selection thresholds.
func DefaultSelectorConfig() SelectorConfig {
	return SelectorConfig{
		ConfidenceFloor:    0.55,
		HighConfidence:     0.75,
		ModerateConfidence: 0.65,
		IVRankHigh:         60,
		IVRankLow:          25,
		IVRankCondor:       50,
		IdealDTECredit:     10,
		IdealDTEDebit:      7,
		MinDTE:             3,
		MaxDTE:             21,
		TargetShortDelta:   0.30,
		StrangleDelta:      0.25,
		SpreadWidth:        5.0,
		RiskFraction:       0.02,
		MaxContracts:       10,
		MaxPortfolioRisk:   0.16,
	}
}

// Selector maps a directional signal, the current regime, and the chain's
// IV rank to a concrete multi-leg structure, then sizes it against capital
// and existing open risk.
type Selector struct {
	logger *zap.Logger
	config SelectorConfig
}

// NewSelector creates an options structure selector.
func NewSelector(logger *zap.Logger, config SelectorConfig) *Selector {
	return &Selector{
		logger: logger.Named("selector"),
		config: config,
	}
}

// Select builds a sized options order for the signal, or returns nil when
// no trade should be taken. The error path is reserved for chains that
// cannot support any structure at all.
func (s *Selector) Select(signal *types.TradeSignal, reg regime.Regime, chain *types.OptionChainSnapshot, capital, openRisk decimal.Decimal, now time.Time) (*types.OptionsOrder, error) {
	if chain.Empty() {
		return nil, fmt.Errorf("option chain is empty")
	}
	if signal.Confidence < s.config.ConfidenceFloor {
		s.logger.Debug("confidence below floor, no options trade",
			zap.Float64("confidence", signal.Confidence),
			zap.Float64("floor", s.config.ConfidenceFloor))
		return nil, nil
	}

	structure := s.chooseStructure(signal, reg, chain.IVRank)

	expiration, ok := s.chooseExpiration(chain, structure, now)
	if !ok {
		s.logger.Warn("no expiration inside DTE bounds",
			zap.Int("min_dte", s.config.MinDTE),
			zap.Int("max_dte", s.config.MaxDTE))
		return nil, nil
	}

	order, err := s.build(structure, signal, chain, expiration)
	if err != nil {
		return nil, fmt.Errorf("building %s: %w", structure, err)
	}

	contracts := s.sizeContracts(order.MaxLoss, capital, openRisk)
	if contracts == 0 {
		s.logger.Info("options trade rejected by risk sizing",
			zap.String("structure", string(structure)),
			zap.Float64("max_loss", order.MaxLoss),
			zap.String("open_risk", openRisk.String()))
		return nil, nil
	}
	order.Contracts = contracts
	order.CreatedAt = now

	s.logger.Info("options order structured",
		zap.String("structure", string(order.Structure)),
		zap.Int("legs", len(order.Legs)),
		zap.Float64("net_premium", order.NetPremium),
		zap.Float64("max_loss", order.MaxLoss),
		zap.Float64("max_profit", order.MaxProfit),
		zap.Int64("contracts", order.Contracts))
	return order, nil
}

// chooseStructure applies the IV-rank overrides on top of the explicit
// preference or the regime table.
func (s *Selector) chooseStructure(signal *types.TradeSignal, reg regime.Regime, ivRank float64) types.StructureType {
	base := s.preferredStructure(signal)
	if base == "" {
		base = s.regimeStructure(signal, reg, ivRank)
	}

	if ivRank > s.config.IVRankHigh && isDebitStructure(base) {
		if reg == regime.RangeBound {
			return types.StructureIronCondor
		}
		return creditSpreadFor(signal.Direction)
	}
	if ivRank < s.config.IVRankLow && isCreditStructure(base) {
		if reg == regime.Volatile && signal.Confidence >= s.config.HighConfidence {
			return types.StructureLongStraddle
		}
		return debitSpreadFor(signal.Direction)
	}
	return base
}

func (s *Selector) preferredStructure(signal *types.TradeSignal) types.StructureType {
	raw, ok := signal.Metadata["options_preference"]
	if !ok {
		return ""
	}
	pref, ok := raw.(string)
	if !ok {
		return ""
	}
	switch st := types.StructureType(pref); st {
	case types.StructureLongCall, types.StructureLongPut,
		types.StructureBullPutCredit, types.StructureBearCallCredit,
		types.StructureBullCallDebit, types.StructureBearPutDebit,
		types.StructureIronCondor, types.StructureLongStraddle,
		types.StructureLongStrangle:
		return st
	default:
		s.logger.Warn("unknown options preference ignored", zap.String("preference", pref))
		return ""
	}
}

func (s *Selector) regimeStructure(signal *types.TradeSignal, reg regime.Regime, ivRank float64) types.StructureType {
	switch reg {
	case regime.RangeBound:
		if ivRank >= s.config.IVRankCondor {
			return types.StructureIronCondor
		}
		return creditSpreadFor(signal.Direction)
	case regime.Volatile:
		if signal.Confidence >= s.config.HighConfidence {
			return types.StructureLongStraddle
		}
		if signal.Confidence >= s.config.ModerateConfidence {
			return types.StructureLongStrangle
		}
		return debitSpreadFor(signal.Direction)
	default: // trending either way
		if signal.Confidence >= s.config.HighConfidence {
			return creditSpreadFor(signal.Direction)
		}
		if signal.Confidence >= s.config.ModerateConfidence {
			return debitSpreadFor(signal.Direction)
		}
		return longOptionFor(signal.Direction)
	}
}

func creditSpreadFor(d types.Direction) types.StructureType {
	if d == types.DirectionLong {
		return types.StructureBullPutCredit
	}
	return types.StructureBearCallCredit
}

func debitSpreadFor(d types.Direction) types.StructureType {
	if d == types.DirectionLong {
		return types.StructureBullCallDebit
	}
	return types.StructureBearPutDebit
}

func longOptionFor(d types.Direction) types.StructureType {
	if d == types.DirectionLong {
		return types.StructureLongCall
	}
	return types.StructureLongPut
}

func isCreditStructure(st types.StructureType) bool {
	switch st {
	case types.StructureBullPutCredit, types.StructureBearCallCredit, types.StructureIronCondor:
		return true
	}
	return false
}

func isDebitStructure(st types.StructureType) bool {
	switch st {
	case types.StructureLongCall, types.StructureLongPut,
		types.StructureBullCallDebit, types.StructureBearPutDebit,
		types.StructureLongStraddle, types.StructureLongStrangle:
		return true
	}
	return false
}

// chooseExpiration picks the chain expiration nearest the structure's
// ideal DTE, restricted to the configured bounds. Ties go to the earlier
// date.
func (s *Selector) chooseExpiration(chain *types.OptionChainSnapshot, structure types.StructureType, now time.Time) (time.Time, bool) {
	ideal := s.config.IdealDTEDebit
	if isCreditStructure(structure) {
		ideal = s.config.IdealDTECredit
	}

	exps := append([]time.Time(nil), chain.Expirations...)
	sort.Slice(exps, func(i, j int) bool { return exps[i].Before(exps[j]) })

	var best time.Time
	bestDist := math.MaxInt32
	found := false
	for _, exp := range exps {
		dte := int(math.Round(exp.Sub(now).Hours() / 24))
		if dte < s.config.MinDTE || dte > s.config.MaxDTE {
			continue
		}
		if dist := abs(dte - ideal); dist < bestDist {
			bestDist = dist
			best = exp
			found = true
		}
	}
	return best, found
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// sizeContracts applies the per-trade risk budget, the per-trade contract
// ceiling, and the portfolio open-risk cap. Zero means the trade is
// rejected outright rather than reduced below one contract.
func (s *Selector) sizeContracts(maxLoss float64, capital, openRisk decimal.Decimal) int64 {
	if maxLoss <= 0 {
		return 0
	}
	loss := decimal.NewFromFloat(maxLoss)

	budget := capital.Mul(decimal.NewFromFloat(s.config.RiskFraction))
	contracts := budget.Div(loss).Floor().IntPart()
	if contracts > s.config.MaxContracts {
		contracts = s.config.MaxContracts
	}

	riskCap := capital.Mul(decimal.NewFromFloat(s.config.MaxPortfolioRisk))
	headroom := riskCap.Sub(openRisk)
	byPortfolio := headroom.Div(loss).Floor().IntPart()
	if contracts > byPortfolio {
		contracts = byPortfolio
	}

	if contracts < 1 {
		return 0
	}
	return contracts
}

// build constructs the legs and economics for the chosen structure.
func (s *Selector) build(structure types.StructureType, signal *types.TradeSignal, chain *types.OptionChainSnapshot, expiration time.Time) (*types.OptionsOrder, error) {
	var (
		order *types.OptionsOrder
		err   error
	)
	switch structure {
	case types.StructureLongCall:
		order, err = s.buildLongOption(types.OptionCall, chain, expiration)
	case types.StructureLongPut:
		order, err = s.buildLongOption(types.OptionPut, chain, expiration)
	case types.StructureBullPutCredit:
		order, err = s.buildCreditSpread(types.OptionPut, chain, expiration)
	case types.StructureBearCallCredit:
		order, err = s.buildCreditSpread(types.OptionCall, chain, expiration)
	case types.StructureBullCallDebit:
		order, err = s.buildDebitSpread(types.OptionCall, chain, expiration)
	case types.StructureBearPutDebit:
		order, err = s.buildDebitSpread(types.OptionPut, chain, expiration)
	case types.StructureIronCondor:
		order, err = s.buildIronCondor(chain, expiration)
	case types.StructureLongStraddle:
		order, err = s.buildStraddle(chain, expiration)
	case types.StructureLongStrangle:
		order, err = s.buildStrangle(chain, expiration)
	default:
		return nil, fmt.Errorf("unsupported structure %s", structure)
	}
	if err != nil {
		return nil, err
	}

	order.ID = uuid.New().String()
	order.Structure = structure
	order.UnderlyingPrice = chain.Underlying
	order.Strategy = signal.Strategy
	order.Confidence = signal.Confidence
	order.NetDelta, order.NetGamma, order.NetTheta = netGreeks(order.Legs)
	return order, nil
}

// buildLongOption buys the contract nearest the underlying.
func (s *Selector) buildLongOption(typ types.OptionType, chain *types.OptionChainSnapshot, expiration time.Time) (*types.OptionsOrder, error) {
	q, err := nearestStrike(chain.QuotesFor(typ, expiration), chain.Underlying)
	if err != nil {
		return nil, err
	}
	long := makeLeg(q, types.BuyToOpen)

	maxProfit := types.UnboundedProfit
	if typ == types.OptionPut {
		maxProfit = (q.Strike - q.Mid) * 100
	}
	return &types.OptionsOrder{
		Legs:       []types.OptionLeg{long},
		NetPremium: q.Mid,
		MaxLoss:    q.Mid * 100,
		MaxProfit:  maxProfit,
	}, nil
}

// buildCreditSpread sells the target-delta contract and buys the wing one
// spread width further out of the money.
func (s *Selector) buildCreditSpread(typ types.OptionType, chain *types.OptionChainSnapshot, expiration time.Time) (*types.OptionsOrder, error) {
	quotes := chain.QuotesFor(typ, expiration)
	short, err := nearestDelta(quotes, s.config.TargetShortDelta)
	if err != nil {
		return nil, err
	}
	wing := short.Strike - s.config.SpreadWidth
	if typ == types.OptionCall {
		wing = short.Strike + s.config.SpreadWidth
	}
	long, err := nearestStrike(quotes, wing)
	if err != nil {
		return nil, err
	}
	if long.Strike == short.Strike {
		return nil, fmt.Errorf("chain too sparse for %0.f wide %s spread", s.config.SpreadWidth, typ)
	}

	width := math.Abs(short.Strike - long.Strike)
	credit := short.Mid - long.Mid
	if credit <= 0 {
		return nil, fmt.Errorf("spread prices to a debit, credit=%.4f", credit)
	}
	return &types.OptionsOrder{
		Legs: []types.OptionLeg{
			makeLeg(short, types.SellToOpen),
			makeLeg(long, types.BuyToOpen),
		},
		NetPremium: -credit,
		MaxLoss:    (width - credit) * 100,
		MaxProfit:  credit * 100,
	}, nil
}

// buildDebitSpread buys near the underlying and sells one spread width in
// the direction of the move.
func (s *Selector) buildDebitSpread(typ types.OptionType, chain *types.OptionChainSnapshot, expiration time.Time) (*types.OptionsOrder, error) {
	quotes := chain.QuotesFor(typ, expiration)
	long, err := nearestStrike(quotes, chain.Underlying)
	if err != nil {
		return nil, err
	}
	wing := long.Strike + s.config.SpreadWidth
	if typ == types.OptionPut {
		wing = long.Strike - s.config.SpreadWidth
	}
	short, err := nearestStrike(quotes, wing)
	if err != nil {
		return nil, err
	}
	if short.Strike == long.Strike {
		return nil, fmt.Errorf("chain too sparse for %0.f wide %s spread", s.config.SpreadWidth, typ)
	}

	width := math.Abs(short.Strike - long.Strike)
	debit := long.Mid - short.Mid
	if debit <= 0 {
		return nil, fmt.Errorf("spread prices to a credit, debit=%.4f", debit)
	}
	return &types.OptionsOrder{
		Legs: []types.OptionLeg{
			makeLeg(long, types.BuyToOpen),
			makeLeg(short, types.SellToOpen),
		},
		NetPremium: debit,
		MaxLoss:    debit * 100,
		MaxProfit:  (width - debit) * 100,
	}, nil
}

// buildIronCondor sells a put spread below and a call spread above, both
// at the target short delta with fixed-width wings.
func (s *Selector) buildIronCondor(chain *types.OptionChainSnapshot, expiration time.Time) (*types.OptionsOrder, error) {
	putSide, err := s.buildCreditSpread(types.OptionPut, chain, expiration)
	if err != nil {
		return nil, err
	}
	callSide, err := s.buildCreditSpread(types.OptionCall, chain, expiration)
	if err != nil {
		return nil, err
	}

	credit := -(putSide.NetPremium + callSide.NetPremium)
	// Only one side can be breached at expiry, so risk is one wing minus
	// the whole credit.
	width := s.config.SpreadWidth
	return &types.OptionsOrder{
		Legs:       append(putSide.Legs, callSide.Legs...),
		NetPremium: -credit,
		MaxLoss:    (width - credit) * 100,
		MaxProfit:  credit * 100,
	}, nil
}

// buildStraddle buys the ATM call and put at the same strike.
func (s *Selector) buildStraddle(chain *types.OptionChainSnapshot, expiration time.Time) (*types.OptionsOrder, error) {
	call, err := nearestStrike(chain.QuotesFor(types.OptionCall, expiration), chain.Underlying)
	if err != nil {
		return nil, err
	}
	put, err := nearestStrike(chain.QuotesFor(types.OptionPut, expiration), call.Strike)
	if err != nil {
		return nil, err
	}
	debit := call.Mid + put.Mid
	return &types.OptionsOrder{
		Legs: []types.OptionLeg{
			makeLeg(call, types.BuyToOpen),
			makeLeg(put, types.BuyToOpen),
		},
		NetPremium: debit,
		MaxLoss:    debit * 100,
		MaxProfit:  types.UnboundedProfit,
	}, nil
}

// buildStrangle buys an OTM call and an OTM put at the strangle delta.
func (s *Selector) buildStrangle(chain *types.OptionChainSnapshot, expiration time.Time) (*types.OptionsOrder, error) {
	call, err := nearestDelta(chain.QuotesFor(types.OptionCall, expiration), s.config.StrangleDelta)
	if err != nil {
		return nil, err
	}
	put, err := nearestDelta(chain.QuotesFor(types.OptionPut, expiration), s.config.StrangleDelta)
	if err != nil {
		return nil, err
	}
	debit := call.Mid + put.Mid
	return &types.OptionsOrder{
		Legs: []types.OptionLeg{
			makeLeg(call, types.BuyToOpen),
			makeLeg(put, types.BuyToOpen),
		},
		NetPremium: debit,
		MaxLoss:    debit * 100,
		MaxProfit:  types.UnboundedProfit,
	}, nil
}

func makeLeg(q *types.OptionQuote, action types.OptionAction) types.OptionLeg {
	return types.OptionLeg{
		Contract:   q.Contract,
		Type:       q.Type,
		Strike:     q.Strike,
		Expiration: q.Expiration,
		Action:     action,
		Quantity:   1,
		Premium:    q.Mid,
		Greeks:     q.Greeks,
		IV:         q.IV,
	}
}

// nearestDelta picks the quote whose absolute delta is closest to target.
func nearestDelta(quotes []types.OptionQuote, target float64) (*types.OptionQuote, error) {
	if len(quotes) == 0 {
		return nil, fmt.Errorf("no quotes for expiration")
	}
	best := 0
	bestDist := math.Inf(1)
	for i, q := range quotes {
		if dist := math.Abs(math.Abs(q.Greeks.Delta) - target); dist < bestDist {
			bestDist = dist
			best = i
		}
	}
	return &quotes[best], nil
}

// nearestStrike picks the quote whose strike is closest to target.
func nearestStrike(quotes []types.OptionQuote, target float64) (*types.OptionQuote, error) {
	if len(quotes) == 0 {
		return nil, fmt.Errorf("no quotes for expiration")
	}
	best := 0
	bestDist := math.Inf(1)
	for i, q := range quotes {
		if dist := math.Abs(q.Strike - target); dist < bestDist {
			bestDist = dist
			best = i
		}
	}
	return &quotes[best], nil
}

// netGreeks sums per-leg greeks with bought legs positive and sold legs
// negative.
func netGreeks(legs []types.OptionLeg) (delta, gamma, theta float64) {
	for _, leg := range legs {
		sign := 1.0
		if leg.Action == types.SellToOpen || leg.Action == types.SellToClose {
			sign = -1.0
		}
		delta += sign * leg.Greeks.Delta
		gamma += sign * leg.Greeks.Gamma
		theta += sign * leg.Greeks.Theta
	}
	return delta, gamma, theta
}
