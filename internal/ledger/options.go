// Package ledger provides the equity and options position ledgers with a
// simulated fill model and cash accounting.
package ledger

import (
	"fmt"
	"sync"
	"time"

	"github.com/Vrajp610/spy-daytrader-sub000/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OptionsConfig parameterizes the options ledger.
type OptionsConfig struct {
	InitialCapital float64 `mapstructure:"initial_capital"`
	// SpreadCostPct is the flat spread-cost approximation charged on debit
	// premium at open, as a fraction of the premium paid.
	SpreadCostPct         float64 `mapstructure:"spread_cost_pct"`
	CommissionPerContract float64 `mapstructure:"commission_per_contract"`
}

// DefaultOptionsConfig returns the shipped options ledger parameters.
func DefaultOptionsConfig() OptionsConfig {
	return OptionsConfig{
		InitialCapital:        50000,
		SpreadCostPct:         0.02,
		CommissionPerContract: 0.65,
	}
}

// OptionsPosition is the single open options structure plus its running
// local mark. Marking is a Taylor approximation from the entry Greeks, not
// a full repricing.
type OptionsPosition struct {
	Order           types.OptionsOrder `json:"order"`
	OpenedAt        time.Time          `json:"openedAt"`
	EntryUnderlying float64            `json:"entryUnderlying"`
	LastUnderlying  float64            `json:"lastUnderlying"`
	LastMark        time.Time          `json:"lastMark"`
	// UnrealizedPnL is dollars across all contracts, clamped to the
	// structure's defined risk.
	UnrealizedPnL float64 `json:"unrealizedPnl"`
}

// OptionsTradeRecord is an immutable record of a closed options trade.
type OptionsTradeRecord struct {
	ID         string              `json:"id"`
	Structure  types.StructureType `json:"structure"`
	Strategy   string              `json:"strategy"`
	Contracts  int64               `json:"contracts"`
	NetPremium float64             `json:"netPremium"`
	PnL        decimal.Decimal     `json:"pnl"`
	ExitReason types.ExitReason    `json:"exitReason"`
	OpenedAt   time.Time           `json:"openedAt"`
	ClosedAt   time.Time           `json:"closedAt"`
}

// OptionsLedger tracks the open options structure, free cash, locked
// collateral, and mark-to-market peak/drawdown.
type OptionsLedger struct {
	logger *zap.Logger
	config OptionsConfig

	mu         sync.RWMutex
	cash       decimal.Decimal
	collateral decimal.Decimal
	peakEquity decimal.Decimal
	position   *OptionsPosition
	trades     []OptionsTradeRecord
}

// NewOptionsLedger creates an options ledger.
func NewOptionsLedger(logger *zap.Logger, config OptionsConfig) *OptionsLedger {
	cash := decimal.NewFromFloat(config.InitialCapital)
	return &OptionsLedger{
		logger:     logger.Named("options-ledger"),
		config:     config,
		cash:       cash,
		peakEquity: cash,
	}
}

// Open books a structured order. Credit structures lock collateral equal to
// their max loss from free cash; debit structures pay premium plus the flat
// spread-cost approximation. A second open attempt is rejected.
func (l *OptionsLedger) Open(order *types.OptionsOrder, underlying float64, now time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.position != nil {
		l.logger.Warn("open rejected, options position already exists",
			zap.String("existing", string(l.position.Order.Structure)))
		return fmt.Errorf("options position already open")
	}
	if order.Contracts <= 0 {
		return fmt.Errorf("order has no contracts")
	}

	contracts := decimal.NewFromInt(order.Contracts)
	commission := decimal.NewFromFloat(l.config.CommissionPerContract).
		Mul(decimal.NewFromInt(int64(len(order.Legs)))).Mul(contracts)

	if order.IsCredit() {
		lock := decimal.NewFromFloat(order.MaxLoss).Mul(contracts)
		credit := decimal.NewFromFloat(-order.NetPremium * 100).Mul(contracts)
		if l.cash.Add(credit).LessThan(lock.Add(commission)) {
			return fmt.Errorf("insufficient free cash for collateral %s", lock.StringFixed(2))
		}
		l.cash = l.cash.Add(credit).Sub(lock).Sub(commission)
		l.collateral = l.collateral.Add(lock)
	} else {
		debit := decimal.NewFromFloat(order.NetPremium * 100).Mul(contracts)
		spreadCost := debit.Mul(decimal.NewFromFloat(l.config.SpreadCostPct))
		total := debit.Add(spreadCost).Add(commission)
		if l.cash.LessThan(total) {
			return fmt.Errorf("insufficient free cash for debit %s", total.StringFixed(2))
		}
		l.cash = l.cash.Sub(total)
		// Debit paid is carried as position value until close.
		l.collateral = l.collateral.Add(debit)
	}

	l.position = &OptionsPosition{
		Order:           *order,
		OpenedAt:        now,
		EntryUnderlying: underlying,
		LastUnderlying:  underlying,
		LastMark:        now,
	}

	l.logger.Info("options position opened",
		zap.String("structure", string(order.Structure)),
		zap.Int64("contracts", order.Contracts),
		zap.Float64("netPremium", order.NetPremium),
		zap.Float64("maxLoss", order.MaxLoss),
		zap.Float64("underlying", underlying))

	return nil
}

// MarkToMarket advances the local Taylor approximation:
// dP = delta*dS + 0.5*gamma*dS^2 + theta*dt, per share, scaled to dollars
// across contracts and clamped to the structure's defined risk.
func (l *OptionsLedger) MarkToMarket(underlying float64, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos := l.position
	if pos == nil || underlying <= 0 {
		return
	}

	dS := underlying - pos.LastUnderlying
	dtDays := now.Sub(pos.LastMark).Hours() / 24

	perShare := pos.Order.NetDelta*dS +
		0.5*pos.Order.NetGamma*dS*dS +
		pos.Order.NetTheta*dtDays
	pos.UnrealizedPnL += perShare * 100 * float64(pos.Order.Contracts)

	// Defined-risk structures cannot lose more than max loss or make more
	// than max profit.
	maxLoss := pos.Order.MaxLoss * float64(pos.Order.Contracts)
	maxProfit := pos.Order.MaxProfit * float64(pos.Order.Contracts)
	if pos.UnrealizedPnL < -maxLoss {
		pos.UnrealizedPnL = -maxLoss
	}
	if maxProfit < types.UnboundedProfit && pos.UnrealizedPnL > maxProfit {
		pos.UnrealizedPnL = maxProfit
	}

	pos.LastUnderlying = underlying
	pos.LastMark = now

	equity := l.equityLocked()
	if equity.GreaterThan(l.peakEquity) {
		l.peakEquity = equity
	}
}

// Close realizes the marked P&L, releases collateral, and appends a trade
// record.
func (l *OptionsLedger) Close(reason types.ExitReason, underlying float64, now time.Time) (*OptionsTradeRecord, error) {
	l.mu.Lock()
	pos := l.position
	l.mu.Unlock()
	if pos == nil {
		return nil, fmt.Errorf("no open options position")
	}

	// Final mark at the close price.
	l.MarkToMarket(underlying, now)

	l.mu.Lock()
	defer l.mu.Unlock()

	pos = l.position
	contracts := decimal.NewFromInt(pos.Order.Contracts)
	pnl := decimal.NewFromFloat(pos.UnrealizedPnL).Round(2)

	if pos.Order.IsCredit() {
		// Collateral comes back; the received credit stayed in cash, so
		// only the adverse move is settled here.
		lock := decimal.NewFromFloat(pos.Order.MaxLoss).Mul(contracts)
		credit := decimal.NewFromFloat(-pos.Order.NetPremium * 100).Mul(contracts)
		l.cash = l.cash.Add(lock).Add(pnl).Sub(credit)
		l.collateral = l.collateral.Sub(lock)
		// Realized P&L for a credit already includes the premium kept.
	} else {
		debit := decimal.NewFromFloat(pos.Order.NetPremium * 100).Mul(contracts)
		l.cash = l.cash.Add(debit).Add(pnl)
		l.collateral = l.collateral.Sub(debit)
	}

	record := OptionsTradeRecord{
		ID:         uuid.New().String(),
		Structure:  pos.Order.Structure,
		Strategy:   pos.Order.Strategy,
		Contracts:  pos.Order.Contracts,
		NetPremium: pos.Order.NetPremium,
		PnL:        pnl,
		ExitReason: reason,
		OpenedAt:   pos.OpenedAt,
		ClosedAt:   now,
	}
	l.trades = append(l.trades, record)
	l.position = nil

	l.logger.Info("options position closed",
		zap.String("structure", string(record.Structure)),
		zap.String("reason", string(reason)),
		zap.String("pnl", pnl.StringFixed(2)))

	return &record, nil
}

func (l *OptionsLedger) equityLocked() decimal.Decimal {
	equity := l.cash.Add(l.collateral)
	if l.position != nil {
		equity = equity.Add(decimal.NewFromFloat(l.position.UnrealizedPnL))
		if l.position.Order.IsCredit() {
			// The credit sits in cash but is owed until the structure is
			// bought back; net it out so equity reflects true P&L.
			credit := decimal.NewFromFloat(-l.position.Order.NetPremium * 100).
				Mul(decimal.NewFromInt(l.position.Order.Contracts))
			equity = equity.Sub(credit)
		}
	}
	return equity
}

// Equity returns mark-to-market equity: cash plus collateral plus the open
// position's unrealized P&L. Distinct from free cash.
func (l *OptionsLedger) Equity() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.equityLocked()
}

// Cash returns free cash only.
func (l *OptionsLedger) Cash() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cash
}

// PeakEquity returns the mark-to-market high-water mark.
func (l *OptionsLedger) PeakEquity() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.peakEquity
}

// OpenRisk returns the dollars at risk in the open structure, zero when
// flat. Used for the portfolio-level risk cap at selection time.
func (l *OptionsLedger) OpenRisk() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.position == nil {
		return decimal.Zero
	}
	return decimal.NewFromFloat(l.position.Order.MaxLoss).
		Mul(decimal.NewFromInt(l.position.Order.Contracts))
}

// Position returns a copy of the open options position, or nil.
func (l *OptionsLedger) Position() *OptionsPosition {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.position == nil {
		return nil
	}
	cp := *l.position
	return &cp
}

// Trades returns a copy of the closed options trade log.
func (l *OptionsLedger) Trades() []OptionsTradeRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]OptionsTradeRecord, len(l.trades))
	copy(out, l.trades)
	return out
}
