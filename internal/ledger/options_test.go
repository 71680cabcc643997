// Package ledger_test provides tests for the position ledgers.
package ledger_test

import (
	"testing"
	"time"

	"github.com/Vrajp610/spy-daytrader-sub000/internal/ledger"
	"github.com/Vrajp610/spy-daytrader-sub000/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func newOptionsLedger() *ledger.OptionsLedger {
	cfg := ledger.DefaultOptionsConfig()
	cfg.SpreadCostPct = 0
	cfg.CommissionPerContract = 0
	return ledger.NewOptionsLedger(zap.NewNop(), cfg)
}

// creditSpread mirrors the bull put credit economics: short 1.20, long
// 0.70, $5 wide -> 0.50 credit, $450 max loss, $50 max profit.
func creditSpread(contracts int64) *types.OptionsOrder {
	return &types.OptionsOrder{
		ID:         "test-credit",
		Structure:  types.StructureBullPutCredit,
		NetPremium: -0.50,
		MaxLoss:    450,
		MaxProfit:  50,
		Contracts:  contracts,
		NetDelta:   0.10,
		NetTheta:   0.02,
		Strategy:   "orb",
	}
}

func debitSpread(contracts int64) *types.OptionsOrder {
	return &types.OptionsOrder{
		ID:         "test-debit",
		Structure:  types.StructureBullCallDebit,
		NetPremium: 2.00,
		MaxLoss:    200,
		MaxProfit:  300,
		Contracts:  contracts,
		NetDelta:   0.40,
		NetTheta:   -0.03,
		Strategy:   "orb",
	}
}

func TestCreditOpenLocksCollateral(t *testing.T) {
	l := newOptionsLedger()
	now := time.Now()

	if err := l.Open(creditSpread(2), 500, now); err != nil {
		t.Fatal(err)
	}

	// cash = 50000 + 2*50 credit - 2*450 collateral
	wantCash := decimal.NewFromInt(50000 + 100 - 900)
	if !l.Cash().Equal(wantCash) {
		t.Errorf("expected cash %s, got %s", wantCash, l.Cash())
	}
	if !l.OpenRisk().Equal(decimal.NewFromInt(900)) {
		t.Errorf("expected open risk 900, got %s", l.OpenRisk())
	}
	// Equity at open is unchanged: the credit is owed until buyback.
	if !l.Equity().Equal(decimal.NewFromInt(50000)) {
		t.Errorf("expected equity 50000 at open, got %s", l.Equity())
	}
}

func TestDebitOpenPaysPremiumAndSpreadCost(t *testing.T) {
	cfg := ledger.DefaultOptionsConfig()
	cfg.SpreadCostPct = 0.02
	cfg.CommissionPerContract = 0
	l := ledger.NewOptionsLedger(zap.NewNop(), cfg)
	now := time.Now()

	if err := l.Open(debitSpread(1), 500, now); err != nil {
		t.Fatal(err)
	}
	// debit 200 + 2% spread cost 4
	wantCash := decimal.NewFromInt(50000 - 204)
	if !l.Cash().Equal(wantCash) {
		t.Errorf("expected cash %s, got %s", wantCash, l.Cash())
	}
}

func TestSecondOptionsOpenRejected(t *testing.T) {
	l := newOptionsLedger()
	now := time.Now()

	if err := l.Open(creditSpread(1), 500, now); err != nil {
		t.Fatal(err)
	}
	if err := l.Open(debitSpread(1), 500, now); err == nil {
		t.Fatal("second open must be rejected")
	}
}

func TestTaylorMarkAndClampAtMaxLoss(t *testing.T) {
	l := newOptionsLedger()
	now := time.Now()

	if err := l.Open(creditSpread(1), 500, now); err != nil {
		t.Fatal(err)
	}

	// A catastrophic move cannot mark past the defined max loss.
	l.MarkToMarket(400, now.Add(time.Minute))
	pos := l.Position()
	if pos.UnrealizedPnL != -450 {
		t.Errorf("expected unrealized clamped at -450, got %.2f", pos.UnrealizedPnL)
	}
}

func TestTaylorThetaAccrual(t *testing.T) {
	l := newOptionsLedger()
	now := time.Now()

	if err := l.Open(creditSpread(1), 500, now); err != nil {
		t.Fatal(err)
	}

	// Flat underlying, one day of positive theta: 0.02 * 1 day * 100.
	l.MarkToMarket(500, now.Add(24*time.Hour))
	pos := l.Position()
	if pos.UnrealizedPnL < 1.99 || pos.UnrealizedPnL > 2.01 {
		t.Errorf("expected ~2.00 theta accrual, got %.4f", pos.UnrealizedPnL)
	}
}

func TestCloseReleasesCollateralAndRealizes(t *testing.T) {
	l := newOptionsLedger()
	now := time.Now()

	if err := l.Open(creditSpread(1), 500, now); err != nil {
		t.Fatal(err)
	}
	l.MarkToMarket(500, now.Add(24*time.Hour))

	rec, err := l.Close(types.ExitEndOfDay, 500, now.Add(24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if l.Position() != nil {
		t.Fatal("position must be destroyed on close")
	}
	if !l.OpenRisk().IsZero() {
		t.Error("open risk must drop to zero")
	}

	// cash = 50000 + realized pnl (theta day)
	wantCash := decimal.NewFromInt(50000).Add(rec.PnL)
	if !l.Cash().Equal(wantCash) {
		t.Errorf("expected cash %s, got %s", wantCash, l.Cash())
	}
	if !l.Equity().Equal(wantCash) {
		t.Errorf("expected equity to match cash when flat, got %s", l.Equity())
	}
}

func TestUnboundedProfitNotClamped(t *testing.T) {
	l := newOptionsLedger()
	now := time.Now()

	long := &types.OptionsOrder{
		ID:         "test-long-call",
		Structure:  types.StructureLongCall,
		NetPremium: 3.00,
		MaxLoss:    300,
		MaxProfit:  types.UnboundedProfit,
		Contracts:  1,
		NetDelta:   0.50,
		NetGamma:   0.02,
	}
	if err := l.Open(long, 500, now); err != nil {
		t.Fatal(err)
	}

	l.MarkToMarket(520, now.Add(time.Minute))
	pos := l.Position()
	// delta 0.5*20 + 0.5*0.02*400 = 14 per share = 1400 dollars
	if pos.UnrealizedPnL < 1399 || pos.UnrealizedPnL > 1401 {
		t.Errorf("expected ~1400 unrealized, got %.2f", pos.UnrealizedPnL)
	}
}
