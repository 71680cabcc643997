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

func newEquityLedger(mutate func(*ledger.EquityConfig)) *ledger.EquityLedger {
	cfg := ledger.DefaultEquityConfig()
	cfg.CommissionPerShare = 0
	cfg.Slippage = ledger.SlippageConfig{} // frictionless unless a test opts in
	if mutate != nil {
		mutate(&cfg)
	}
	return ledger.NewEquityLedger(zap.NewNop(), cfg)
}

func sizedSignal(qty int64) *types.TradeSignal {
	return &types.TradeSignal{
		Strategy:   "orb",
		Direction:  types.DirectionLong,
		Entry:      500.00,
		StopLoss:   497.00,
		TakeProfit: 506.00,
		Quantity:   qty,
		Confidence: 0.8,
		Timestamp:  time.Now(),
	}
}

var bar = types.Bar{Volume: 1_000_000}

func TestSecondOpenRejected(t *testing.T) {
	l := newEquityLedger(nil)
	now := time.Now()

	if _, err := l.OpenPosition(sizedSignal(20), bar, now); err != nil {
		t.Fatalf("first open failed: %v", err)
	}
	if _, err := l.OpenPosition(sizedSignal(10), bar, now); err == nil {
		t.Fatal("second open must be rejected")
	}
	if got := l.Position().Quantity; got != 20 {
		t.Errorf("existing position must be untouched, got quantity %d", got)
	}
}

func TestUnsizedSignalRejected(t *testing.T) {
	l := newEquityLedger(nil)
	if _, err := l.OpenPosition(sizedSignal(0), bar, time.Now()); err == nil {
		t.Fatal("unsized signal must be rejected")
	}
}

func TestPartialCloseConservesQuantity(t *testing.T) {
	l := newEquityLedger(nil)
	now := time.Now()

	if _, err := l.OpenPosition(sizedSignal(100), bar, now); err != nil {
		t.Fatal(err)
	}

	closed := int64(0)
	for _, qty := range []int64{50, 25} {
		rec, err := l.ReducePosition(&types.ExitSignal{
			Reason: types.ExitScaleOut1, Price: 502, Quantity: qty, Timestamp: now,
		}, bar, now)
		if err != nil {
			t.Fatal(err)
		}
		closed += rec.Quantity
	}

	rec, err := l.ClosePosition(&types.ExitSignal{
		Reason: types.ExitEndOfDay, Price: 503, Timestamp: now,
	}, bar, now)
	if err != nil {
		t.Fatal(err)
	}
	closed += rec.Quantity

	if closed != 100 {
		t.Errorf("partial closes plus final close must equal original quantity, got %d", closed)
	}
	if l.Position() != nil {
		t.Error("position must be destroyed on full close")
	}
}

func TestRealizedPnLAndCapital(t *testing.T) {
	l := newEquityLedger(nil)
	now := time.Now()

	if _, err := l.OpenPosition(sizedSignal(100), bar, now); err != nil {
		t.Fatal(err)
	}
	rec, err := l.ClosePosition(&types.ExitSignal{
		Reason: types.ExitTakeProfit, Price: 503, Timestamp: now,
	}, bar, now)
	if err != nil {
		t.Fatal(err)
	}

	want := decimal.NewFromInt(300) // 3 points x 100 shares, no friction
	if !rec.PnL.Equal(want) {
		t.Errorf("expected pnl %s, got %s", want, rec.PnL)
	}
	if !l.Capital().Equal(decimal.NewFromInt(50300)) {
		t.Errorf("expected capital 50300, got %s", l.Capital())
	}
	if !l.PeakCapital().Equal(decimal.NewFromInt(50300)) {
		t.Errorf("expected peak 50300, got %s", l.PeakCapital())
	}
}

func TestShortPnL(t *testing.T) {
	l := newEquityLedger(nil)
	now := time.Now()

	sig := sizedSignal(100)
	sig.Direction = types.DirectionShort
	sig.StopLoss = 503
	if _, err := l.OpenPosition(sig, bar, now); err != nil {
		t.Fatal(err)
	}
	rec, err := l.ClosePosition(&types.ExitSignal{
		Reason: types.ExitTakeProfit, Price: 498, Timestamp: now,
	}, bar, now)
	if err != nil {
		t.Fatal(err)
	}
	if !rec.PnL.Equal(decimal.NewFromInt(200)) {
		t.Errorf("expected short pnl 200, got %s", rec.PnL)
	}
}

func TestSlippageAppliedSymmetrically(t *testing.T) {
	l := newEquityLedger(func(c *ledger.EquityConfig) {
		c.Slippage = ledger.SlippageConfig{BaseSpreadBps: 2.0, MaxSlippagePct: 0.005}
	})
	now := time.Now()

	pos, err := l.OpenPosition(sizedSignal(100), bar, now)
	if err != nil {
		t.Fatal(err)
	}
	if pos.EntryPrice <= 500.00 {
		t.Errorf("long entry must fill above requested price, got %.4f", pos.EntryPrice)
	}

	rec, err := l.ClosePosition(&types.ExitSignal{
		Reason: types.ExitEndOfDay, Price: 500, Timestamp: now,
	}, bar, now)
	if err != nil {
		t.Fatal(err)
	}
	if rec.ExitPrice >= 500.00 {
		t.Errorf("long exit must fill below requested price, got %.4f", rec.ExitPrice)
	}
	if rec.Slippage <= 0 {
		t.Error("slippage paid must be recorded")
	}
}

func TestDailyPnLScansBackwardByCalendarDay(t *testing.T) {
	l := newEquityLedger(nil)
	day1 := time.Date(2024, 6, 3, 15, 0, 0, 0, time.UTC)
	day2 := time.Date(2024, 6, 4, 10, 0, 0, 0, time.UTC)

	// Day 1: one losing trade.
	if _, err := l.OpenPosition(sizedSignal(10), bar, day1); err != nil {
		t.Fatal(err)
	}
	if _, err := l.ClosePosition(&types.ExitSignal{Reason: types.ExitStopLoss, Price: 497, Timestamp: day1}, bar, day1); err != nil {
		t.Fatal(err)
	}

	// Day 2: two winners.
	for i := 0; i < 2; i++ {
		if _, err := l.OpenPosition(sizedSignal(10), bar, day2); err != nil {
			t.Fatal(err)
		}
		if _, err := l.ClosePosition(&types.ExitSignal{Reason: types.ExitTakeProfit, Price: 502, Timestamp: day2}, bar, day2); err != nil {
			t.Fatal(err)
		}
	}

	if got := l.TradesToday(day2); got != 2 {
		t.Errorf("expected 2 trades on day 2, got %d", got)
	}
	want := decimal.NewFromInt(40) // 2 x (2 points x 10 shares)
	if got := l.DailyPnL(day2); !got.Equal(want) {
		t.Errorf("expected day-2 pnl %s, got %s", want, got)
	}
	if got := l.TradesToday(day2.Add(24 * time.Hour)); got != 0 {
		t.Errorf("expected 0 trades on an empty day, got %d", got)
	}
}

func TestMAEMFETracking(t *testing.T) {
	l := newEquityLedger(nil)
	now := time.Now()

	if _, err := l.OpenPosition(sizedSignal(10), bar, now); err != nil {
		t.Fatal(err)
	}
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	l.MarkToMarket(498.5, base)                  // adverse 1.5
	l.MarkToMarket(503.0, base.Add(time.Minute)) // favorable 3.0
	l.MarkToMarket(501.0, base.Add(2*time.Minute))

	rec, err := l.ClosePosition(&types.ExitSignal{Reason: types.ExitEndOfDay, Price: 501, Timestamp: now}, bar, now)
	if err != nil {
		t.Fatal(err)
	}
	if rec.MAE != 1.5 {
		t.Errorf("expected MAE 1.5, got %.2f", rec.MAE)
	}
	if rec.MFE != 3.0 {
		t.Errorf("expected MFE 3.0, got %.2f", rec.MFE)
	}
	if rec.BarsHeld != 3 {
		t.Errorf("expected 3 bars held, got %d", rec.BarsHeld)
	}
}

func TestBarsHeldAdvancesPerBarNotPerTick(t *testing.T) {
	l := newEquityLedger(nil)
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	entryBar := types.Bar{Timestamp: base, Volume: 1_000_000}

	if _, err := l.OpenPosition(sizedSignal(10), entryBar, base); err != nil {
		t.Fatal(err)
	}

	// Twelve 5s ticks land on the same 1m bar; only the bar change counts.
	next := base.Add(time.Minute)
	for i := 0; i < 12; i++ {
		l.MarkToMarket(500.5, next)
	}
	if got := l.Position().BarsHeld; got != 1 {
		t.Fatalf("expected 1 bar held after re-marking one bar, got %d", got)
	}

	l.MarkToMarket(500.5, base.Add(2*time.Minute))
	if got := l.Position().BarsHeld; got != 2 {
		t.Errorf("expected 2 bars held after second bar, got %d", got)
	}
}
