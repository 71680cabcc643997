// Package risk_test provides tests for the risk manager.
package risk_test

import (
	"strings"
	"testing"
	"time"

	"github.com/Vrajp610/spy-daytrader-sub000/internal/risk"
	"github.com/Vrajp610/spy-daytrader-sub000/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func newManager(mutate func(*risk.Config)) *risk.Manager {
	cfg := risk.DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	return risk.NewManager(zap.NewNop(), cfg)
}

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func TestCanTradeAllowsCleanState(t *testing.T) {
	m := newManager(nil)

	ok, rule, reason := m.CanTrade(d(50000), d(50000), decimal.Zero, 0, time.Now())
	if !ok {
		t.Fatalf("expected trade allowed, got rejection: %s", reason)
	}
	if rule != "" {
		t.Errorf("expected empty rule on admission, got %q", rule)
	}
}

func TestDrawdownTripsStickyCircuitBreaker(t *testing.T) {
	m := newManager(nil)
	now := time.Now()

	// peak=52000 capital=43000 -> drawdown 17.3% >= 16%
	ok, rule, reason := m.CanTrade(d(43000), d(52000), decimal.Zero, 0, now)
	if ok {
		t.Fatal("expected rejection at 17.3% drawdown")
	}
	if rule != risk.RuleDrawdown {
		t.Errorf("rule = %q, want %q", rule, risk.RuleDrawdown)
	}
	if !strings.Contains(reason, "drawdown") {
		t.Errorf("unexpected reason: %s", reason)
	}

	// Sticky: capital recovery does not clear the breaker.
	ok, rule, reason = m.CanTrade(d(52000), d(52000), decimal.Zero, 0, now)
	if ok {
		t.Fatal("expected breaker to stay tripped after recovery")
	}
	if rule != risk.RuleCircuitBreaker {
		t.Errorf("rule = %q, want %q", rule, risk.RuleCircuitBreaker)
	}
	if !strings.Contains(reason, "circuit breaker") {
		t.Errorf("unexpected reason: %s", reason)
	}
	if !m.GetState().CircuitBreakerActive {
		t.Error("breaker flag should be set")
	}

	m.ResetCircuitBreaker()
	if ok, _, _ := m.CanTrade(d(52000), d(52000), decimal.Zero, 0, now); !ok {
		t.Error("expected trading allowed after manual reset")
	}
}

func TestDrawdownRejectsRegardlessOfOtherInputs(t *testing.T) {
	m := newManager(nil)

	// Healthy daily pnl and zero trades must not save a breached drawdown.
	ok, _, _ := m.CanTrade(d(43000), d(52000), d(1000), 0, time.Now())
	if ok {
		t.Fatal("drawdown check must be independent of daily pnl and trade count")
	}
}

func TestDailyLossLimit(t *testing.T) {
	m := newManager(nil)

	// 3% of 50000 = 1500
	ok, rule, reason := m.CanTrade(d(50000), d(50000), d(-1500), 0, time.Now())
	if ok {
		t.Fatal("expected rejection at the daily loss limit")
	}
	if rule != risk.RuleDailyLoss {
		t.Errorf("rule = %q, want %q", rule, risk.RuleDailyLoss)
	}
	if !strings.Contains(reason, "daily pnl") {
		t.Errorf("unexpected reason: %s", reason)
	}

	if ok, _, _ := m.CanTrade(d(50000), d(50000), d(-1499), 0, time.Now()); !ok {
		t.Error("expected trade allowed just inside the daily loss limit")
	}
}

func TestMaxTradesPerDay(t *testing.T) {
	m := newManager(func(c *risk.Config) { c.MaxTradesPerDay = 2 })

	if ok, _, _ := m.CanTrade(d(50000), d(50000), decimal.Zero, 1, time.Now()); !ok {
		t.Error("expected trade allowed below the cap")
	}
	if ok, _, _ := m.CanTrade(d(50000), d(50000), decimal.Zero, 2, time.Now()); ok {
		t.Error("expected rejection at the cap")
	}
}

func TestLossStreakCooldownAndReset(t *testing.T) {
	m := newManager(func(c *risk.Config) {
		c.CooldownAfterLosses = 3
		c.CooldownDuration = 45 * time.Minute
	})
	now := time.Now()

	m.RecordTradeResult(d(-100), now)
	m.RecordTradeResult(decimal.Zero, now) // zero counts as a loss
	if ok, _, _ := m.CanTrade(d(50000), d(50000), decimal.Zero, 0, now); !ok {
		t.Fatal("no cooldown expected after two losses")
	}

	m.RecordTradeResult(d(-50), now)
	ok, rule, reason := m.CanTrade(d(50000), d(50000), decimal.Zero, 0, now)
	if ok {
		t.Fatal("expected cooldown after third consecutive loss")
	}
	if rule != risk.RuleCooldown {
		t.Errorf("rule = %q, want %q", rule, risk.RuleCooldown)
	}
	if !strings.Contains(reason, "cooldown") {
		t.Errorf("unexpected reason: %s", reason)
	}

	// Cooldown elapses.
	later := now.Add(46 * time.Minute)
	if ok, _, _ := m.CanTrade(d(50000), d(50000), decimal.Zero, 0, later); !ok {
		t.Error("expected trade allowed after cooldown elapsed")
	}

	// A winner immediately clears streak and cooldown.
	m.RecordTradeResult(d(-50), now)
	m.RecordTradeResult(d(-50), now)
	m.RecordTradeResult(d(-50), now)
	m.RecordTradeResult(d(200), now)
	if ok, _, _ := m.CanTrade(d(50000), d(50000), decimal.Zero, 0, now); !ok {
		t.Error("expected winner to clear the cooldown")
	}
	if got := m.GetState().ConsecutiveLosses; got != 0 {
		t.Errorf("expected streak reset, got %d", got)
	}
}

func TestRejectionRuleStableAcrossCooldownWindows(t *testing.T) {
	m := newManager(func(c *risk.Config) {
		c.CooldownAfterLosses = 1
		c.CooldownDuration = 45 * time.Minute
	})
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	rules := make(map[string]struct{})
	reasons := make(map[string]struct{})
	for i := 0; i < 5; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		m.RecordTradeResult(d(-50), at)
		ok, rule, reason := m.CanTrade(d(50000), d(50000), decimal.Zero, 0, at)
		if ok {
			t.Fatalf("expected cooldown rejection at %s", at)
		}
		rules[rule] = struct{}{}
		reasons[reason] = struct{}{}
	}

	// Each loss opens a new window, so the detail strings differ, but the
	// rule tag must stay a single stable value.
	if len(reasons) != 5 {
		t.Errorf("expected 5 distinct reasons, got %d", len(reasons))
	}
	if len(rules) != 1 {
		t.Fatalf("expected 1 distinct rule, got %d: %v", len(rules), rules)
	}
	if _, ok := rules[risk.RuleCooldown]; !ok {
		t.Errorf("rule set %v missing %q", rules, risk.RuleCooldown)
	}
}

func TestCalculatePositionSize(t *testing.T) {
	m := newManager(nil)

	// capital=50000, risk=1.5%, entry=500, stop=497:
	// risk shares = floor(750/3) = 250, cap = floor(10000/500) = 20.
	sig := &types.TradeSignal{Direction: types.DirectionLong, Entry: 500.00, StopLoss: 497.00}
	if got := m.CalculatePositionSize(sig, d(50000)); got != 20 {
		t.Errorf("expected 20 shares, got %d", got)
	}

	// Wide stop keeps the risk-based size under the notional cap.
	wide := &types.TradeSignal{Direction: types.DirectionLong, Entry: 500.00, StopLoss: 450.00}
	if got := m.CalculatePositionSize(wide, d(50000)); got != 15 {
		t.Errorf("expected 15 shares, got %d", got)
	}

	// Zero stop distance sizes to zero.
	flat := &types.TradeSignal{Direction: types.DirectionLong, Entry: 500.00, StopLoss: 500.00}
	if got := m.CalculatePositionSize(flat, d(50000)); got != 0 {
		t.Errorf("expected 0 shares for zero stop distance, got %d", got)
	}
}
