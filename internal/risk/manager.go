// Package risk provides admission control, position sizing, and the
// circuit-breaker state for the trading engine.
package risk

import (
	"fmt"
	"sync"
	"time"

	"github.com/Vrajp610/spy-daytrader-sub000/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Config contains the risk limits.
type Config struct {
	// MaxRiskPerTrade is the fraction of capital risked between entry and
	// stop on a single trade.
	MaxRiskPerTrade float64 `mapstructure:"max_risk_per_trade"`
	// MaxPositionPct caps the position's notional as a fraction of capital.
	MaxPositionPct float64 `mapstructure:"max_position_pct"`
	// MaxDrawdown is the peak-to-current drawdown fraction that trips the
	// circuit breaker.
	MaxDrawdown float64 `mapstructure:"max_drawdown"`
	// DailyLossLimit is the daily loss fraction of capital that halts
	// trading for the day.
	DailyLossLimit float64 `mapstructure:"daily_loss_limit"`
	MaxTradesPerDay int    `mapstructure:"max_trades_per_day"`
	// CooldownAfterLosses is the consecutive-loss count that opens a
	// cooldown window.
	CooldownAfterLosses int           `mapstructure:"cooldown_after_losses"`
	CooldownDuration    time.Duration `mapstructure:"cooldown_duration"`
}

// DefaultConfig returns the limits the engine ships with.
func DefaultConfig() Config {
	return Config{
		MaxRiskPerTrade:     0.015,
		MaxPositionPct:      0.20,
		MaxDrawdown:         0.16,
		DailyLossLimit:      0.03,
		MaxTradesPerDay:     6,
		CooldownAfterLosses: 3,
		CooldownDuration:    45 * time.Minute,
	}
}

// Manager owns the process-wide risk state: the consecutive-loss streak,
// the cooldown window, and the circuit-breaker flag. The breaker is sticky;
// once tripped it stays set until the process restarts or an operator calls
// ResetCircuitBreaker.
type Manager struct {
	logger *zap.Logger
	config Config

	mu                   sync.RWMutex
	consecutiveLosses    int
	cooldownUntil        *time.Time
	circuitBreakerActive bool
}

// State is a read-only snapshot of the risk state.
type State struct {
	ConsecutiveLosses    int        `json:"consecutiveLosses"`
	CooldownUntil        *time.Time `json:"cooldownUntil,omitempty"`
	CircuitBreakerActive bool       `json:"circuitBreakerActive"`
}

// NewManager creates a risk manager.
func NewManager(logger *zap.Logger, config Config) *Manager {
	return &Manager{
		logger: logger.Named("risk"),
		config: config,
	}
}

// Admission rule tags returned by CanTrade. Stable, low-cardinality values
// suitable for metric labels; the reason string carries the detail.
const (
	RuleDrawdown       = "drawdown"
	RuleCircuitBreaker = "circuit_breaker"
	RuleDailyLoss      = "daily_loss"
	RuleTradeCap       = "trade_cap"
	RuleCooldown       = "cooldown"
)

// CanTrade runs the admission checks in fixed order, short-circuiting on the
// first failure: drawdown (trips the breaker), daily loss, trade count,
// cooldown. A false result is a normal outcome, not an error; rule names the
// check that blocked and reason is the human-readable detail.
func (m *Manager) CanTrade(capital, peakCapital, dailyPnL decimal.Decimal, tradesToday int, now time.Time) (allowed bool, rule, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if peakCapital.IsPositive() {
		drawdown := peakCapital.Sub(capital).Div(peakCapital)
		if drawdown.GreaterThanOrEqual(decimal.NewFromFloat(m.config.MaxDrawdown)) {
			if !m.circuitBreakerActive {
				m.circuitBreakerActive = true
				m.logger.Error("circuit breaker tripped",
					zap.String("drawdown", drawdown.StringFixed(4)),
					zap.Float64("limit", m.config.MaxDrawdown))
			}
			return false, RuleDrawdown, fmt.Sprintf("drawdown %s >= max %.2f", drawdown.StringFixed(4), m.config.MaxDrawdown)
		}
	}
	if m.circuitBreakerActive {
		return false, RuleCircuitBreaker, "circuit breaker active"
	}

	lossLimit := capital.Mul(decimal.NewFromFloat(m.config.DailyLossLimit)).Neg()
	if dailyPnL.LessThanOrEqual(lossLimit) {
		return false, RuleDailyLoss, fmt.Sprintf("daily pnl %s <= limit %s", dailyPnL.StringFixed(2), lossLimit.StringFixed(2))
	}

	if tradesToday >= m.config.MaxTradesPerDay {
		return false, RuleTradeCap, fmt.Sprintf("trades today %d >= max %d", tradesToday, m.config.MaxTradesPerDay)
	}

	if m.cooldownUntil != nil && now.Before(*m.cooldownUntil) {
		return false, RuleCooldown, fmt.Sprintf("cooldown until %s", m.cooldownUntil.Format(time.RFC3339))
	}

	return true, "", ""
}

// CalculatePositionSize returns the fixed-fractional share count:
// floor(capital * maxRiskPerTrade / |entry - stop|), capped by
// floor(capital * maxPositionPct / entry). Zero stop distance sizes to zero.
func (m *Manager) CalculatePositionSize(signal *types.TradeSignal, capital decimal.Decimal) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stopDistance := decimal.NewFromFloat(signal.Entry).Sub(decimal.NewFromFloat(signal.StopLoss)).Abs()
	if stopDistance.IsZero() || signal.Entry <= 0 {
		return 0
	}

	riskAmount := capital.Mul(decimal.NewFromFloat(m.config.MaxRiskPerTrade))
	shares := riskAmount.Div(stopDistance).Floor().IntPart()

	maxShares := capital.Mul(decimal.NewFromFloat(m.config.MaxPositionPct)).
		Div(decimal.NewFromFloat(signal.Entry)).Floor().IntPart()
	if shares > maxShares {
		shares = maxShares
	}
	if shares < 0 {
		shares = 0
	}
	return shares
}

// RecordTradeResult feeds a realized P&L back into the loss-streak state.
// Non-positive P&L extends the streak and, at the configured threshold,
// opens a cooldown window; positive P&L resets the streak and clears any
// cooldown.
func (m *Manager) RecordTradeResult(pnl decimal.Decimal, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if pnl.IsPositive() {
		m.consecutiveLosses = 0
		m.cooldownUntil = nil
		return
	}

	m.consecutiveLosses++
	if m.consecutiveLosses >= m.config.CooldownAfterLosses {
		until := now.Add(m.config.CooldownDuration)
		m.cooldownUntil = &until
		m.logger.Warn("loss streak cooldown opened",
			zap.Int("consecutiveLosses", m.consecutiveLosses),
			zap.Time("until", until))
	}
}

// ResetCircuitBreaker clears the breaker flag. Operator action only; the
// engine never calls this.
func (m *Manager) ResetCircuitBreaker() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.circuitBreakerActive = false
	m.logger.Warn("circuit breaker manually reset")
}

// GetState returns a snapshot of the risk state.
func (m *Manager) GetState() State {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var until *time.Time
	if m.cooldownUntil != nil {
		u := *m.cooldownUntil
		until = &u
	}
	return State{
		ConsecutiveLosses:    m.consecutiveLosses,
		CooldownUntil:        until,
		CircuitBreakerActive: m.circuitBreakerActive,
	}
}
