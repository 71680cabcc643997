// Package options structures multi-leg option trades: chain retrieval with
// provider fallback, and the selector that maps signal, regime, and IV rank
// to a concrete structure.
package options

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/Vrajp610/spy-daytrader-sub000/internal/pricing"
	"github.com/Vrajp610/spy-daytrader-sub000/pkg/types"
	"go.uber.org/zap"
)

// ChainProvider fetches an option chain snapshot for a symbol.
type ChainProvider interface {
	Name() string
	GetChain(ctx context.Context, symbol string) (*types.OptionChainSnapshot, error)
}

// FallbackChain tries providers in order, each under its own timeout. A
// failing or empty provider falls through to the next instead of blocking
// the tick. With a synthetic generator last, a caller always receives a
// usable chain.
type FallbackChain struct {
	logger    *zap.Logger
	providers []ChainProvider
	timeout   time.Duration
}

// NewFallbackChain creates a fallback chain over the given providers.
func NewFallbackChain(logger *zap.Logger, timeout time.Duration, providers ...ChainProvider) *FallbackChain {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &FallbackChain{
		logger:    logger.Named("chain"),
		providers: providers,
		timeout:   timeout,
	}
}

// Name implements ChainProvider.
func (f *FallbackChain) Name() string { return "fallback" }

// GetChain returns the first non-empty snapshot from the provider list.
func (f *FallbackChain) GetChain(ctx context.Context, symbol string) (*types.OptionChainSnapshot, error) {
	var lastErr error
	for _, p := range f.providers {
		callCtx, cancel := context.WithTimeout(ctx, f.timeout)
		chain, err := p.GetChain(callCtx, symbol)
		cancel()

		if err != nil {
			lastErr = err
			f.logger.Warn("chain provider failed, falling through",
				zap.String("provider", p.Name()),
				zap.Error(err))
			continue
		}
		if chain.Empty() {
			lastErr = fmt.Errorf("provider %s returned empty chain", p.Name())
			continue
		}
		return chain, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no chain providers configured")
	}
	return nil, fmt.Errorf("all chain providers failed for %s: %w", symbol, lastErr)
}

// SyntheticConfig parameterizes the synthetic chain generator.
type SyntheticConfig struct {
	StrikeStep    float64 `mapstructure:"strike_step"`
	StrikeSpan    int     `mapstructure:"strike_span"` // strikes each side of spot
	MaxDTE        int     `mapstructure:"max_dte"`
	SpreadFrac    float64 `mapstructure:"spread_frac"` // bid/ask half-spread as fraction of mid
	DefaultIVRank float64 `mapstructure:"default_iv_rank"`
}

// DefaultSyntheticConfig returns generator parameters suited to an
// equity-index underlying.
func DefaultSyntheticConfig() SyntheticConfig {
	return SyntheticConfig{
		StrikeStep:    1.0,
		StrikeSpan:    25,
		MaxDTE:        21,
		SpreadFrac:    0.02,
		DefaultIVRank: 50,
	}
}

// SyntheticProvider generates a Black-Scholes chain from the engine's own
// market state when no live provider is reachable. UpdateMarket must be
// called with a fresh price and ATR before each fetch.
type SyntheticProvider struct {
	logger *zap.Logger
	config SyntheticConfig
	engine *pricing.Engine

	mu    sync.RWMutex
	price float64
	atr   float64
}

// NewSyntheticProvider creates a synthetic chain provider.
func NewSyntheticProvider(logger *zap.Logger, config SyntheticConfig, engine *pricing.Engine) *SyntheticProvider {
	return &SyntheticProvider{
		logger: logger.Named("synthetic-chain"),
		config: config,
		engine: engine,
	}
}

// Name implements ChainProvider.
func (s *SyntheticProvider) Name() string { return "synthetic" }

// UpdateMarket records the latest underlying price and ATR.
func (s *SyntheticProvider) UpdateMarket(price, atr float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.price = price
	s.atr = atr
}

// GetChain implements ChainProvider. The chain carries weekly-style
// expirations out to MaxDTE with strikes on a fixed grid around spot,
// priced with the ATR-implied volatility.
func (s *SyntheticProvider) GetChain(_ context.Context, symbol string) (*types.OptionChainSnapshot, error) {
	s.mu.RLock()
	price, atr := s.price, s.atr
	s.mu.RUnlock()

	if price <= 0 {
		return nil, fmt.Errorf("no market state for synthetic chain")
	}

	iv := s.engine.ImpliedVolFromATR(atr, price)
	now := time.Now()

	chain := &types.OptionChainSnapshot{
		Symbol:       symbol,
		Underlying:   price,
		Timestamp:    now,
		Calls:        make(map[string][]types.OptionQuote),
		Puts:         make(map[string][]types.OptionQuote),
		IVRank:       s.config.DefaultIVRank,
		IVPercentile: s.config.DefaultIVRank,
	}

	base := math.Round(price/s.config.StrikeStep) * s.config.StrikeStep
	for dte := 1; dte <= s.config.MaxDTE; dte++ {
		// Fridays plus a few near-dated expirations, like a weekly chain.
		exp := now.AddDate(0, 0, dte)
		if dte > 5 && exp.Weekday() != time.Friday {
			continue
		}
		chain.Expirations = append(chain.Expirations, exp)
		key := types.ChainExpiryKey(exp)
		tm := pricing.TimeToExpiry(exp, now)

		for i := -s.config.StrikeSpan; i <= s.config.StrikeSpan; i++ {
			strike := base + float64(i)*s.config.StrikeStep
			if strike <= 0 {
				continue
			}
			chain.Calls[key] = append(chain.Calls[key], s.quote(symbol, types.OptionCall, price, strike, exp, tm, iv))
			chain.Puts[key] = append(chain.Puts[key], s.quote(symbol, types.OptionPut, price, strike, exp, tm, iv))
		}
	}

	return chain, nil
}

func (s *SyntheticProvider) quote(symbol string, typ types.OptionType, spot, strike float64, exp time.Time, tm, iv float64) types.OptionQuote {
	mid := s.engine.Price(typ, spot, strike, tm, iv)
	half := mid * s.config.SpreadFrac

	letter := "C"
	if typ == types.OptionPut {
		letter = "P"
	}
	return types.OptionQuote{
		Contract:   fmt.Sprintf("%s%s%s%08d", symbol, exp.Format("060102"), letter, int64(strike*1000)),
		Type:       typ,
		Strike:     strike,
		Expiration: exp,
		Bid:        math.Max(0, mid-half),
		Ask:        mid + half,
		Mid:        mid,
		IV:         iv,
		Greeks:     s.engine.Greeks(typ, spot, strike, tm, iv),
	}
}
