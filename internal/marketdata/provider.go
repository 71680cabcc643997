package marketdata

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/Vrajp610/spy-daytrader-sub000/pkg/types"
	"go.uber.org/zap"
)

// Provider supplies the per-tick market snapshot.
type Provider interface {
	Name() string
	GetSnapshot(ctx context.Context, symbol string) (*types.MarketSnapshot, error)
}

// SyntheticConfig parameterizes the synthetic bar generator.
type SyntheticConfig struct {
	StartPrice float64 `mapstructure:"start_price"`
	// Vol is the per-bar return standard deviation, Drift the per-bar
	// mean return.
	Vol   float64 `mapstructure:"vol"`
	Drift float64 `mapstructure:"drift"`
	Seed  int64   `mapstructure:"seed"`
	// HistoryBars is how many 1-minute bars GetSnapshot carries.
	HistoryBars int     `mapstructure:"history_bars"`
	BaseVolume  float64 `mapstructure:"base_volume"`
}

// DefaultSyntheticConfig returns generator parameters that resemble a
// liquid equity index fund.
func DefaultSyntheticConfig() SyntheticConfig {
	return SyntheticConfig{
		StartPrice:  500,
		Vol:         0.0006,
		Drift:       0,
		Seed:        42,
		HistoryBars: 390,
		BaseVolume:  800_000,
	}
}

// SyntheticProvider generates a deterministic random-walk bar series with
// full indicator columns. The same seed always produces the same series,
// which keeps replays reproducible.
type SyntheticProvider struct {
	logger *zap.Logger
	config SyntheticConfig

	mu    sync.Mutex
	rng   *rand.Rand
	bars  []types.Bar
	price float64
}

// NewSyntheticProvider creates a synthetic market data provider.
func NewSyntheticProvider(logger *zap.Logger, config SyntheticConfig) *SyntheticProvider {
	return &SyntheticProvider{
		logger: logger.Named("synthetic-data"),
		config: config,
		rng:    rand.New(rand.NewSource(config.Seed)),
		price:  config.StartPrice,
	}
}

// Name implements Provider.
func (p *SyntheticProvider) Name() string { return "synthetic" }

// GetSnapshot extends the series by one bar and returns the trailing
// history with 1-minute and aggregated 5-minute bars.
func (p *SyntheticProvider) GetSnapshot(_ context.Context, symbol string) (*types.MarketSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.bars) == 0 {
		p.seedHistory()
	} else {
		last := p.bars[len(p.bars)-1]
		p.bars = append(p.bars, p.nextBar(last.Timestamp.Add(time.Minute)))
	}
	if len(p.bars) > p.config.HistoryBars {
		p.bars = p.bars[len(p.bars)-p.config.HistoryBars:]
	}

	bars1m := append([]types.Bar(nil), p.bars...)
	ComputeIndicators(bars1m)

	return &types.MarketSnapshot{
		Symbol:    symbol,
		Bars1m:    bars1m,
		Bars5m:    Aggregate5m(bars1m),
		FetchedAt: time.Now(),
	}, nil
}

// GenerateHistory produces n indicator-complete bars starting at start.
// Used by replay jobs and tests.
func (p *SyntheticProvider) GenerateHistory(n int, start time.Time) []types.Bar {
	p.mu.Lock()
	defer p.mu.Unlock()

	bars := make([]types.Bar, 0, n)
	for i := 0; i < n; i++ {
		bars = append(bars, p.nextBar(start.Add(time.Duration(i)*time.Minute)))
	}
	ComputeIndicators(bars)
	return bars
}

func (p *SyntheticProvider) seedHistory() {
	start := time.Now().Add(-time.Duration(p.config.HistoryBars) * time.Minute).Truncate(time.Minute)
	for i := 0; i < p.config.HistoryBars; i++ {
		p.bars = append(p.bars, p.nextBar(start.Add(time.Duration(i)*time.Minute)))
	}
}

func (p *SyntheticProvider) nextBar(ts time.Time) types.Bar {
	ret := p.config.Drift + p.config.Vol*p.rng.NormFloat64()
	open := p.price
	close := open * math.Exp(ret)
	spread := math.Abs(ret) + p.config.Vol/2
	high := math.Max(open, close) * (1 + spread/2)
	low := math.Min(open, close) * (1 - spread/2)
	volume := p.config.BaseVolume * (0.5 + p.rng.Float64())

	p.price = close
	return types.Bar{
		Timestamp: ts,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     close,
		Volume:    volume,
	}
}

// Aggregate5m rolls 1-minute bars into 5-minute bars on wall-clock
// boundaries. Indicator columns are recomputed on the aggregated series.
func Aggregate5m(bars1m []types.Bar) []types.Bar {
	if len(bars1m) == 0 {
		return nil
	}
	var out []types.Bar
	var cur *types.Bar
	for _, b := range bars1m {
		bucket := b.Timestamp.Truncate(5 * time.Minute)
		if cur == nil || !cur.Timestamp.Equal(bucket) {
			out = append(out, types.Bar{
				Timestamp: bucket,
				Open:      b.Open,
				High:      b.High,
				Low:       b.Low,
				Close:     b.Close,
				Volume:    b.Volume,
			})
			cur = &out[len(out)-1]
			continue
		}
		cur.High = math.Max(cur.High, b.High)
		cur.Low = math.Min(cur.Low, b.Low)
		cur.Close = b.Close
		cur.Volume += b.Volume
	}
	ComputeIndicators(out)
	return out
}

// StoreProvider serves snapshots from bars previously written to a Store.
// It backs replay runs against recorded sessions.
type StoreProvider struct {
	store   *Store
	symbol  string
	history int
}

// NewStoreProvider creates a provider reading from the given store.
func NewStoreProvider(store *Store, symbol string, history int) *StoreProvider {
	return &StoreProvider{store: store, symbol: symbol, history: history}
}

// Name implements Provider.
func (p *StoreProvider) Name() string { return "store" }

// GetSnapshot implements Provider.
func (p *StoreProvider) GetSnapshot(ctx context.Context, symbol string) (*types.MarketSnapshot, error) {
	bars, err := p.store.Load(ctx, symbol, types.Timeframe1m)
	if err != nil {
		return nil, fmt.Errorf("loading bars for %s: %w", symbol, err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("no stored bars for %s", symbol)
	}
	if len(bars) > p.history {
		bars = bars[len(bars)-p.history:]
	}
	ComputeIndicators(bars)
	return &types.MarketSnapshot{
		Symbol:    symbol,
		Bars1m:    bars,
		Bars5m:    Aggregate5m(bars),
		FetchedAt: time.Now(),
	}, nil
}
