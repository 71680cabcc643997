package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Vrajp610/spy-daytrader-sub000/internal/broker"
	"github.com/Vrajp610/spy-daytrader-sub000/internal/events"
	"github.com/Vrajp610/spy-daytrader-sub000/internal/exits"
	"github.com/Vrajp610/spy-daytrader-sub000/internal/ledger"
	"github.com/Vrajp610/spy-daytrader-sub000/internal/marketdata"
	"github.com/Vrajp610/spy-daytrader-sub000/internal/options"
	"github.com/Vrajp610/spy-daytrader-sub000/internal/pricing"
	"github.com/Vrajp610/spy-daytrader-sub000/internal/regime"
	"github.com/Vrajp610/spy-daytrader-sub000/internal/risk"
	"github.com/Vrajp610/spy-daytrader-sub000/internal/strategy"
	"github.com/Vrajp610/spy-daytrader-sub000/pkg/types"
)

// replayWarmup is the bar count fed to the first tick so indicators and
// regime classification have history to work with.
const replayWarmup = 30

// ReplayResult summarizes one historical run.
type ReplayResult struct {
	Symbol        string                      `json:"symbol"`
	Mode          Mode                        `json:"mode"`
	Bars          int                         `json:"bars"`
	Trades        []types.TradeRecord         `json:"trades"`
	OptionsTrades []ledger.OptionsTradeRecord `json:"optionsTrades"`
	FinalEquity   decimal.Decimal             `json:"finalEquity"`
	ReturnPct     float64                     `json:"returnPct"`
	RiskState     risk.State                  `json:"riskState"`
}

// replayProvider serves a growing prefix of the recorded bars so each tick
// sees exactly the history available at that bar's close.
type replayProvider struct {
	symbol string
	bars   []types.Bar
	cursor int
}

func (p *replayProvider) Name() string { return "replay" }

func (p *replayProvider) GetSnapshot(_ context.Context, _ string) (*types.MarketSnapshot, error) {
	if p.cursor > len(p.bars) {
		p.cursor = len(p.bars)
	}
	window := p.bars[:p.cursor]
	if len(window) == 0 {
		return nil, fmt.Errorf("replay exhausted")
	}
	return &types.MarketSnapshot{
		Symbol:    p.symbol,
		Bars1m:    window,
		Bars5m:    marketdata.Aggregate5m(window),
		FetchedAt: window[len(window)-1].Timestamp,
	}, nil
}

// RunReplay drives a fresh engine over recorded bars tick by tick. It is
// synchronous and self-contained; callers run it on a worker so it cannot
// block the live loop.
func RunReplay(logger *zap.Logger, config Config, bars []types.Bar, registry *strategy.Registry) (*ReplayResult, error) {
	if len(bars) <= replayWarmup {
		return nil, fmt.Errorf("need more than %d bars, got %d", replayWarmup, len(bars))
	}

	config.SnapshotInterval = 0
	provider := &replayProvider{symbol: config.Symbol, bars: bars}

	synthetic := options.NewSyntheticProvider(logger, options.DefaultSyntheticConfig(),
		pricing.NewEngine(pricing.DefaultConfig()))
	bus := events.NewBus(logger, events.Config{Workers: 1, BufferSize: 256})
	defer bus.Stop()

	equityLedger := ledger.NewEquityLedger(logger, ledger.DefaultEquityConfig())
	optionsLedger := ledger.NewOptionsLedger(logger, ledger.DefaultOptionsConfig())
	riskMgr := risk.NewManager(logger, risk.DefaultConfig())

	eng, err := New(logger, config, Deps{
		Detector:   regime.NewDetector(logger, regime.DefaultConfig()),
		Risk:       riskMgr,
		Exits:      exits.NewManager(logger, exits.DefaultConfig()),
		Equity:     equityLedger,
		Options:    optionsLedger,
		Selector:   options.NewSelector(logger, options.DefaultSelectorConfig()),
		Chain:      options.NewFallbackChain(logger, time.Second, synthetic),
		SynthChain: synthetic,
		Data:       provider,
		Broker:     broker.NewPaperBroker(logger),
		Registry:   registry,
		Bus:        bus,
		Metrics:    NewMetrics(),
	})
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	for i := replayWarmup; i < len(bars); i++ {
		provider.cursor = i + 1
		now := bars[i].Timestamp.In(eng.loc)
		if err := eng.Tick(ctx, now); err != nil {
			logger.Warn("replay tick failed", zap.Int("bar", i), zap.Error(err))
		}
	}
	eng.flatten("replay finished")

	initial := decimal.NewFromFloat(ledger.DefaultEquityConfig().InitialCapital)
	final := equityLedger.Equity()
	if config.Mode == ModeOptions {
		initial = decimal.NewFromFloat(ledger.DefaultOptionsConfig().InitialCapital)
		final = optionsLedger.Equity()
	}

	result := &ReplayResult{
		Symbol:        config.Symbol,
		Mode:          config.Mode,
		Bars:          len(bars) - replayWarmup,
		Trades:        equityLedger.Trades(),
		OptionsTrades: optionsLedger.Trades(),
		FinalEquity:   final,
		RiskState:     riskMgr.GetState(),
	}
	if initial.IsPositive() {
		ret, _ := final.Sub(initial).Div(initial).Float64()
		result.ReturnPct = ret * 100
	}
	return result, nil
}
