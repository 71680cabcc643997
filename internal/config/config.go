// Package config loads the full runtime configuration with viper: shipped
// defaults, an optional YAML file, and DAYTRADER_* environment overrides,
// in that order of precedence.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/Vrajp610/spy-daytrader-sub000/internal/api"
	"github.com/Vrajp610/spy-daytrader-sub000/internal/engine"
	"github.com/Vrajp610/spy-daytrader-sub000/internal/events"
	"github.com/Vrajp610/spy-daytrader-sub000/internal/exits"
	"github.com/Vrajp610/spy-daytrader-sub000/internal/ledger"
	"github.com/Vrajp610/spy-daytrader-sub000/internal/marketdata"
	"github.com/Vrajp610/spy-daytrader-sub000/internal/options"
	"github.com/Vrajp610/spy-daytrader-sub000/internal/pricing"
	"github.com/Vrajp610/spy-daytrader-sub000/internal/regime"
	"github.com/Vrajp610/spy-daytrader-sub000/internal/risk"
	"github.com/Vrajp610/spy-daytrader-sub000/internal/workers"
)

// Config aggregates every component's parameters.
type Config struct {
	LogLevel string `mapstructure:"log_level"`
	DataDir  string `mapstructure:"data_dir"`

	Engine         engine.Config              `mapstructure:"engine"`
	Regime         regime.Config              `mapstructure:"regime"`
	Risk           risk.Config                `mapstructure:"risk"`
	Exits          exits.Config               `mapstructure:"exits"`
	EquityLedger   ledger.EquityConfig        `mapstructure:"equity_ledger"`
	OptionsLedger  ledger.OptionsConfig       `mapstructure:"options_ledger"`
	Pricing        pricing.Config             `mapstructure:"pricing"`
	Selector       options.SelectorConfig     `mapstructure:"selector"`
	SyntheticChain options.SyntheticConfig    `mapstructure:"synthetic_chain"`
	MarketData     marketdata.SyntheticConfig `mapstructure:"market_data"`
	Events         events.Config              `mapstructure:"events"`
	Workers        workers.Config             `mapstructure:"workers"`
	Server         api.Config                 `mapstructure:"server"`
}

// Load reads configuration. path may be empty, in which case only defaults
// and environment variables apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("DAYTRADER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// setDefaults registers the shipped value for every knob so environment
// overrides work without a config file.
func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("data_dir", "./data")

	eng := engine.DefaultConfig()
	v.SetDefault("engine.symbol", eng.Symbol)
	v.SetDefault("engine.mode", string(eng.Mode))
	v.SetDefault("engine.tick_interval", eng.TickInterval)
	v.SetDefault("engine.snapshot_interval", eng.SnapshotInterval)
	v.SetDefault("engine.timezone", eng.Timezone)
	v.SetDefault("engine.market_open", eng.MarketOpen)
	v.SetDefault("engine.market_close", eng.MarketClose)
	v.SetDefault("engine.eod_flatten_minutes", eng.EODFlattenMinutes)
	v.SetDefault("engine.options_profit_target", eng.OptionsProfitTarget)
	v.SetDefault("engine.options_loss_limit", eng.OptionsLossLimit)
	v.SetDefault("engine.options_max_hold", eng.OptionsMaxHold)
	v.SetDefault("engine.stop_timeout", eng.StopTimeout)

	reg := regime.DefaultConfig()
	v.SetDefault("regime.vol_band_width", reg.VolBandWidth)
	v.SetDefault("regime.atr_median_mult", reg.ATRMedianMult)
	v.SetDefault("regime.trend_adx", reg.TrendADX)
	v.SetDefault("regime.range_adx", reg.RangeADX)
	v.SetDefault("regime.range_band_width", reg.RangeBandWidth)
	v.SetDefault("regime.slope_bars", reg.SlopeBars)
	v.SetDefault("regime.atr_window", reg.ATRWindow)
	v.SetDefault("regime.min_bars", reg.MinBars)

	rk := risk.DefaultConfig()
	v.SetDefault("risk.max_risk_per_trade", rk.MaxRiskPerTrade)
	v.SetDefault("risk.max_position_pct", rk.MaxPositionPct)
	v.SetDefault("risk.max_drawdown", rk.MaxDrawdown)
	v.SetDefault("risk.daily_loss_limit", rk.DailyLossLimit)
	v.SetDefault("risk.max_trades_per_day", rk.MaxTradesPerDay)
	v.SetDefault("risk.cooldown_after_losses", rk.CooldownAfterLosses)
	v.SetDefault("risk.cooldown_duration", rk.CooldownDuration)

	ex := exits.DefaultConfig()
	v.SetDefault("exits.trail_arm_atr", ex.TrailArmATR)
	v.SetDefault("exits.trail_tighten_atr", ex.TrailTightenATR)
	v.SetDefault("exits.trail_wide_mult", ex.TrailWideMult)
	v.SetDefault("exits.trail_tight_mult", ex.TrailTightMult)

	eq := ledger.DefaultEquityConfig()
	v.SetDefault("equity_ledger.symbol", eq.Symbol)
	v.SetDefault("equity_ledger.initial_capital", eq.InitialCapital)
	v.SetDefault("equity_ledger.commission_per_share", eq.CommissionPerShare)
	v.SetDefault("equity_ledger.slippage.base_spread_bps", eq.Slippage.BaseSpreadBps)
	v.SetDefault("equity_ledger.slippage.impact_coeff", eq.Slippage.ImpactCoeff)
	v.SetDefault("equity_ledger.slippage.max_slippage_pct", eq.Slippage.MaxSlippagePct)

	op := ledger.DefaultOptionsConfig()
	v.SetDefault("options_ledger.initial_capital", op.InitialCapital)
	v.SetDefault("options_ledger.spread_cost_pct", op.SpreadCostPct)
	v.SetDefault("options_ledger.commission_per_contract", op.CommissionPerContract)

	pr := pricing.DefaultConfig()
	v.SetDefault("pricing.risk_free_rate", pr.RiskFreeRate)
	v.SetDefault("pricing.min_iv", pr.MinIV)
	v.SetDefault("pricing.max_iv", pr.MaxIV)

	sel := options.DefaultSelectorConfig()
	v.SetDefault("selector.confidence_floor", sel.ConfidenceFloor)
	v.SetDefault("selector.high_confidence", sel.HighConfidence)
	v.SetDefault("selector.moderate_confidence", sel.ModerateConfidence)
	v.SetDefault("selector.iv_rank_high", sel.IVRankHigh)
	v.SetDefault("selector.iv_rank_low", sel.IVRankLow)
	v.SetDefault("selector.iv_rank_condor", sel.IVRankCondor)
	v.SetDefault("selector.ideal_dte_credit", sel.IdealDTECredit)
	v.SetDefault("selector.ideal_dte_debit", sel.IdealDTEDebit)
	v.SetDefault("selector.min_dte", sel.MinDTE)
	v.SetDefault("selector.max_dte", sel.MaxDTE)
	v.SetDefault("selector.target_short_delta", sel.TargetShortDelta)
	v.SetDefault("selector.strangle_delta", sel.StrangleDelta)
	v.SetDefault("selector.spread_width", sel.SpreadWidth)
	v.SetDefault("selector.risk_fraction", sel.RiskFraction)
	v.SetDefault("selector.max_contracts", sel.MaxContracts)
	v.SetDefault("selector.max_portfolio_risk", sel.MaxPortfolioRisk)

	sc := options.DefaultSyntheticConfig()
	v.SetDefault("synthetic_chain.strike_step", sc.StrikeStep)
	v.SetDefault("synthetic_chain.strike_span", sc.StrikeSpan)
	v.SetDefault("synthetic_chain.max_dte", sc.MaxDTE)
	v.SetDefault("synthetic_chain.spread_frac", sc.SpreadFrac)
	v.SetDefault("synthetic_chain.default_iv_rank", sc.DefaultIVRank)

	md := marketdata.DefaultSyntheticConfig()
	v.SetDefault("market_data.start_price", md.StartPrice)
	v.SetDefault("market_data.vol", md.Vol)
	v.SetDefault("market_data.drift", md.Drift)
	v.SetDefault("market_data.seed", md.Seed)
	v.SetDefault("market_data.history_bars", md.HistoryBars)
	v.SetDefault("market_data.base_volume", md.BaseVolume)

	ev := events.DefaultConfig()
	v.SetDefault("events.workers", ev.Workers)
	v.SetDefault("events.buffer_size", ev.BufferSize)

	wk := workers.DefaultConfig()
	v.SetDefault("workers.workers", wk.Workers)
	v.SetDefault("workers.queue_size", wk.QueueSize)
	v.SetDefault("workers.job_timeout", wk.JobTimeout)
	v.SetDefault("workers.shutdown_timeout", wk.ShutdownTimeout)

	srv := api.DefaultConfig()
	v.SetDefault("server.host", srv.Host)
	v.SetDefault("server.port", srv.Port)
	v.SetDefault("server.websocket_path", srv.WebSocketPath)
	v.SetDefault("server.read_timeout", srv.ReadTimeout)
	v.SetDefault("server.write_timeout", srv.WriteTimeout)
	v.SetDefault("server.allowed_origins", srv.AllowedOrigins)
}
