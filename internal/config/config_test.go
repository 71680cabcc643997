package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Vrajp610/spy-daytrader-sub000/internal/engine"
)

func TestLoadDefaultsOnly(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Engine.Symbol != "SPY" {
		t.Fatalf("symbol = %q, want SPY", cfg.Engine.Symbol)
	}
	if cfg.Engine.Mode != engine.ModeOptions {
		t.Fatalf("mode = %q, want options", cfg.Engine.Mode)
	}
	if cfg.Engine.TickInterval != 5*time.Second {
		t.Fatalf("tick interval = %v", cfg.Engine.TickInterval)
	}
	if cfg.Risk.MaxDrawdown != 0.16 {
		t.Fatalf("max drawdown = %v", cfg.Risk.MaxDrawdown)
	}
	if cfg.EquityLedger.InitialCapital != 50000 {
		t.Fatalf("initial capital = %v", cfg.EquityLedger.InitialCapital)
	}
	if cfg.Selector.MaxContracts != 10 {
		t.Fatalf("max contracts = %v", cfg.Selector.MaxContracts)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("port = %v", cfg.Server.Port)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
log_level: debug
engine:
  symbol: QQQ
  mode: equity
  tick_interval: 2s
risk:
  max_trades_per_day: 3
server:
  port: 9999
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.LogLevel != "debug" {
		t.Fatalf("log level = %q", cfg.LogLevel)
	}
	if cfg.Engine.Symbol != "QQQ" || cfg.Engine.Mode != engine.ModeEquity {
		t.Fatalf("engine = %+v", cfg.Engine)
	}
	if cfg.Engine.TickInterval != 2*time.Second {
		t.Fatalf("tick interval = %v", cfg.Engine.TickInterval)
	}
	if cfg.Risk.MaxTradesPerDay != 3 {
		t.Fatalf("max trades = %d", cfg.Risk.MaxTradesPerDay)
	}
	if cfg.Server.Port != 9999 {
		t.Fatalf("port = %d", cfg.Server.Port)
	}
	// Untouched keys keep their defaults.
	if cfg.Risk.MaxDrawdown != 0.16 {
		t.Fatalf("max drawdown = %v", cfg.Risk.MaxDrawdown)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("DAYTRADER_ENGINE_SYMBOL", "IWM")
	t.Setenv("DAYTRADER_SERVER_PORT", "7070")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Engine.Symbol != "IWM" {
		t.Fatalf("symbol = %q, want IWM", cfg.Engine.Symbol)
	}
	if cfg.Server.Port != 7070 {
		t.Fatalf("port = %d, want 7070", cfg.Server.Port)
	}
}

func TestLoadMissingFileErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}
