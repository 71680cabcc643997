package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Vrajp610/spy-daytrader-sub000/internal/broker"
	"github.com/Vrajp610/spy-daytrader-sub000/internal/engine"
	"github.com/Vrajp610/spy-daytrader-sub000/internal/events"
	"github.com/Vrajp610/spy-daytrader-sub000/internal/exits"
	"github.com/Vrajp610/spy-daytrader-sub000/internal/ledger"
	"github.com/Vrajp610/spy-daytrader-sub000/internal/marketdata"
	"github.com/Vrajp610/spy-daytrader-sub000/internal/options"
	"github.com/Vrajp610/spy-daytrader-sub000/internal/pricing"
	"github.com/Vrajp610/spy-daytrader-sub000/internal/regime"
	"github.com/Vrajp610/spy-daytrader-sub000/internal/risk"
	"github.com/Vrajp610/spy-daytrader-sub000/internal/strategy"
	"github.com/Vrajp610/spy-daytrader-sub000/internal/workers"
	"github.com/Vrajp610/spy-daytrader-sub000/pkg/types"
)

type testServer struct {
	server *Server
	store  *marketdata.Store
	http   *httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zap.NewNop()

	store, err := marketdata.NewStore(logger, t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	registry := strategy.NewRegistry(logger)
	registry.Register(strategy.NewBreakoutStrategy(logger))
	registry.Register(strategy.NewVWAPReversionStrategy(logger))

	bus := events.NewBus(logger, events.DefaultConfig())
	t.Cleanup(bus.Stop)
	pool := workers.NewPool(logger, workers.DefaultConfig())
	t.Cleanup(pool.Stop)

	synthetic := options.NewSyntheticProvider(logger, options.DefaultSyntheticConfig(),
		pricing.NewEngine(pricing.DefaultConfig()))

	engCfg := engine.DefaultConfig()
	engCfg.Mode = engine.ModeEquity
	engCfg.Timezone = "UTC"
	eng, err := engine.New(logger, engCfg, engine.Deps{
		Detector:   regime.NewDetector(logger, regime.DefaultConfig()),
		Risk:       risk.NewManager(logger, risk.DefaultConfig()),
		Exits:      exits.NewManager(logger, exits.DefaultConfig()),
		Equity:     ledger.NewEquityLedger(logger, ledger.DefaultEquityConfig()),
		Options:    ledger.NewOptionsLedger(logger, ledger.DefaultOptionsConfig()),
		Selector:   options.NewSelector(logger, options.DefaultSelectorConfig()),
		Chain:      options.NewFallbackChain(logger, time.Second, synthetic),
		SynthChain: synthetic,
		Data:       marketdata.NewSyntheticProvider(logger, marketdata.DefaultSyntheticConfig()),
		Broker:     broker.NewPaperBroker(logger),
		Registry:   registry,
		Bus:        bus,
		Metrics:    engine.NewMetrics(),
	})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}

	srv := NewServer(logger, DefaultConfig(), eng, store, bus, pool, registry, eng.Metrics().Handler())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testServer{server: srv, store: store, http: ts}
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestHealthAndStatus(t *testing.T) {
	ts := newTestServer(t)

	var health map[string]any
	if code := getJSON(t, ts.http.URL+"/api/v1/health", &health); code != http.StatusOK {
		t.Fatalf("health status = %d", code)
	}
	if health["status"] != "healthy" {
		t.Fatalf("health = %v", health)
	}

	var status engine.Status
	if code := getJSON(t, ts.http.URL+"/api/v1/status", &status); code != http.StatusOK {
		t.Fatalf("status code = %d", code)
	}
	if status.Symbol != "SPY" || status.Running {
		t.Fatalf("status = %+v", status)
	}
}

func TestAccountAndRiskEndpoints(t *testing.T) {
	ts := newTestServer(t)

	var account map[string]map[string]string
	if code := getJSON(t, ts.http.URL+"/api/v1/account", &account); code != http.StatusOK {
		t.Fatalf("account code = %d", code)
	}
	if account["equity"]["capital"] != "50000" && account["equity"]["capital"] != "50000.00" {
		t.Fatalf("capital = %q", account["equity"]["capital"])
	}

	var state risk.State
	if code := getJSON(t, ts.http.URL+"/api/v1/risk", &state); code != http.StatusOK {
		t.Fatalf("risk code = %d", code)
	}
	if state.CircuitBreakerActive {
		t.Fatal("breaker should start clear")
	}

	resp, err := http.Post(ts.http.URL+"/api/v1/risk/reset", "application/json", nil)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reset code = %d", resp.StatusCode)
	}
}

func TestStrategiesEndpoint(t *testing.T) {
	ts := newTestServer(t)

	var body struct {
		Strategies []struct {
			Name string `json:"name"`
		} `json:"strategies"`
	}
	if code := getJSON(t, ts.http.URL+"/api/v1/strategies", &body); code != http.StatusOK {
		t.Fatalf("strategies code = %d", code)
	}
	if len(body.Strategies) != 2 {
		t.Fatalf("strategies = %d, want 2", len(body.Strategies))
	}
	if body.Strategies[0].Name != "breakout" {
		t.Fatalf("first strategy = %q, want breakout (priority order)", body.Strategies[0].Name)
	}
}

func TestHistoryEndpointServesStoredBars(t *testing.T) {
	ts := newTestServer(t)

	provider := marketdata.NewSyntheticProvider(zap.NewNop(), marketdata.DefaultSyntheticConfig())
	bars := provider.GenerateHistory(50, time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC))
	if err := ts.store.Save("SPY", types.Timeframe1m, bars); err != nil {
		t.Fatalf("Save: %v", err)
	}

	var symbols map[string][]string
	getJSON(t, ts.http.URL+"/api/v1/data/symbols", &symbols)
	if len(symbols["symbols"]) != 1 || symbols["symbols"][0] != "SPY" {
		t.Fatalf("symbols = %v", symbols)
	}

	url := fmt.Sprintf("%s/api/v1/data/history/SPY?start=%s&end=%s",
		ts.http.URL,
		bars[0].Timestamp.Format(time.RFC3339),
		bars[9].Timestamp.Format(time.RFC3339))
	var history struct {
		Count int         `json:"count"`
		Bars  []types.Bar `json:"bars"`
	}
	if code := getJSON(t, url, &history); code != http.StatusOK {
		t.Fatalf("history code = %d", code)
	}
	if history.Count != 10 {
		t.Fatalf("count = %d, want 10", history.Count)
	}

	if code := getJSON(t, ts.http.URL+"/api/v1/data/history/QQQ", nil); code != http.StatusNotFound {
		t.Fatalf("missing symbol code = %d, want 404", code)
	}
}

func TestReplaySubmissionLifecycle(t *testing.T) {
	ts := newTestServer(t)

	provider := marketdata.NewSyntheticProvider(zap.NewNop(), marketdata.DefaultSyntheticConfig())
	bars := provider.GenerateHistory(120, time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC))
	if err := ts.store.Save("SPY", types.Timeframe1m, bars); err != nil {
		t.Fatalf("Save: %v", err)
	}

	body, _ := json.Marshal(map[string]string{"symbol": "SPY", "mode": "equity"})
	resp, err := http.Post(ts.http.URL+"/api/v1/replay", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST replay: %v", err)
	}
	var submitted struct {
		ID   string `json:"id"`
		Bars int    `json:"bars"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&submitted); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("submit code = %d", resp.StatusCode)
	}
	if submitted.Bars != 120 {
		t.Fatalf("bars = %d, want 120", submitted.Bars)
	}

	deadline := time.Now().Add(10 * time.Second)
	for {
		var status struct {
			Status string               `json:"status"`
			Result *engine.ReplayResult `json:"result"`
		}
		if code := getJSON(t, ts.http.URL+"/api/v1/replay/"+submitted.ID, &status); code != http.StatusOK {
			t.Fatalf("replay status code = %d", code)
		}
		if status.Status == string(workers.StatusDone) {
			if status.Result == nil {
				t.Fatal("done replay has no result")
			}
			if status.Result.Bars != 90 {
				t.Fatalf("result bars = %d, want 90", status.Result.Bars)
			}
			break
		}
		if status.Status == string(workers.StatusFailed) {
			t.Fatalf("replay failed: %+v", status)
		}
		if time.Now().After(deadline) {
			t.Fatalf("replay did not finish, status %q", status.Status)
		}
		time.Sleep(20 * time.Millisecond)
	}

	if code := getJSON(t, ts.http.URL+"/api/v1/replay/nope", nil); code != http.StatusNotFound {
		t.Fatalf("unknown replay code = %d, want 404", code)
	}
}

func TestReplayRejectsMissingSymbol(t *testing.T) {
	ts := newTestServer(t)

	body, _ := json.Marshal(map[string]string{"mode": "equity"})
	resp, err := http.Post(ts.http.URL+"/api/v1/replay", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST replay: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("code = %d, want 400", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.http.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics code = %d", resp.StatusCode)
	}
}
