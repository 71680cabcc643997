// Package main is the entry point for the day-trading engine: it wires the
// market data provider, regime detector, risk gate, exit manager, ledgers,
// options selector, and API server, then runs the tick loop until a signal
// stops it.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Vrajp610/spy-daytrader-sub000/internal/api"
	"github.com/Vrajp610/spy-daytrader-sub000/internal/broker"
	"github.com/Vrajp610/spy-daytrader-sub000/internal/config"
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
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	logLevel := flag.String("log-level", "", "Override log level (debug, info, warn, error)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	logger := setupLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("starting day trader",
		zap.String("symbol", cfg.Engine.Symbol),
		zap.String("mode", string(cfg.Engine.Mode)),
		zap.String("dataDir", cfg.DataDir))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := marketdata.NewStore(logger, cfg.DataDir)
	if err != nil {
		logger.Fatal("data store init failed", zap.Error(err))
	}

	bus := events.NewBus(logger, cfg.Events)
	pool := workers.NewPool(logger, cfg.Workers)

	registry := strategy.NewRegistry(logger)
	registry.Register(strategy.NewBreakoutStrategy(logger))
	registry.Register(strategy.NewVWAPReversionStrategy(logger))

	pricingEngine := pricing.NewEngine(cfg.Pricing)
	synthChain := options.NewSyntheticProvider(logger, cfg.SyntheticChain, pricingEngine)
	chain := options.NewFallbackChain(logger, 5*time.Second, synthChain)

	provider := marketdata.NewSyntheticProvider(logger, cfg.MarketData)

	eng, err := engine.New(logger, cfg.Engine, engine.Deps{
		Detector:   regime.NewDetector(logger, cfg.Regime),
		Risk:       risk.NewManager(logger, cfg.Risk),
		Exits:      exits.NewManager(logger, cfg.Exits),
		Equity:     ledger.NewEquityLedger(logger, cfg.EquityLedger),
		Options:    ledger.NewOptionsLedger(logger, cfg.OptionsLedger),
		Selector:   options.NewSelector(logger, cfg.Selector),
		Chain:      chain,
		SynthChain: synthChain,
		Data:       provider,
		Broker:     broker.NewPaperBroker(logger),
		Registry:   registry,
		Bus:        bus,
		Metrics:    engine.NewMetrics(),
	})
	if err != nil {
		logger.Fatal("engine init failed", zap.Error(err))
	}

	server := api.NewServer(logger, cfg.Server, eng, store, bus, pool, registry, eng.Metrics().Handler())

	if err := eng.Start(ctx); err != nil {
		logger.Fatal("engine start failed", zap.Error(err))
	}

	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error("api server error", zap.Error(err))
		}
	}()

	logger.Info("server started",
		zap.String("http", fmt.Sprintf("http://%s:%d/api/v1", cfg.Server.Host, cfg.Server.Port)),
		zap.String("ws", fmt.Sprintf("ws://%s:%d%s", cfg.Server.Host, cfg.Server.Port, cfg.Server.WebSocketPath)))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("shutdown signal received")

	cancel()

	if err := eng.Stop(); err != nil {
		logger.Error("engine stop failed", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}

	pool.Stop()
	bus.Stop()

	logger.Info("stopped")
}

func setupLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Encoding:    "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := config.Build()
	if err != nil {
		panic(err)
	}
	return logger
}
