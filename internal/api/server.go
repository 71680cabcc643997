// Package api provides the HTTP and WebSocket surface over the engine:
// status, account, risk, trades, stored market data, replay submission,
// and a live event stream.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/Vrajp610/spy-daytrader-sub000/internal/engine"
	"github.com/Vrajp610/spy-daytrader-sub000/internal/events"
	"github.com/Vrajp610/spy-daytrader-sub000/internal/marketdata"
	"github.com/Vrajp610/spy-daytrader-sub000/internal/strategy"
	"github.com/Vrajp610/spy-daytrader-sub000/internal/workers"
	"github.com/Vrajp610/spy-daytrader-sub000/pkg/types"
)

// Config holds the server parameters.
type Config struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	WebSocketPath  string        `mapstructure:"websocket_path"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

// DefaultConfig returns the shipped server parameters.
func DefaultConfig() Config {
	return Config{
		Host:           "127.0.0.1",
		Port:           8080,
		WebSocketPath:  "/ws",
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		AllowedOrigins: []string{"*"},
	}
}

// replayState tracks one submitted replay through the worker pool.
type replayState struct {
	ID        string               `json:"id"`
	Symbol    string               `json:"symbol"`
	Mode      engine.Mode          `json:"mode"`
	Submitted time.Time            `json:"submitted"`
	Result    *engine.ReplayResult `json:"result,omitempty"`
}

// Server is the HTTP/WebSocket API server.
type Server struct {
	logger     *zap.Logger
	config     Config
	router     *mux.Router
	httpServer *http.Server
	hub        *hub

	engine   *engine.Engine
	store    *marketdata.Store
	bus      *events.Bus
	pool     *workers.Pool
	registry *strategy.Registry

	mu      sync.RWMutex
	replays map[string]*replayState
}

// NewServer wires the server over the engine and its collaborators.
// metricsHandler serves /metrics; pass nil to disable the endpoint.
func NewServer(logger *zap.Logger, config Config, eng *engine.Engine, store *marketdata.Store,
	bus *events.Bus, pool *workers.Pool, registry *strategy.Registry, metricsHandler http.Handler) *Server {
	s := &Server{
		logger:   logger.Named("api"),
		config:   config,
		router:   mux.NewRouter(),
		engine:   eng,
		store:    store,
		bus:      bus,
		pool:     pool,
		registry: registry,
		replays:  make(map[string]*replayState),
	}
	s.hub = newHub(s.logger, bus)
	s.setupRoutes(metricsHandler)
	return s
}

func (s *Server) setupRoutes(metricsHandler http.Handler) {
	s.router.HandleFunc("/api/v1/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/api/v1/status", s.handleStatus).Methods("GET")
	s.router.HandleFunc("/api/v1/account", s.handleAccount).Methods("GET")
	s.router.HandleFunc("/api/v1/position", s.handlePosition).Methods("GET")
	s.router.HandleFunc("/api/v1/trades", s.handleTrades).Methods("GET")
	s.router.HandleFunc("/api/v1/regime", s.handleRegime).Methods("GET")
	s.router.HandleFunc("/api/v1/risk", s.handleRisk).Methods("GET")
	s.router.HandleFunc("/api/v1/risk/reset", s.handleRiskReset).Methods("POST")
	s.router.HandleFunc("/api/v1/strategies", s.handleStrategies).Methods("GET")

	s.router.HandleFunc("/api/v1/data/symbols", s.handleSymbols).Methods("GET")
	s.router.HandleFunc("/api/v1/data/history/{symbol}", s.handleHistory).Methods("GET")

	s.router.HandleFunc("/api/v1/replay", s.handleRunReplay).Methods("POST")
	s.router.HandleFunc("/api/v1/replay/{id}", s.handleGetReplay).Methods("GET")

	if metricsHandler != nil {
		s.router.Handle("/metrics", metricsHandler).Methods("GET")
	}
	s.router.HandleFunc(s.config.WebSocketPath, s.hub.handleUpgrade)
}

// Handler returns the router wrapped with CORS, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   s.config.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(s.router)
}

// Start begins serving. It blocks until the listener fails or Stop runs.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.hub.start()
	s.logger.Info("starting api server", zap.String("addr", addr))
	return s.httpServer.ListenAndServe()
}

// Stop closes WebSocket clients and shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	s.hub.stop()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("response encode failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.Status())
}

func (s *Server) handleAccount(w http.ResponseWriter, _ *http.Request) {
	eq := s.engine.Equity()
	opt := s.engine.Options()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"equity": map[string]string{
			"capital":     eq.Capital().StringFixed(2),
			"peakCapital": eq.PeakCapital().StringFixed(2),
			"markEquity":  eq.Equity().StringFixed(2),
		},
		"options": map[string]string{
			"cash":       opt.Cash().StringFixed(2),
			"markEquity": opt.Equity().StringFixed(2),
			"peakEquity": opt.PeakEquity().StringFixed(2),
			"openRisk":   opt.OpenRisk().StringFixed(2),
		},
	})
}

func (s *Server) handlePosition(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"equity":  s.engine.Equity().Position(),
		"options": s.engine.Options().Position(),
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	equityTrades := s.engine.Equity().Trades()
	if len(equityTrades) > limit {
		equityTrades = equityTrades[len(equityTrades)-limit:]
	}
	optionsTrades := s.engine.Options().Trades()
	if len(optionsTrades) > limit {
		optionsTrades = optionsTrades[len(optionsTrades)-limit:]
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"equity":  equityTrades,
		"options": optionsTrades,
	})
}

func (s *Server) handleRegime(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"regime": string(s.engine.CurrentRegime()),
	})
}

func (s *Server) handleRisk(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.Risk().GetState())
}

// handleRiskReset clears the sticky circuit breaker. Operator action; the
// breaker never clears on its own.
func (s *Server) handleRiskReset(w http.ResponseWriter, _ *http.Request) {
	s.engine.Risk().ResetCircuitBreaker()
	s.logger.Warn("circuit breaker reset via api")
	s.writeJSON(w, http.StatusOK, s.engine.Risk().GetState())
}

func (s *Server) handleStrategies(w http.ResponseWriter, _ *http.Request) {
	out := make([]map[string]any, 0)
	for _, st := range s.registry.InPriorityOrder() {
		out = append(out, map[string]any{
			"name":        st.Name(),
			"description": st.Description(),
			"parameters":  st.Parameters(),
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"strategies": out})
}

func (s *Server) handleSymbols(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"symbols": s.store.Symbols()})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	timeframe := types.Timeframe1m
	if v := r.URL.Query().Get("timeframe"); v != "" {
		timeframe = types.Timeframe(v)
	}

	start := time.Now().AddDate(0, 0, -7)
	end := time.Now()
	if v := r.URL.Query().Get("start"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid start")
			return
		}
		start = t
	}
	if v := r.URL.Query().Get("end"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid end")
			return
		}
		end = t
	}

	bars, err := s.store.LoadRange(r.Context(), symbol, timeframe, start, end)
	if err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"symbol":    symbol,
		"timeframe": timeframe,
		"bars":      bars,
		"count":     len(bars),
	})
}

type replayRequest struct {
	Symbol string `json:"symbol"`
	Mode   string `json:"mode"`
}

// handleRunReplay loads stored bars and submits the run to the worker pool
// so it cannot block the live loop.
func (s *Server) handleRunReplay(w http.ResponseWriter, r *http.Request) {
	var req replayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Symbol == "" {
		s.writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}
	mode := engine.ModeEquity
	if req.Mode == string(engine.ModeOptions) {
		mode = engine.ModeOptions
	}

	bars, err := s.store.Load(r.Context(), req.Symbol, types.Timeframe1m)
	if err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}

	id := uuid.New().String()
	state := &replayState{
		ID:        id,
		Symbol:    req.Symbol,
		Mode:      mode,
		Submitted: time.Now(),
	}

	cfg := engine.DefaultConfig()
	cfg.Symbol = req.Symbol
	cfg.Mode = mode

	err = s.pool.Submit(id, func(context.Context) error {
		result, err := engine.RunReplay(s.logger, cfg, bars, s.registry)
		if err != nil {
			return err
		}
		s.mu.Lock()
		state.Result = result
		s.mu.Unlock()
		return nil
	})
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	s.mu.Lock()
	s.replays[id] = state
	s.mu.Unlock()

	s.writeJSON(w, http.StatusAccepted, map[string]any{
		"id":     id,
		"status": string(workers.StatusQueued),
		"bars":   len(bars),
	})
}

func (s *Server) handleGetReplay(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	s.mu.RLock()
	state, ok := s.replays[id]
	s.mu.RUnlock()
	if !ok {
		s.writeError(w, http.StatusNotFound, "replay not found")
		return
	}

	job, ok := s.pool.Job(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "replay job not found")
		return
	}

	resp := map[string]any{
		"id":        id,
		"symbol":    state.Symbol,
		"mode":      state.Mode,
		"status":    string(job.Status),
		"submitted": state.Submitted,
	}
	if job.Error != "" {
		resp["error"] = job.Error
	}
	s.mu.RLock()
	if state.Result != nil {
		resp["result"] = state.Result
	}
	s.mu.RUnlock()

	s.writeJSON(w, http.StatusOK, resp)
}
