// Package strategy provides the pluggable signal producers and their
// registry.
package strategy

import (
	"fmt"
	"sync"
	"time"

	"github.com/Vrajp610/spy-daytrader-sub000/internal/regime"
	"github.com/Vrajp610/spy-daytrader-sub000/pkg/types"
	"go.uber.org/zap"
)

// Strategy is the interface all strategies must implement. GenerateSignal
// runs when no position is open; ShouldExit runs each tick while the
// strategy's own position is open. Both receive the full bar history and
// the index of the current bar.
type Strategy interface {
	Name() string
	Description() string
	Parameters() map[string]Parameter
	SetParameter(name string, value any) error
	// FitsRegime reports whether the strategy should be consulted in the
	// given regime.
	FitsRegime(r regime.Regime) bool
	GenerateSignal(history []types.Bar, index int, now time.Time) *types.TradeSignal
	// ShouldExit may propose EOD, TIME_STOP, REVERSE_SIGNAL, or
	// FALSE_BREAKOUT. Stop, target, and trailing exits are owned by the
	// exit manager and ignored here.
	ShouldExit(history []types.Bar, index int, entry *types.TradeSignal, entryTime, now time.Time, highest, lowest float64) *types.ExitSignal
}

// Parameter defines a tunable strategy parameter.
type Parameter struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Type        string `json:"type"` // "int", "float", "bool"
	Default     any    `json:"default"`
	Current     any    `json:"current"`
}

// Registry holds the enabled strategies in a fixed priority order. The
// engine consults them front to back and takes the first signal.
type Registry struct {
	logger     *zap.Logger
	mu         sync.RWMutex
	order      []string
	strategies map[string]Strategy
}

// NewRegistry creates an empty strategy registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		logger:     logger.Named("registry"),
		strategies: make(map[string]Strategy),
	}
}

// Register appends a strategy at the lowest priority. Registering a name
// twice replaces the instance but keeps its original priority slot.
func (r *Registry) Register(s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.strategies[s.Name()]; !exists {
		r.order = append(r.order, s.Name())
	}
	r.strategies[s.Name()] = s
	r.logger.Info("strategy registered", zap.String("strategy", s.Name()))
}

// Get returns a strategy by name.
func (r *Registry) Get(name string) (Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[name]
	return s, ok
}

// InPriorityOrder returns the registered strategies in registration order.
func (r *Registry) InPriorityOrder() []Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Strategy, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.strategies[name])
	}
	return out
}

// Names lists the registered strategy names in priority order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// params is the shared parameter store embedded by the concrete
// strategies.
type params struct {
	mu     sync.RWMutex
	values map[string]Parameter
}

func newParams(defs []Parameter) params {
	values := make(map[string]Parameter, len(defs))
	for _, def := range defs {
		def.Current = def.Default
		values[def.Name] = def
	}
	return params{values: values}
}

func (p *params) Parameters() map[string]Parameter {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]Parameter, len(p.values))
	for name, def := range p.values {
		out[name] = def
	}
	return out
}

func (p *params) SetParameter(name string, value any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	def, ok := p.values[name]
	if !ok {
		return fmt.Errorf("unknown parameter %q", name)
	}
	switch def.Type {
	case "int":
		switch v := value.(type) {
		case int:
			def.Current = v
		case float64:
			def.Current = int(v)
		default:
			return fmt.Errorf("parameter %q wants int, got %T", name, value)
		}
	case "float":
		switch v := value.(type) {
		case float64:
			def.Current = v
		case int:
			def.Current = float64(v)
		default:
			return fmt.Errorf("parameter %q wants float, got %T", name, value)
		}
	case "bool":
		v, ok := value.(bool)
		if !ok {
			return fmt.Errorf("parameter %q wants bool, got %T", name, value)
		}
		def.Current = v
	default:
		return fmt.Errorf("parameter %q has unsupported type %q", name, def.Type)
	}
	p.values[name] = def
	return nil
}

func (p *params) intVal(name string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if v, ok := p.values[name].Current.(int); ok {
		return v
	}
	return 0
}

func (p *params) floatVal(name string) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	switch v := p.values[name].Current.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}
