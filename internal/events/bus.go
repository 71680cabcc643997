// Package events provides the engine's internal event bus. The loop
// publishes price, trade, regime, and risk events; the API layer and its
// websocket clients subscribe.
package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Type categorizes events.
type Type string

const (
	TypePrice  Type = "price"
	TypeTrade  Type = "trade"
	TypeRegime Type = "regime"
	TypeRisk   Type = "risk"
	TypeStatus Type = "status"
	TypeError  Type = "error"
)

// Event is the interface all bus events implement.
type Event interface {
	EventType() Type
	EventID() string
	EventTime() time.Time
}

// Base carries the identity shared by every event.
type Base struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

func (b Base) EventType() Type      { return b.Type }
func (b Base) EventID() string      { return b.ID }
func (b Base) EventTime() time.Time { return b.Timestamp }

func newBase(t Type, ts time.Time) Base {
	return Base{ID: uuid.New().String(), Type: t, Timestamp: ts}
}

// PriceEvent is published once per tick after the snapshot refresh.
type PriceEvent struct {
	Base
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	ATR    float64 `json:"atr"`
	Volume float64 `json:"volume"`
}

// NewPriceEvent creates a price event.
func NewPriceEvent(symbol string, price, atr, volume float64, ts time.Time) *PriceEvent {
	return &PriceEvent{Base: newBase(TypePrice, ts), Symbol: symbol, Price: price, ATR: atr, Volume: volume}
}

// TradeEvent is published on every open, scale-out, and close.
type TradeEvent struct {
	Base
	Symbol    string          `json:"symbol"`
	Action    string          `json:"action"` // "open", "scale_out", "close"
	Direction string          `json:"direction"`
	Strategy  string          `json:"strategy"`
	Quantity  int64           `json:"quantity"`
	Price     float64         `json:"price"`
	Reason    string          `json:"reason,omitempty"`
	PnL       decimal.Decimal `json:"pnl"`
}

// NewTradeEvent creates a trade event.
func NewTradeEvent(symbol, action, direction, strategy string, quantity int64, price float64, reason string, pnl decimal.Decimal, ts time.Time) *TradeEvent {
	return &TradeEvent{
		Base:      newBase(TypeTrade, ts),
		Symbol:    symbol,
		Action:    action,
		Direction: direction,
		Strategy:  strategy,
		Quantity:  quantity,
		Price:     price,
		Reason:    reason,
		PnL:       pnl,
	}
}

// RegimeEvent is published when the classified regime changes.
type RegimeEvent struct {
	Base
	Symbol   string `json:"symbol"`
	Regime   string `json:"regime"`
	Previous string `json:"previous"`
}

// NewRegimeEvent creates a regime change event.
func NewRegimeEvent(symbol, current, previous string, ts time.Time) *RegimeEvent {
	return &RegimeEvent{Base: newBase(TypeRegime, ts), Symbol: symbol, Regime: current, Previous: previous}
}

// RiskEvent is published when admission control blocks trading or the
// circuit breaker trips.
type RiskEvent struct {
	Base
	Reason   string          `json:"reason"`
	Severity string          `json:"severity"` // "warning", "critical"
	Value    decimal.Decimal `json:"value"`
}

// NewRiskEvent creates a risk event.
func NewRiskEvent(reason, severity string, value decimal.Decimal, ts time.Time) *RiskEvent {
	return &RiskEvent{Base: newBase(TypeRisk, ts), Reason: reason, Severity: severity, Value: value}
}

// StatusEvent reports engine lifecycle transitions.
type StatusEvent struct {
	Base
	State   string `json:"state"`
	Message string `json:"message,omitempty"`
}

// NewStatusEvent creates a status event.
func NewStatusEvent(state, message string, ts time.Time) *StatusEvent {
	return &StatusEvent{Base: newBase(TypeStatus, ts), State: state, Message: message}
}

// ErrorEvent reports a tick-level failure the loop recovered from.
type ErrorEvent struct {
	Base
	Component string `json:"component"`
	Message   string `json:"message"`
}

// NewErrorEvent creates an error event.
func NewErrorEvent(component, message string, ts time.Time) *ErrorEvent {
	return &ErrorEvent{Base: newBase(TypeError, ts), Component: component, Message: message}
}

// Handler processes one event.
type Handler func(Event)

// Config sizes the bus.
type Config struct {
	Workers    int `mapstructure:"workers"`
	BufferSize int `mapstructure:"buffer_size"`
}

// DefaultConfig returns bus defaults sized for a single-instrument loop.
func DefaultConfig() Config {
	return Config{Workers: 4, BufferSize: 4096}
}

type subscription struct {
	id      string
	types   map[Type]bool // empty means all types
	handler Handler
	active  atomic.Bool
}

// Bus routes events from the loop to subscribers. Publish never blocks;
// events beyond the buffer are dropped and counted.
type Bus struct {
	logger *zap.Logger
	config Config

	mu   sync.RWMutex
	subs []*subscription

	eventChan chan Event

	published atomic.Int64
	processed atomic.Int64
	dropped   atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Stats is a counters snapshot for status reporting.
type Stats struct {
	Published   int64 `json:"published"`
	Processed   int64 `json:"processed"`
	Dropped     int64 `json:"dropped"`
	Subscribers int   `json:"subscribers"`
}

// NewBus creates and starts an event bus.
func NewBus(logger *zap.Logger, config Config) *Bus {
	if config.Workers <= 0 {
		config.Workers = 4
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 4096
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bus{
		logger:    logger.Named("events"),
		config:    config,
		eventChan: make(chan Event, config.BufferSize),
		ctx:       ctx,
		cancel:    cancel,
	}
	for i := 0; i < config.Workers; i++ {
		b.wg.Add(1)
		go b.worker()
	}
	return b
}

func (b *Bus) worker() {
	defer b.wg.Done()
	for {
		select {
		case <-b.ctx.Done():
			return
		case event := <-b.eventChan:
			b.dispatch(event)
		}
	}
}

func (b *Bus) dispatch(event Event) {
	b.mu.RLock()
	subs := b.subs
	b.mu.RUnlock()

	for _, sub := range subs {
		if !sub.active.Load() {
			continue
		}
		if len(sub.types) > 0 && !sub.types[event.EventType()] {
			continue
		}
		b.invoke(sub, event)
	}
	b.processed.Add(1)
}

func (b *Bus) invoke(sub *subscription, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panic",
				zap.String("subscription", sub.id),
				zap.String("event_type", string(event.EventType())),
				zap.Any("panic", r))
		}
	}()
	sub.handler(event)
}

// Subscribe registers a handler for the given types. No types means all
// events. The returned cancel function removes the subscription.
func (b *Bus) Subscribe(handler Handler, eventTypes ...Type) (cancel func()) {
	sub := &subscription{
		id:      uuid.New().String(),
		types:   make(map[Type]bool, len(eventTypes)),
		handler: handler,
	}
	for _, t := range eventTypes {
		sub.types[t] = true
	}
	sub.active.Store(true)

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	return func() { sub.active.Store(false) }
}

// Publish enqueues an event without blocking. A full buffer drops the
// event and bumps the drop counter.
func (b *Bus) Publish(event Event) {
	select {
	case b.eventChan <- event:
		b.published.Add(1)
	default:
		b.dropped.Add(1)
		b.logger.Warn("event dropped, buffer full",
			zap.String("event_type", string(event.EventType())))
	}
}

// GetStats returns the current bus counters.
func (b *Bus) GetStats() Stats {
	b.mu.RLock()
	active := 0
	for _, sub := range b.subs {
		if sub.active.Load() {
			active++
		}
	}
	b.mu.RUnlock()
	return Stats{
		Published:   b.published.Load(),
		Processed:   b.processed.Load(),
		Dropped:     b.dropped.Load(),
		Subscribers: active,
	}
}

// Stop drains the workers and shuts the bus down.
func (b *Bus) Stop() {
	b.cancel()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		b.logger.Info("event bus stopped",
			zap.Int64("processed", b.processed.Load()),
			zap.Int64("dropped", b.dropped.Load()))
	case <-time.After(5 * time.Second):
		b.logger.Warn("event bus stop timed out")
	}
}
