// Package broker abstracts order placement. The engine runs against the
// paper broker by default; a live adapter implements the same interface.
package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OrderSide is the direction of an order.
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// OrderStatus tracks an order through its lifecycle.
type OrderStatus string

const (
	StatusFilled   OrderStatus = "FILLED"
	StatusCanceled OrderStatus = "CANCELED"
	StatusRejected OrderStatus = "REJECTED"
)

// Quote is a top-of-book snapshot.
type Quote struct {
	Symbol    string    `json:"symbol"`
	Bid       float64   `json:"bid"`
	Ask       float64   `json:"ask"`
	Last      float64   `json:"last"`
	Timestamp time.Time `json:"timestamp"`
}

// Order is a submitted market order and its fill result.
type Order struct {
	ID        string      `json:"id"`
	Symbol    string      `json:"symbol"`
	Side      OrderSide   `json:"side"`
	Quantity  int64       `json:"quantity"`
	FillPrice float64     `json:"fillPrice"`
	Status    OrderStatus `json:"status"`
	CreatedAt time.Time   `json:"createdAt"`
}

// Broker places orders and serves quotes.
type Broker interface {
	Name() string
	GetQuote(ctx context.Context, symbol string) (*Quote, error)
	PlaceMarketOrder(ctx context.Context, symbol string, side OrderSide, quantity int64) (*Order, error)
	CancelOrder(ctx context.Context, orderID string) error
}

// PaperBroker fills every market order instantly at the last price pushed
// to it. Fill accounting (slippage, commission) is the ledger's job, so
// the paper fill is the raw quote.
type PaperBroker struct {
	logger *zap.Logger

	mu     sync.RWMutex
	quotes map[string]Quote
	orders map[string]*Order
	fills  decimal.Decimal
}

// NewPaperBroker creates a paper broker.
func NewPaperBroker(logger *zap.Logger) *PaperBroker {
	return &PaperBroker{
		logger: logger.Named("paper-broker"),
		quotes: make(map[string]Quote),
		orders: make(map[string]*Order),
	}
}

// Name implements Broker.
func (b *PaperBroker) Name() string { return "paper" }

// UpdateQuote pushes the latest market price for a symbol. The engine
// calls this each tick before placing orders.
func (b *PaperBroker) UpdateQuote(symbol string, last float64, ts time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	spread := last * 0.0001
	b.quotes[symbol] = Quote{
		Symbol:    symbol,
		Bid:       last - spread/2,
		Ask:       last + spread/2,
		Last:      last,
		Timestamp: ts,
	}
}

// GetQuote implements Broker.
func (b *PaperBroker) GetQuote(_ context.Context, symbol string) (*Quote, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	q, ok := b.quotes[symbol]
	if !ok {
		return nil, fmt.Errorf("no quote for %s", symbol)
	}
	return &q, nil
}

// PlaceMarketOrder implements Broker. Fills are immediate and complete.
func (b *PaperBroker) PlaceMarketOrder(_ context.Context, symbol string, side OrderSide, quantity int64) (*Order, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("order quantity must be positive, got %d", quantity)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.quotes[symbol]
	if !ok {
		return nil, fmt.Errorf("no quote for %s", symbol)
	}
	price := q.Ask
	if side == Sell {
		price = q.Bid
	}

	order := &Order{
		ID:        uuid.New().String(),
		Symbol:    symbol,
		Side:      side,
		Quantity:  quantity,
		FillPrice: price,
		Status:    StatusFilled,
		CreatedAt: time.Now(),
	}
	b.orders[order.ID] = order
	b.fills = b.fills.Add(decimal.NewFromFloat(price).Mul(decimal.NewFromInt(quantity)))

	b.logger.Debug("paper fill",
		zap.String("order_id", order.ID),
		zap.String("side", string(side)),
		zap.Int64("quantity", quantity),
		zap.Float64("price", price))
	return order, nil
}

// CancelOrder implements Broker. Paper fills are immediate, so only an
// unknown ID is an error.
func (b *PaperBroker) CancelOrder(_ context.Context, orderID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	order, ok := b.orders[orderID]
	if !ok {
		return fmt.Errorf("unknown order %s", orderID)
	}
	if order.Status == StatusFilled {
		return fmt.Errorf("order %s already filled", orderID)
	}
	order.Status = StatusCanceled
	return nil
}

// GetOrder returns a previously placed order.
func (b *PaperBroker) GetOrder(orderID string) (*Order, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	o, ok := b.orders[orderID]
	return o, ok
}

// TotalNotional reports the cumulative filled notional, for status
// reporting.
func (b *PaperBroker) TotalNotional() decimal.Decimal {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.fills
}
