package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Sign: +1 для BUY, -1 для SELL.
func (s Side) Sign() decimal.Decimal {
	if s == SideSell {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromInt(1)
}

func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderIntent: намерение от роутера, одноразовое: после Submit живёт уже Order.
type OrderIntent struct {
	InstrumentID string          `json:"instrument_id"`
	Side         Side            `json:"side"`
	Quantity     decimal.Decimal `json:"quantity"`
	Price        decimal.Decimal `json:"price"`  // референсная цена (лимит, если Market=false)
	Market       bool            `json:"market"` // true: рыночный ордер
	SignalID     string          `json:"signal_id"`
	StrategyID   string          `json:"strategy_id"`
	SnapshotTS   time.Time       `json:"snapshot_ts"`
}

type OrderStatus int

const (
	OrderCreated OrderStatus = iota
	OrderSubmitted
	OrderAcknowledged
	OrderPartiallyFilled
	OrderFilled
	OrderRejected
	OrderCancelled
)

func (s OrderStatus) String() string {
	switch s {
	case OrderCreated:
		return "CREATED"
	case OrderSubmitted:
		return "SUBMITTED"
	case OrderAcknowledged:
		return "ACKNOWLEDGED"
	case OrderPartiallyFilled:
		return "PARTIALLY_FILLED"
	case OrderFilled:
		return "FILLED"
	case OrderRejected:
		return "REJECTED"
	case OrderCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

func (s OrderStatus) Terminal() bool {
	return s == OrderFilled || s == OrderRejected || s == OrderCancelled
}

// CanTransition: таблица переходов; терминальные статусы не переоткрываются.
func (s OrderStatus) CanTransition(to OrderStatus) bool {
	if s.Terminal() {
		return false
	}
	switch s {
	case OrderCreated:
		return to == OrderSubmitted || to == OrderCancelled
	case OrderSubmitted:
		return to == OrderAcknowledged || to == OrderRejected || to == OrderCancelled
	case OrderAcknowledged:
		return to == OrderPartiallyFilled || to == OrderFilled || to == OrderCancelled
	case OrderPartiallyFilled:
		return to == OrderPartiallyFilled || to == OrderFilled || to == OrderCancelled
	}
	return false
}

type RejectReason string

const (
	RejectNone             RejectReason = ""
	RejectTimeout          RejectReason = "timeout"
	RejectTransportFailure RejectReason = "transport_failure"
	RejectByExchange       RejectReason = "rejected_by_exchange"
)

// Order принадлежит execution engine; ledger видит его только на чтение.
type Order struct {
	ClientID     string          `json:"client_id"`
	OrderID      string          `json:"order_id"` // id биржи, пусто до ack
	InstrumentID string          `json:"instrument_id"`
	Side         Side            `json:"side"`
	RequestedQty decimal.Decimal `json:"requested_qty"`
	FilledQty    decimal.Decimal `json:"filled_qty"`
	Price        decimal.Decimal `json:"price"`
	Market       bool            `json:"market"`
	Status       OrderStatus     `json:"status"`
	Reason       RejectReason    `json:"reason,omitempty"`
	SignalID     string          `json:"signal_id"`
	StrategyID   string          `json:"strategy_id"`
	SnapshotTS   time.Time       `json:"snapshot_ts"`
	SubmittedAt  time.Time       `json:"submitted_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func (o Order) Remaining() decimal.Decimal {
	return o.RequestedQty.Sub(o.FilledQty)
}

// Fill: подтверждение исполнения части ордера.
type Fill struct {
	FillID       string          `json:"fill_id"`
	OrderID      string          `json:"order_id"`
	ClientID     string          `json:"client_id"`
	InstrumentID string          `json:"instrument_id"`
	Side         Side            `json:"side"`
	Quantity     decimal.Decimal `json:"quantity"`
	Price        decimal.Decimal `json:"price"`
	Timestamp    time.Time       `json:"timestamp"`
}

// SignedQty: +qty для BUY, -qty для SELL.
func (f Fill) SignedQty() decimal.Decimal {
	return f.Quantity.Mul(f.Side.Sign())
}

// Ack: асинхронное подтверждение от биржи.
type Ack struct {
	ClientID string
	OrderID  string
	At       time.Time
}
