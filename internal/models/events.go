package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kafka event type constants
const (
	EventTypeOrderRequested = "ORDER_REQUESTED"
	EventTypeOrderAccepted  = "ORDER_ACCEPTED"
	EventTypeOrderRejected  = "ORDER_REJECTED"
	EventTypeOrderFilled    = "ORDER_FILLED"
	EventTypeOrderCanceled  = "ORDER_CANCELED"
	EventTypeOrderExpired   = "ORDER_EXPIRED"
	EventTypeTradeExecuted  = "TRADE_EXECUTED"
)

// OrderEventMessage is published whenever an order changes state.
type OrderEventMessage struct {
	EventType string    `json:"event_type"`
	Symbol    string    `json:"symbol"`
	Order     *Order    `json:"order,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// TradeEventMessage is published for every executed fill.
type TradeEventMessage struct {
	EventType string    `json:"event_type"`
	Symbol    string    `json:"symbol"`
	Trade     *Trade    `json:"trade,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderRequest is the payload of an ORDER_REQUESTED message consumed from
// Kafka. ClientOrderID makes ingestion idempotent.
type OrderRequest struct {
	ClientOrderID   string           `json:"client_order_id"`
	PortfolioID     int              `json:"portfolio_id"`
	Symbol          string           `json:"symbol"`
	Side            string           `json:"side"`
	OrderType       string           `json:"order_type"`
	TIF             string           `json:"tif,omitempty"`
	Quantity        *decimal.Decimal `json:"quantity,omitempty"`
	Notional        *decimal.Decimal `json:"notional,omitempty"`
	LimitPrice      *decimal.Decimal `json:"limit_price,omitempty"`
	StopPrice       *decimal.Decimal `json:"stop_price,omitempty"`
	TrailAmount     *decimal.Decimal `json:"trail_amount,omitempty"`
	TrailPercent    *decimal.Decimal `json:"trail_percent,omitempty"`
	ReserveQuantity *decimal.Decimal `json:"reserve_quantity,omitempty"`
	ExtendedHours   bool             `json:"extended_hours,omitempty"`
	Condition       *Condition       `json:"condition,omitempty"`
}

// OrderRequestEvent is the envelope for ORDER_REQUESTED messages.
type OrderRequestEvent struct {
	EventType string       `json:"event_type"`
	Source    string       `json:"source,omitempty"`
	Data      OrderRequest `json:"data"`
	Timestamp time.Time    `json:"timestamp"`
}
