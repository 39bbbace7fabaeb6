package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is an immutable fill record, created exactly once per fill
// application. RealizedPnl is nonzero only for closing or reducing fills.
type Trade struct {
	ID          int             `json:"id"`
	OrderID     int             `json:"order_id"`
	PortfolioID int             `json:"portfolio_id"`
	Symbol      string          `json:"symbol"`
	Side        string          `json:"side"`
	Quantity    decimal.Decimal `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Fees        decimal.Decimal `json:"fees"`
	Slippage    decimal.Decimal `json:"slippage"`
	RealizedPnl decimal.Decimal `json:"realized_pnl"`
	StrategyID  *int            `json:"strategy_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}
