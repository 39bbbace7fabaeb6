package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position represents a holding within a portfolio, unique per
// (portfolio, symbol). Quantity is signed; positive means long.
type Position struct {
	ID            int             `json:"id"`
	PortfolioID   int             `json:"portfolio_id"`
	Symbol        string          `json:"symbol"`
	Quantity      decimal.Decimal `json:"quantity"`
	AvgPrice      decimal.Decimal `json:"avg_price"`
	MarketValue   decimal.Decimal `json:"market_value"`
	UnrealizedPnl decimal.Decimal `json:"unrealized_pnl"`
	LastUpdated   time.Time       `json:"last_updated"`
}
