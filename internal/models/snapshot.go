package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PerformanceSnapshot is a periodic capture of a portfolio's equity and P&L,
// unique per (portfolio, timestamp).
type PerformanceSnapshot struct {
	ID            int             `json:"id"`
	PortfolioID   int             `json:"portfolio_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Equity        decimal.Decimal `json:"equity"`
	Cash          decimal.Decimal `json:"cash"`
	RealizedPnl   decimal.Decimal `json:"realized_pnl"`
	UnrealizedPnl decimal.Decimal `json:"unrealized_pnl"`
	Leverage      decimal.Decimal `json:"leverage"`
}

// StockScore is the latest output of the external scoring subsystem for a
// symbol. The indicator service's "scorer" source reads these rows.
type StockScore struct {
	ID               int             `json:"id"`
	Symbol           string          `json:"symbol"`
	FinalScore       decimal.Decimal `json:"final_score"`
	TechScore        decimal.Decimal `json:"tech_score"`
	FundamentalScore decimal.Decimal `json:"fundamental_score"`
	Components       []byte          `json:"components,omitempty"`
	AsOf             time.Time       `json:"asof"`
}
