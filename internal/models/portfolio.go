package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned by repositories when a row does not exist.
var ErrNotFound = errors.New("not found")

// Portfolio status constants
const (
	PortfolioStatusActive   = "active"
	PortfolioStatusArchived = "archived"
)

// Portfolio represents a synthetic trading account. Equity always equals
// cash balance plus the market value of all open positions after a completed
// fill application.
type Portfolio struct {
	ID              int             `json:"id"`
	UserID          int             `json:"user_id"`
	Name            string          `json:"name"`
	BaseCurrency    string          `json:"base_currency"`
	StartingBalance decimal.Decimal `json:"starting_balance"`
	CashBalance     decimal.Decimal `json:"cash_balance"`
	Equity          decimal.Decimal `json:"equity"`
	RealizedPnl     decimal.Decimal `json:"realized_pnl"`
	UnrealizedPnl   decimal.Decimal `json:"unrealized_pnl"`
	MaxPositions    int             `json:"max_positions,omitempty"`
	MaxPositionPct  decimal.Decimal `json:"max_position_pct,omitempty"`
	MaxExposurePct  decimal.Decimal `json:"max_exposure_pct,omitempty"`
	Status          string          `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
}

// PortfolioResetLog records a portfolio reset for audit purposes.
type PortfolioResetLog struct {
	ID             int             `json:"id"`
	PortfolioID    int             `json:"portfolio_id"`
	ResetTo        decimal.Decimal `json:"reset_to"`
	PreviousCash   decimal.Decimal `json:"previous_cash"`
	PreviousEquity decimal.Decimal `json:"previous_equity"`
	Reason         string          `json:"reason,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}
