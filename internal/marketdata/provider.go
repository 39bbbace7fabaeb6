// Package marketdata defines the quote/history provider consumed by the
// execution engine and strategy runner, plus the concrete HTTP and cached
// implementations.
package marketdata

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Quote is a point-in-time snapshot of a symbol. Optional fields are nil
// when the upstream source does not supply them.
type Quote struct {
	Symbol    string           `json:"symbol"`
	Price     decimal.Decimal  `json:"price"`
	Bid       *decimal.Decimal `json:"bid,omitempty"`
	Ask       *decimal.Decimal `json:"ask,omitempty"`
	Open      *decimal.Decimal `json:"open,omitempty"`
	High      *decimal.Decimal `json:"high,omitempty"`
	Low       *decimal.Decimal `json:"low,omitempty"`
	Close     *decimal.Decimal `json:"close,omitempty"`
	Volume    *decimal.Decimal `json:"volume,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// Bar is one OHLCV history bar.
type Bar struct {
	Timestamp time.Time       `json:"timestamp"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
}

// Provider supplies current quotes and historical bars. Failures surface as
// errors; callers treat them as "data unavailable" and skip or fail open.
type Provider interface {
	GetQuote(ctx context.Context, symbol string) (*Quote, error)
	GetHistory(ctx context.Context, symbol, period, interval string) ([]Bar, error)
}
