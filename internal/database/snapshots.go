package database

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trogers1052/paper-trading-service/internal/models"
)

// CreateSnapshot records a portfolio's equity at a point in time. Snapshots
// are unique per (portfolio, timestamp); a duplicate timestamp overwrites.
func (db *DB) CreateSnapshot(ctx context.Context, s *models.PerformanceSnapshot) error {
	query := `
		INSERT INTO performance_snapshots (portfolio_id, ts, equity, cash, realized_pnl, unrealized_pnl, leverage)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (portfolio_id, ts) DO UPDATE SET
			equity = EXCLUDED.equity,
			cash = EXCLUDED.cash,
			realized_pnl = EXCLUDED.realized_pnl,
			unrealized_pnl = EXCLUDED.unrealized_pnl,
			leverage = EXCLUDED.leverage
		RETURNING id
	`
	err := db.q.QueryRowContext(ctx, query,
		s.PortfolioID, s.Timestamp, s.Equity, s.Cash,
		s.RealizedPnl, s.UnrealizedPnl, s.Leverage,
	).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("failed to create snapshot: %w", err)
	}
	return nil
}

// ListSnapshots retrieves a portfolio's snapshots within a time range,
// oldest first.
func (db *DB) ListSnapshots(ctx context.Context, portfolioID int, from, to time.Time) ([]*models.PerformanceSnapshot, error) {
	query := `
		SELECT id, portfolio_id, ts, equity, cash, realized_pnl, unrealized_pnl, leverage
		FROM performance_snapshots
		WHERE portfolio_id = $1 AND ts >= $2 AND ts <= $3
		ORDER BY ts
	`
	rows, err := db.q.QueryContext(ctx, query, portfolioID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []*models.PerformanceSnapshot
	for rows.Next() {
		var s models.PerformanceSnapshot
		err := rows.Scan(&s.ID, &s.PortfolioID, &s.Timestamp, &s.Equity,
			&s.Cash, &s.RealizedPnl, &s.UnrealizedPnl, &s.Leverage)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snapshots = append(snapshots, &s)
	}
	return snapshots, rows.Err()
}

// PerformanceSummary aggregates a portfolio's lifetime performance.
type PerformanceSummary struct {
	PortfolioID     int             `json:"portfolio_id"`
	StartingBalance decimal.Decimal `json:"starting_balance"`
	Equity          decimal.Decimal `json:"equity"`
	TotalReturnPct  decimal.Decimal `json:"total_return_pct"`
	RealizedPnl     decimal.Decimal `json:"realized_pnl"`
	UnrealizedPnl   decimal.Decimal `json:"unrealized_pnl"`
	TotalTrades     int             `json:"total_trades"`
	WinningTrades   int             `json:"winning_trades"`
	LosingTrades    int             `json:"losing_trades"`
	WinRate         decimal.Decimal `json:"win_rate"`
	TotalFees       decimal.Decimal `json:"total_fees"`
}

// GetPerformanceSummary computes a portfolio's summary from its current
// state and trade history.
func (db *DB) GetPerformanceSummary(ctx context.Context, portfolioID int) (*PerformanceSummary, error) {
	portfolio, err := db.GetPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT
			COUNT(*) as total_trades,
			COUNT(*) FILTER (WHERE side = 'sell' AND realized_pnl > 0) as winning_trades,
			COUNT(*) FILTER (WHERE side = 'sell' AND realized_pnl < 0) as losing_trades,
			COALESCE(SUM(fees), 0) as total_fees
		FROM trades
		WHERE portfolio_id = $1
	`
	summary := &PerformanceSummary{
		PortfolioID:     portfolio.ID,
		StartingBalance: portfolio.StartingBalance,
		Equity:          portfolio.Equity,
		RealizedPnl:     portfolio.RealizedPnl,
		UnrealizedPnl:   portfolio.UnrealizedPnl,
	}
	err = db.q.QueryRowContext(ctx, query, portfolioID).Scan(
		&summary.TotalTrades, &summary.WinningTrades, &summary.LosingTrades, &summary.TotalFees,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get trade summary: %w", err)
	}

	if portfolio.StartingBalance.IsPositive() {
		summary.TotalReturnPct = portfolio.Equity.Sub(portfolio.StartingBalance).
			Div(portfolio.StartingBalance).
			Mul(decimal.NewFromInt(100))
	}
	closed := summary.WinningTrades + summary.LosingTrades
	if closed > 0 {
		summary.WinRate = decimal.NewFromInt(int64(summary.WinningTrades)).
			Div(decimal.NewFromInt(int64(closed))).
			Mul(decimal.NewFromInt(100))
	}
	return summary, nil
}
