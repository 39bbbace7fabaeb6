package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/trogers1052/paper-trading-service/internal/models"
)

const tradeColumns = `id, order_id, portfolio_id, symbol, side, quantity, price, fees,
       slippage, realized_pnl, strategy_id, created_at`

// CreateTrade inserts an immutable fill record.
func (db *DB) CreateTrade(ctx context.Context, t *models.Trade) error {
	query := `
		INSERT INTO trades (
			order_id, portfolio_id, symbol, side, quantity, price, fees,
			slippage, realized_pnl, strategy_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	err := db.q.QueryRowContext(ctx, query,
		t.OrderID, t.PortfolioID, t.Symbol, t.Side, t.Quantity, t.Price,
		t.Fees, t.Slippage, t.RealizedPnl, t.StrategyID, t.CreatedAt,
	).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("failed to create trade: %w", err)
	}
	return nil
}

// ListTradesByPortfolio retrieves a portfolio's trades, newest first.
func (db *DB) ListTradesByPortfolio(ctx context.Context, portfolioID int, limit int) ([]*models.Trade, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + tradeColumns + ` FROM trades
		WHERE portfolio_id = $1
		ORDER BY created_at DESC, id DESC LIMIT $2`
	rows, err := db.q.QueryContext(ctx, query, portfolioID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []*models.Trade
	for rows.Next() {
		var t models.Trade
		var strategyID sql.NullInt64
		err := rows.Scan(
			&t.ID, &t.OrderID, &t.PortfolioID, &t.Symbol, &t.Side,
			&t.Quantity, &t.Price, &t.Fees, &t.Slippage, &t.RealizedPnl,
			&strategyID, &t.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		if strategyID.Valid {
			id := int(strategyID.Int64)
			t.StrategyID = &id
		}
		trades = append(trades, &t)
	}
	return trades, rows.Err()
}
