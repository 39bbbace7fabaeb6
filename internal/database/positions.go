package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/trogers1052/paper-trading-service/internal/models"
)

const positionColumns = `id, portfolio_id, symbol, quantity, avg_price, market_value, unrealized_pnl, last_updated`

// GetPositionBySymbol retrieves a portfolio's position in one symbol.
func (db *DB) GetPositionBySymbol(ctx context.Context, portfolioID int, symbol string) (*models.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions WHERE portfolio_id = $1 AND symbol = $2`
	var p models.Position
	err := db.q.QueryRowContext(ctx, query, portfolioID, symbol).Scan(
		&p.ID, &p.PortfolioID, &p.Symbol, &p.Quantity, &p.AvgPrice,
		&p.MarketValue, &p.UnrealizedPnl, &p.LastUpdated,
	)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get position: %w", err)
	}
	return &p, nil
}

// ListPositions retrieves every position in a portfolio.
func (db *DB) ListPositions(ctx context.Context, portfolioID int) ([]*models.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions WHERE portfolio_id = $1 ORDER BY symbol`
	rows, err := db.q.QueryContext(ctx, query, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var positions []*models.Position
	for rows.Next() {
		var p models.Position
		err := rows.Scan(
			&p.ID, &p.PortfolioID, &p.Symbol, &p.Quantity, &p.AvgPrice,
			&p.MarketValue, &p.UnrealizedPnl, &p.LastUpdated,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, &p)
	}
	return positions, rows.Err()
}

// UpsertPosition inserts or updates a position keyed on (portfolio, symbol).
func (db *DB) UpsertPosition(ctx context.Context, p *models.Position) error {
	query := `
		INSERT INTO positions (portfolio_id, symbol, quantity, avg_price, market_value, unrealized_pnl, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (portfolio_id, symbol) DO UPDATE SET
			quantity = EXCLUDED.quantity,
			avg_price = EXCLUDED.avg_price,
			market_value = EXCLUDED.market_value,
			unrealized_pnl = EXCLUDED.unrealized_pnl,
			last_updated = EXCLUDED.last_updated
		RETURNING id
	`
	if p.LastUpdated.IsZero() {
		p.LastUpdated = time.Now()
	}
	err := db.q.QueryRowContext(ctx, query,
		p.PortfolioID, p.Symbol, p.Quantity, p.AvgPrice,
		p.MarketValue, p.UnrealizedPnl, p.LastUpdated,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert position: %w", err)
	}
	return nil
}

// DeletePosition removes a position by ID.
func (db *DB) DeletePosition(ctx context.Context, id int) error {
	result, err := db.q.ExecContext(ctx, `DELETE FROM positions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete position: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return models.ErrNotFound
	}
	return nil
}
