package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trogers1052/paper-trading-service/internal/engine"
	"github.com/trogers1052/paper-trading-service/internal/models"
)

// DefaultStartingBalance seeds new portfolios that do not specify one.
var DefaultStartingBalance = decimal.NewFromInt(100000)

const portfolioColumns = `id, user_id, name, base_currency, starting_balance, cash_balance,
       equity, realized_pnl, unrealized_pnl, max_positions, max_position_pct,
       max_exposure_pct, status, created_at`

// CreatePortfolio inserts a new portfolio. A zero starting balance defaults
// to DefaultStartingBalance, with cash and equity seeded to match.
func (db *DB) CreatePortfolio(ctx context.Context, p *models.Portfolio) error {
	if p.StartingBalance.IsZero() {
		p.StartingBalance = DefaultStartingBalance
	}
	if p.CashBalance.IsZero() {
		p.CashBalance = p.StartingBalance
	}
	if p.Equity.IsZero() {
		p.Equity = p.CashBalance
	}
	if p.BaseCurrency == "" {
		p.BaseCurrency = "USD"
	}
	if p.Status == "" {
		p.Status = models.PortfolioStatusActive
	}

	query := `
		INSERT INTO portfolios (
			user_id, name, base_currency, starting_balance, cash_balance,
			equity, realized_pnl, unrealized_pnl, max_positions,
			max_position_pct, max_exposure_pct, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id
	`
	now := time.Now()
	err := db.q.QueryRowContext(ctx, query,
		p.UserID, p.Name, p.BaseCurrency, p.StartingBalance, p.CashBalance,
		p.Equity, p.RealizedPnl, p.UnrealizedPnl, p.MaxPositions,
		p.MaxPositionPct, p.MaxExposurePct, p.Status, now,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("failed to create portfolio: %w", err)
	}
	p.CreatedAt = now
	return nil
}

// GetPortfolio retrieves a portfolio by ID.
func (db *DB) GetPortfolio(ctx context.Context, id int) (*models.Portfolio, error) {
	query := `SELECT ` + portfolioColumns + ` FROM portfolios WHERE id = $1`
	return db.scanPortfolio(db.q.QueryRowContext(ctx, query, id))
}

// ListActivePortfolios retrieves every active portfolio.
func (db *DB) ListActivePortfolios(ctx context.Context) ([]*models.Portfolio, error) {
	query := `SELECT ` + portfolioColumns + ` FROM portfolios WHERE status = $1 ORDER BY id`
	return db.scanPortfolios(db.q.QueryContext(ctx, query, models.PortfolioStatusActive))
}

// ListActivePortfoliosByUser retrieves a user's active portfolios.
func (db *DB) ListActivePortfoliosByUser(ctx context.Context, userID int) ([]*models.Portfolio, error) {
	query := `SELECT ` + portfolioColumns + ` FROM portfolios WHERE user_id = $1 AND status = $2 ORDER BY id`
	return db.scanPortfolios(db.q.QueryContext(ctx, query, userID, models.PortfolioStatusActive))
}

// ListPortfoliosByUser retrieves all of a user's portfolios regardless of
// status.
func (db *DB) ListPortfoliosByUser(ctx context.Context, userID int) ([]*models.Portfolio, error) {
	query := `SELECT ` + portfolioColumns + ` FROM portfolios WHERE user_id = $1 ORDER BY id`
	return db.scanPortfolios(db.q.QueryContext(ctx, query, userID))
}

// UpdatePortfolio persists the portfolio's mutable fields.
func (db *DB) UpdatePortfolio(ctx context.Context, p *models.Portfolio) error {
	query := `
		UPDATE portfolios SET
			name = $2, cash_balance = $3, equity = $4, realized_pnl = $5,
			unrealized_pnl = $6, max_positions = $7, max_position_pct = $8,
			max_exposure_pct = $9, status = $10
		WHERE id = $1
	`
	result, err := db.q.ExecContext(ctx, query,
		p.ID, p.Name, p.CashBalance, p.Equity, p.RealizedPnl,
		p.UnrealizedPnl, p.MaxPositions, p.MaxPositionPct,
		p.MaxExposurePct, p.Status,
	)
	if err != nil {
		return fmt.Errorf("failed to update portfolio: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ResetPortfolio wipes a portfolio back to a fresh balance: open orders are
// canceled, positions deleted, cash restored, and the reset logged, all in
// one transaction.
func (db *DB) ResetPortfolio(ctx context.Context, portfolioID int, resetTo decimal.Decimal, reason string) (*models.Portfolio, error) {
	var out *models.Portfolio
	err := db.InTx(ctx, func(tx engine.Store) error {
		txDB := tx.(*DB)

		p, err := txDB.GetPortfolio(ctx, portfolioID)
		if err != nil {
			return err
		}
		if resetTo.IsZero() {
			resetTo = p.StartingBalance
		}

		logQuery := `
			INSERT INTO portfolio_reset_logs (portfolio_id, reset_to, previous_cash, previous_equity, reason, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`
		if _, err := txDB.q.ExecContext(ctx, logQuery,
			p.ID, resetTo, p.CashBalance, p.Equity, reason, time.Now()); err != nil {
			return fmt.Errorf("failed to log portfolio reset: %w", err)
		}

		cancelQuery := `
			UPDATE orders SET status = $1
			WHERE portfolio_id = $2 AND status IN ($3, $4, $5)
		`
		if _, err := txDB.q.ExecContext(ctx, cancelQuery,
			models.OrderStatusCanceled, p.ID,
			models.OrderStatusNew, models.OrderStatusWorking, models.OrderStatusPartFilled); err != nil {
			return fmt.Errorf("failed to cancel open orders: %w", err)
		}

		if _, err := txDB.q.ExecContext(ctx, `DELETE FROM positions WHERE portfolio_id = $1`, p.ID); err != nil {
			return fmt.Errorf("failed to delete positions: %w", err)
		}

		p.StartingBalance = resetTo
		p.CashBalance = resetTo
		p.Equity = resetTo
		p.RealizedPnl = decimal.Zero
		p.UnrealizedPnl = decimal.Zero
		if err := txDB.UpdatePortfolio(ctx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (db *DB) scanPortfolio(row *sql.Row) (*models.Portfolio, error) {
	var p models.Portfolio
	err := row.Scan(
		&p.ID, &p.UserID, &p.Name, &p.BaseCurrency, &p.StartingBalance,
		&p.CashBalance, &p.Equity, &p.RealizedPnl, &p.UnrealizedPnl,
		&p.MaxPositions, &p.MaxPositionPct, &p.MaxExposurePct,
		&p.Status, &p.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get portfolio: %w", err)
	}
	return &p, nil
}

func (db *DB) scanPortfolios(rows *sql.Rows, err error) ([]*models.Portfolio, error) {
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolios: %w", err)
	}
	defer rows.Close()

	var portfolios []*models.Portfolio
	for rows.Next() {
		var p models.Portfolio
		err := rows.Scan(
			&p.ID, &p.UserID, &p.Name, &p.BaseCurrency, &p.StartingBalance,
			&p.CashBalance, &p.Equity, &p.RealizedPnl, &p.UnrealizedPnl,
			&p.MaxPositions, &p.MaxPositionPct, &p.MaxExposurePct,
			&p.Status, &p.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan portfolio: %w", err)
		}
		portfolios = append(portfolios, &p)
	}
	return portfolios, rows.Err()
}
