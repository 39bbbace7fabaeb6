package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trogers1052/paper-trading-service/internal/models"
)

const orderColumns = `id, portfolio_id, strategy_id, bot_id, client_order_id, symbol, side,
       order_type, tif, tif_date, quantity, notional, limit_price, stop_price,
       trail_amount, trail_percent, trail_ref, reserve_quantity, pegged_offset,
       extended_hours, condition, parent_id, chain_id, child_role, algo_params,
       algo_next_run_at, algo_slice_index, status, filled_quantity,
       average_fill_price, events, created_at, expires_at`

// CreateOrder inserts a new order and backfills its generated ID.
func (db *DB) CreateOrder(ctx context.Context, o *models.Order) error {
	condition, err := jsonArg(o.Condition)
	if err != nil {
		return fmt.Errorf("failed to encode order condition: %w", err)
	}
	algoParams, err := jsonArg(o.AlgoParams)
	if err != nil {
		return fmt.Errorf("failed to encode algo params: %w", err)
	}
	events, err := jsonArg(o.Events)
	if err != nil {
		return fmt.Errorf("failed to encode order events: %w", err)
	}

	query := `
		INSERT INTO orders (
			portfolio_id, strategy_id, bot_id, client_order_id, symbol, side,
			order_type, tif, tif_date, quantity, notional, limit_price, stop_price,
			trail_amount, trail_percent, trail_ref, reserve_quantity, pegged_offset,
			extended_hours, condition, parent_id, chain_id, child_role, algo_params,
			algo_next_run_at, algo_slice_index, status, filled_quantity,
			average_fill_price, events, created_at, expires_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31, $32
		)
		RETURNING id
	`
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}
	err = db.q.QueryRowContext(ctx, query,
		o.PortfolioID, o.StrategyID, o.BotID, nullString(o.ClientOrderID), o.Symbol, o.Side,
		o.OrderType, o.TIF, o.TIFDate, decArg(o.Quantity), decArg(o.Notional),
		decArg(o.LimitPrice), decArg(o.StopPrice), decArg(o.TrailAmount),
		decArg(o.TrailPercent), decArg(o.TrailRef), decArg(o.ReserveQuantity),
		decArg(o.PeggedOffset), o.ExtendedHours, condition, o.ParentID,
		nullString(o.ChainID), nullString(o.ChildRole), algoParams,
		o.AlgoNextRunAt, o.AlgoSliceIndex, o.Status, o.FilledQuantity,
		decArg(o.AverageFillPrice), events, o.CreatedAt, o.ExpiresAt,
	).Scan(&o.ID)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

// UpdateOrder persists an order's mutable execution state.
func (db *DB) UpdateOrder(ctx context.Context, o *models.Order) error {
	condition, err := jsonArg(o.Condition)
	if err != nil {
		return fmt.Errorf("failed to encode order condition: %w", err)
	}
	algoParams, err := jsonArg(o.AlgoParams)
	if err != nil {
		return fmt.Errorf("failed to encode algo params: %w", err)
	}
	events, err := jsonArg(o.Events)
	if err != nil {
		return fmt.Errorf("failed to encode order events: %w", err)
	}

	query := `
		UPDATE orders SET
			tif = $2, tif_date = $3, quantity = $4, notional = $5, limit_price = $6,
			stop_price = $7, trail_amount = $8, trail_percent = $9, trail_ref = $10,
			reserve_quantity = $11, pegged_offset = $12, condition = $13,
			chain_id = $14, algo_params = $15, algo_next_run_at = $16,
			algo_slice_index = $17, status = $18, filled_quantity = $19,
			average_fill_price = $20, events = $21, expires_at = $22
		WHERE id = $1
	`
	result, err := db.q.ExecContext(ctx, query,
		o.ID, o.TIF, o.TIFDate, decArg(o.Quantity), decArg(o.Notional),
		decArg(o.LimitPrice), decArg(o.StopPrice), decArg(o.TrailAmount),
		decArg(o.TrailPercent), decArg(o.TrailRef), decArg(o.ReserveQuantity),
		decArg(o.PeggedOffset), condition, nullString(o.ChainID), algoParams,
		o.AlgoNextRunAt, o.AlgoSliceIndex, o.Status, o.FilledQuantity,
		decArg(o.AverageFillPrice), events, o.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return models.ErrNotFound
	}
	return nil
}

// GetOrder retrieves an order by ID.
func (db *DB) GetOrder(ctx context.Context, id int) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	return scanOrder(db.q.QueryRowContext(ctx, query, id))
}

// GetOrderByClientOrderID retrieves an order by its caller-assigned ID, used
// for idempotent ingestion from the event bus.
func (db *DB) GetOrderByClientOrderID(ctx context.Context, clientOrderID string) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE client_order_id = $1`
	return scanOrder(db.q.QueryRowContext(ctx, query, clientOrderID))
}

// ListOpenOrders retrieves a portfolio's fillable orders, oldest first.
func (db *DB) ListOpenOrders(ctx context.Context, portfolioID int) ([]*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders
		WHERE portfolio_id = $1 AND status IN ($2, $3, $4)
		ORDER BY created_at, id`
	return db.scanOrders(db.q.QueryContext(ctx, query, portfolioID,
		models.OrderStatusNew, models.OrderStatusWorking, models.OrderStatusPartFilled))
}

// ListDueAlgoOrders retrieves open algo orders whose next slice is due at or
// before now. An order that has never run (null next run) is due.
func (db *DB) ListDueAlgoOrders(ctx context.Context, portfolioID int, now time.Time) ([]*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders
		WHERE portfolio_id = $1 AND status IN ($2, $3, $4)
		  AND order_type IN ($5, $6, $7)
		  AND (algo_next_run_at IS NULL OR algo_next_run_at <= $8)
		ORDER BY created_at, id`
	return db.scanOrders(db.q.QueryContext(ctx, query, portfolioID,
		models.OrderStatusNew, models.OrderStatusWorking, models.OrderStatusPartFilled,
		models.OrderTypeAlgoTWAP, models.OrderTypeAlgoVWAP, models.OrderTypeAlgoPOV, now))
}

// ListChildOrders retrieves the direct children of a parent order.
func (db *DB) ListChildOrders(ctx context.Context, parentID int) ([]*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE parent_id = $1 ORDER BY id`
	return db.scanOrders(db.q.QueryContext(ctx, query, parentID))
}

// ListOrdersByPortfolio retrieves a portfolio's orders, newest first, with an
// optional status filter.
func (db *DB) ListOrdersByPortfolio(ctx context.Context, portfolioID int, status string, limit int) ([]*models.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	if status != "" {
		query := `SELECT ` + orderColumns + ` FROM orders
			WHERE portfolio_id = $1 AND status = $2
			ORDER BY created_at DESC, id DESC LIMIT $3`
		return db.scanOrders(db.q.QueryContext(ctx, query, portfolioID, status, limit))
	}
	query := `SELECT ` + orderColumns + ` FROM orders
		WHERE portfolio_id = $1
		ORDER BY created_at DESC, id DESC LIMIT $2`
	return db.scanOrders(db.q.QueryContext(ctx, query, portfolioID, limit))
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row scanner) (*models.Order, error) {
	var o models.Order
	var strategyID, botID, parentID sql.NullInt64
	var clientOrderID, chainID, childRole sql.NullString
	var tifDate, algoNextRunAt, expiresAt sql.NullTime
	var quantity, notional, limitPrice, stopPrice sql.NullString
	var trailAmount, trailPercent, trailRef sql.NullString
	var reserveQuantity, peggedOffset, averageFillPrice sql.NullString
	var condition, algoParams, events []byte

	err := row.Scan(
		&o.ID, &o.PortfolioID, &strategyID, &botID, &clientOrderID, &o.Symbol, &o.Side,
		&o.OrderType, &o.TIF, &tifDate, &quantity, &notional, &limitPrice, &stopPrice,
		&trailAmount, &trailPercent, &trailRef, &reserveQuantity, &peggedOffset,
		&o.ExtendedHours, &condition, &parentID, &chainID, &childRole, &algoParams,
		&algoNextRunAt, &o.AlgoSliceIndex, &o.Status, &o.FilledQuantity,
		&averageFillPrice, &events, &o.CreatedAt, &expiresAt,
	)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan order: %w", err)
	}

	if strategyID.Valid {
		id := int(strategyID.Int64)
		o.StrategyID = &id
	}
	if botID.Valid {
		id := int(botID.Int64)
		o.BotID = &id
	}
	if parentID.Valid {
		id := int(parentID.Int64)
		o.ParentID = &id
	}
	o.ClientOrderID = clientOrderID.String
	o.ChainID = chainID.String
	o.ChildRole = childRole.String
	if tifDate.Valid {
		o.TIFDate = &tifDate.Time
	}
	if algoNextRunAt.Valid {
		o.AlgoNextRunAt = &algoNextRunAt.Time
	}
	if expiresAt.Valid {
		o.ExpiresAt = &expiresAt.Time
	}
	o.Quantity = decFromNull(quantity)
	o.Notional = decFromNull(notional)
	o.LimitPrice = decFromNull(limitPrice)
	o.StopPrice = decFromNull(stopPrice)
	o.TrailAmount = decFromNull(trailAmount)
	o.TrailPercent = decFromNull(trailPercent)
	o.TrailRef = decFromNull(trailRef)
	o.ReserveQuantity = decFromNull(reserveQuantity)
	o.PeggedOffset = decFromNull(peggedOffset)
	o.AverageFillPrice = decFromNull(averageFillPrice)

	if len(condition) > 0 {
		var c models.Condition
		if err := json.Unmarshal(condition, &c); err != nil {
			return nil, fmt.Errorf("failed to decode order condition: %w", err)
		}
		o.Condition = &c
	}
	if len(algoParams) > 0 {
		var a models.AlgoParams
		if err := json.Unmarshal(algoParams, &a); err != nil {
			return nil, fmt.Errorf("failed to decode algo params: %w", err)
		}
		o.AlgoParams = &a
	}
	if len(events) > 0 {
		if err := json.Unmarshal(events, &o.Events); err != nil {
			return nil, fmt.Errorf("failed to decode order events: %w", err)
		}
	}
	return &o, nil
}

func (db *DB) scanOrders(rows *sql.Rows, err error) ([]*models.Order, error) {
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// decArg converts an optional decimal to a SQL argument, nil for NULL.
func decArg(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return *d
}

// nullString converts an empty string to NULL.
func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// jsonArg marshals a value for a jsonb column, nil for NULL.
func jsonArg(v interface{}) (interface{}, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case *models.Condition:
		if val == nil {
			return nil, nil
		}
	case *models.AlgoParams:
		if val == nil {
			return nil, nil
		}
	case []models.OrderEvent:
		if len(val) == 0 {
			return nil, nil
		}
	}
	return json.Marshal(v)
}

func decFromNull(s sql.NullString) *decimal.Decimal {
	if !s.Valid {
		return nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return nil
	}
	return &d
}
