package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/trogers1052/paper-trading-service/internal/models"
)

const strategyColumns = `id, user_id, name, description, config, is_active, last_run_at, created_at, updated_at`

// CreateStrategy inserts a new strategy.
func (db *DB) CreateStrategy(ctx context.Context, s *models.Strategy) error {
	config, err := json.Marshal(s.Config)
	if err != nil {
		return fmt.Errorf("failed to encode strategy config: %w", err)
	}
	query := `
		INSERT INTO strategies (user_id, name, description, config, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING id
	`
	now := time.Now()
	err = db.q.QueryRowContext(ctx, query,
		s.UserID, s.Name, s.Description, config, s.IsActive, now,
	).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("failed to create strategy: %w", err)
	}
	s.CreatedAt = now
	s.UpdatedAt = now
	return nil
}

// GetStrategy retrieves a strategy by ID.
func (db *DB) GetStrategy(ctx context.Context, id int) (*models.Strategy, error) {
	query := `SELECT ` + strategyColumns + ` FROM strategies WHERE id = $1`
	return scanStrategy(db.q.QueryRowContext(ctx, query, id))
}

// ListActiveStrategies retrieves every active strategy.
func (db *DB) ListActiveStrategies(ctx context.Context) ([]*models.Strategy, error) {
	query := `SELECT ` + strategyColumns + ` FROM strategies WHERE is_active ORDER BY id`
	return db.scanStrategies(db.q.QueryContext(ctx, query))
}

// ListStrategiesByUser retrieves all of a user's strategies.
func (db *DB) ListStrategiesByUser(ctx context.Context, userID int) ([]*models.Strategy, error) {
	query := `SELECT ` + strategyColumns + ` FROM strategies WHERE user_id = $1 ORDER BY id`
	return db.scanStrategies(db.q.QueryContext(ctx, query, userID))
}

// UpdateStrategy persists a strategy's configuration and activation state.
func (db *DB) UpdateStrategy(ctx context.Context, s *models.Strategy) error {
	config, err := json.Marshal(s.Config)
	if err != nil {
		return fmt.Errorf("failed to encode strategy config: %w", err)
	}
	query := `
		UPDATE strategies SET
			name = $2, description = $3, config = $4, is_active = $5, updated_at = $6
		WHERE id = $1
	`
	now := time.Now()
	result, err := db.q.ExecContext(ctx, query, s.ID, s.Name, s.Description, config, s.IsActive, now)
	if err != nil {
		return fmt.Errorf("failed to update strategy: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return models.ErrNotFound
	}
	s.UpdatedAt = now
	return nil
}

// UpdateStrategyLastRun records when a strategy last ran.
func (db *DB) UpdateStrategyLastRun(ctx context.Context, strategyID int, runAt time.Time) error {
	_, err := db.q.ExecContext(ctx,
		`UPDATE strategies SET last_run_at = $2 WHERE id = $1`, strategyID, runAt)
	if err != nil {
		return fmt.Errorf("failed to update strategy last run: %w", err)
	}
	return nil
}

// CreateRunLog appends a strategy run log entry.
func (db *DB) CreateRunLog(ctx context.Context, runLog *models.StrategyRunLog) error {
	query := `
		INSERT INTO strategy_run_logs (strategy_id, portfolio_id, run_at, context, generated_orders, status, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	orderIDs := make(pq.Int64Array, len(runLog.GeneratedOrders))
	for i, id := range runLog.GeneratedOrders {
		orderIDs[i] = int64(id)
	}
	err := db.q.QueryRowContext(ctx, query,
		runLog.StrategyID, runLog.PortfolioID, runLog.RunAt, runLog.Context,
		orderIDs, runLog.Status, nullString(runLog.ErrorMessage),
	).Scan(&runLog.ID)
	if err != nil {
		return fmt.Errorf("failed to create strategy run log: %w", err)
	}
	return nil
}

// ListRunLogs retrieves a strategy's most recent run logs.
func (db *DB) ListRunLogs(ctx context.Context, strategyID int, limit int) ([]*models.StrategyRunLog, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, strategy_id, portfolio_id, run_at, context, generated_orders, status, error_message
		FROM strategy_run_logs
		WHERE strategy_id = $1
		ORDER BY run_at DESC, id DESC LIMIT $2
	`
	rows, err := db.q.QueryContext(ctx, query, strategyID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query strategy run logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.StrategyRunLog
	for rows.Next() {
		var l models.StrategyRunLog
		var orderIDs pq.Int64Array
		var errorMessage sql.NullString
		err := rows.Scan(&l.ID, &l.StrategyID, &l.PortfolioID, &l.RunAt,
			&l.Context, &orderIDs, &l.Status, &errorMessage)
		if err != nil {
			return nil, fmt.Errorf("failed to scan strategy run log: %w", err)
		}
		l.GeneratedOrders = make([]int, len(orderIDs))
		for i, id := range orderIDs {
			l.GeneratedOrders[i] = int(id)
		}
		l.ErrorMessage = errorMessage.String
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}

func scanStrategy(row scanner) (*models.Strategy, error) {
	var s models.Strategy
	var description sql.NullString
	var config []byte
	var lastRunAt sql.NullTime

	err := row.Scan(&s.ID, &s.UserID, &s.Name, &description, &config,
		&s.IsActive, &lastRunAt, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan strategy: %w", err)
	}

	s.Description = description.String
	if lastRunAt.Valid {
		s.LastRunAt = &lastRunAt.Time
	}
	if len(config) > 0 {
		if err := json.Unmarshal(config, &s.Config); err != nil {
			return nil, fmt.Errorf("failed to decode strategy config: %w", err)
		}
	}
	return &s, nil
}

func (db *DB) scanStrategies(rows *sql.Rows, err error) ([]*models.Strategy, error) {
	if err != nil {
		return nil, fmt.Errorf("failed to query strategies: %w", err)
	}
	defer rows.Close()

	var strategies []*models.Strategy
	for rows.Next() {
		s, err := scanStrategy(rows)
		if err != nil {
			return nil, err
		}
		strategies = append(strategies, s)
	}
	return strategies, rows.Err()
}
