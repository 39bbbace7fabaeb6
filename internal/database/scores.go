package database

import (
	"database/sql"
	"fmt"

	"github.com/trogers1052/paper-trading-service/internal/models"
)

// UpsertScore stores the latest scoring output for a symbol.
func (db *DB) UpsertScore(s *models.StockScore) error {
	query := `
		INSERT INTO stock_scores (symbol, final_score, tech_score, fundamental_score, components, asof)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (symbol) DO UPDATE SET
			final_score = EXCLUDED.final_score,
			tech_score = EXCLUDED.tech_score,
			fundamental_score = EXCLUDED.fundamental_score,
			components = EXCLUDED.components,
			asof = EXCLUDED.asof
		RETURNING id
	`
	err := db.conn.QueryRow(query,
		s.Symbol, s.FinalScore, s.TechScore, s.FundamentalScore, s.Components, s.AsOf,
	).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert stock score: %w", err)
	}
	return nil
}

// GetLatestScore retrieves the most recent score for a symbol.
func (db *DB) GetLatestScore(symbol string) (*models.StockScore, error) {
	query := `
		SELECT id, symbol, final_score, tech_score, fundamental_score, components, asof
		FROM stock_scores
		WHERE symbol = $1
	`
	var s models.StockScore
	err := db.conn.QueryRow(query, symbol).Scan(
		&s.ID, &s.Symbol, &s.FinalScore, &s.TechScore,
		&s.FundamentalScore, &s.Components, &s.AsOf,
	)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stock score: %w", err)
	}
	return &s, nil
}
