package engine

import (
	"context"
	"time"

	"github.com/trogers1052/paper-trading-service/internal/models"
)

// Store defines the persistence operations the engine needs. The database
// package implements it over PostgreSQL; tests use an in-memory version.
//
// InTx runs fn against a transactional view of the store. Every ledger
// mutation for one fill (position upsert, trade insert, order update,
// portfolio update, chain propagation) happens inside a single InTx call so
// a failure partway leaves no partial state.
type Store interface {
	InTx(ctx context.Context, fn func(tx Store) error) error

	GetOrder(ctx context.Context, id int) (*models.Order, error)
	ListOpenOrders(ctx context.Context, portfolioID int) ([]*models.Order, error)
	ListDueAlgoOrders(ctx context.Context, portfolioID int, now time.Time) ([]*models.Order, error)
	ListChildOrders(ctx context.Context, parentID int) ([]*models.Order, error)
	CreateOrder(ctx context.Context, order *models.Order) error
	UpdateOrder(ctx context.Context, order *models.Order) error

	GetPortfolio(ctx context.Context, id int) (*models.Portfolio, error)
	ListActivePortfolios(ctx context.Context) ([]*models.Portfolio, error)
	UpdatePortfolio(ctx context.Context, portfolio *models.Portfolio) error

	GetPositionBySymbol(ctx context.Context, portfolioID int, symbol string) (*models.Position, error)
	ListPositions(ctx context.Context, portfolioID int) ([]*models.Position, error)
	UpsertPosition(ctx context.Context, position *models.Position) error
	DeletePosition(ctx context.Context, id int) error

	CreateTrade(ctx context.Context, trade *models.Trade) error
}

// EventPublisher pushes order and trade lifecycle events to the event bus.
// A nil publisher disables publishing.
type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, eventType string, order *models.Order, reason string) error
	PublishTradeEvent(ctx context.Context, trade *models.Trade) error
}
