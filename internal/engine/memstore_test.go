package engine

import (
	"context"
	"sync"
	"time"

	"github.com/trogers1052/paper-trading-service/internal/models"
)

// memStore is an in-memory Store for engine tests.
type memStore struct {
	mu         sync.Mutex
	nextID     int
	orders     map[int]*models.Order
	portfolios map[int]*models.Portfolio
	positions  map[int]*models.Position
	trades     []*models.Trade
}

func newMemStore() *memStore {
	return &memStore{
		orders:     make(map[int]*models.Order),
		portfolios: make(map[int]*models.Portfolio),
		positions:  make(map[int]*models.Position),
	}
}

func (s *memStore) id() int {
	s.nextID++
	return s.nextID
}

func (s *memStore) InTx(_ context.Context, fn func(tx Store) error) error {
	return fn(s)
}

func (s *memStore) GetOrder(_ context.Context, id int) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	o := *order
	return &o, nil
}

func (s *memStore) ListOpenOrders(_ context.Context, portfolioID int) ([]*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Order
	for _, order := range s.orders {
		if order.PortfolioID == portfolioID && order.IsOpen() {
			o := *order
			out = append(out, &o)
		}
	}
	return out, nil
}

func (s *memStore) ListDueAlgoOrders(_ context.Context, portfolioID int, now time.Time) ([]*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Order
	for _, order := range s.orders {
		if order.PortfolioID != portfolioID || !order.IsOpen() {
			continue
		}
		switch order.OrderType {
		case models.OrderTypeAlgoTWAP, models.OrderTypeAlgoVWAP, models.OrderTypeAlgoPOV:
		default:
			continue
		}
		if order.AlgoNextRunAt == nil || !now.Before(*order.AlgoNextRunAt) {
			o := *order
			out = append(out, &o)
		}
	}
	return out, nil
}

func (s *memStore) ListChildOrders(_ context.Context, parentID int) ([]*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Order
	for _, order := range s.orders {
		if order.ParentID != nil && *order.ParentID == parentID {
			o := *order
			out = append(out, &o)
		}
	}
	return out, nil
}

func (s *memStore) CreateOrder(_ context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	order.ID = s.id()
	o := *order
	s.orders[order.ID] = &o
	return nil
}

func (s *memStore) UpdateOrder(_ context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[order.ID]; !ok {
		return models.ErrNotFound
	}
	o := *order
	s.orders[order.ID] = &o
	return nil
}

func (s *memStore) GetPortfolio(_ context.Context, id int) (*models.Portfolio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	portfolio, ok := s.portfolios[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	p := *portfolio
	return &p, nil
}

func (s *memStore) ListActivePortfolios(_ context.Context) ([]*models.Portfolio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Portfolio
	for _, portfolio := range s.portfolios {
		if portfolio.Status == models.PortfolioStatusActive {
			p := *portfolio
			out = append(out, &p)
		}
	}
	return out, nil
}

func (s *memStore) UpdatePortfolio(_ context.Context, portfolio *models.Portfolio) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := *portfolio
	s.portfolios[portfolio.ID] = &p
	return nil
}

func (s *memStore) addPortfolio(portfolio *models.Portfolio) *models.Portfolio {
	s.mu.Lock()
	defer s.mu.Unlock()
	if portfolio.ID == 0 {
		portfolio.ID = s.id()
	}
	if portfolio.Status == "" {
		portfolio.Status = models.PortfolioStatusActive
	}
	p := *portfolio
	s.portfolios[portfolio.ID] = &p
	return portfolio
}

func (s *memStore) GetPositionBySymbol(_ context.Context, portfolioID int, symbol string) (*models.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, position := range s.positions {
		if position.PortfolioID == portfolioID && position.Symbol == symbol {
			p := *position
			return &p, nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *memStore) ListPositions(_ context.Context, portfolioID int) ([]*models.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Position
	for _, position := range s.positions {
		if position.PortfolioID == portfolioID {
			p := *position
			out = append(out, &p)
		}
	}
	return out, nil
}

func (s *memStore) UpsertPosition(_ context.Context, position *models.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if position.ID == 0 {
		position.ID = s.id()
	}
	p := *position
	s.positions[position.ID] = &p
	return nil
}

func (s *memStore) DeletePosition(_ context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.positions, id)
	return nil
}

func (s *memStore) CreateTrade(_ context.Context, trade *models.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	trade.ID = s.id()
	t := *trade
	s.trades = append(s.trades, &t)
	return nil
}
