// Package strategy evaluates user-defined rule sets against live market data
// and synthesizes paper orders from order templates.
package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trogers1052/paper-trading-service/internal/engine"
	"github.com/trogers1052/paper-trading-service/internal/marketdata"
	"github.com/trogers1052/paper-trading-service/internal/models"
)

// frequencySeconds maps a strategy frequency to the minimum spacing between
// runs.
var frequencySeconds = map[string]int64{
	models.Frequency1m:  60,
	models.Frequency5m:  300,
	models.Frequency15m: 900,
	models.Frequency1h:  3600,
	models.Frequency1d:  86400,
}

// Repository is the persistence surface the runner needs.
type Repository interface {
	ListActiveStrategies(ctx context.Context) ([]*models.Strategy, error)
	UpdateStrategyLastRun(ctx context.Context, strategyID int, runAt time.Time) error
	CreateRunLog(ctx context.Context, runLog *models.StrategyRunLog) error
	ListActivePortfoliosByUser(ctx context.Context, userID int) ([]*models.Portfolio, error)
	GetPositionBySymbol(ctx context.Context, portfolioID int, symbol string) (*models.Position, error)
}

// OrderPlacer submits generated orders. The engine implements it.
type OrderPlacer interface {
	SubmitOrder(ctx context.Context, order *models.Order) error
}

// Runner evaluates active strategies on a schedule and places the orders
// their rules generate.
type Runner struct {
	repo     Repository
	provider marketdata.Provider
	rules    *engine.ConditionEvaluator
	placer   OrderPlacer

	nowFn func() time.Time
}

// NewRunner wires a strategy runner.
func NewRunner(repo Repository, provider marketdata.Provider, rules *engine.ConditionEvaluator, placer OrderPlacer) *Runner {
	return &Runner{
		repo:     repo,
		provider: provider,
		rules:    rules,
		placer:   placer,
		nowFn:    time.Now,
	}
}

// SetClock overrides the runner's time source for tests.
func (r *Runner) SetClock(nowFn func() time.Time) {
	r.nowFn = nowFn
}

// Run evaluates every active strategy that is due per its frequency. A
// failure in one strategy does not stop the others.
func (r *Runner) Run(ctx context.Context) error {
	strategies, err := r.repo.ListActiveStrategies(ctx)
	if err != nil {
		return fmt.Errorf("failed to list active strategies: %w", err)
	}

	now := r.nowFn()
	for _, s := range strategies {
		if !r.due(s, now) {
			continue
		}
		if err := r.runStrategy(ctx, s, now); err != nil {
			log.Printf("Error running strategy %d: %v", s.ID, err)
		}
		if err := r.repo.UpdateStrategyLastRun(ctx, s.ID, now); err != nil {
			log.Printf("Error recording last run for strategy %d: %v", s.ID, err)
		}
	}
	return nil
}

// DryRun evaluates one strategy without placing orders or writing run state.
// It returns the orders the strategy would have generated.
func (r *Runner) DryRun(ctx context.Context, s *models.Strategy) ([]*models.Order, error) {
	return r.evaluate(ctx, s, r.nowFn(), nil)
}

func (r *Runner) due(s *models.Strategy, now time.Time) bool {
	if s.LastRunAt == nil {
		return true
	}
	spacing, ok := frequencySeconds[s.Config.Frequency]
	if !ok {
		spacing = frequencySeconds[models.Frequency5m]
	}
	return now.Sub(*s.LastRunAt) >= time.Duration(spacing)*time.Second
}

// runStrategy evaluates a strategy across the owner's active portfolios and
// writes one run log per portfolio.
func (r *Runner) runStrategy(ctx context.Context, s *models.Strategy, now time.Time) error {
	portfolios, err := r.repo.ListActivePortfoliosByUser(ctx, s.UserID)
	if err != nil {
		return fmt.Errorf("failed to list portfolios for user %d: %w", s.UserID, err)
	}

	for _, portfolio := range portfolios {
		runLog := &models.StrategyRunLog{
			StrategyID:  s.ID,
			PortfolioID: portfolio.ID,
			RunAt:       now,
		}

		orders, err := r.evaluate(ctx, s, now, portfolio)
		if err != nil {
			runLog.Status = models.RunStatusError
			runLog.ErrorMessage = err.Error()
		} else {
			placed := make([]int, 0, len(orders))
			for _, order := range orders {
				if err := r.placer.SubmitOrder(ctx, order); err != nil {
					log.Printf("Strategy %d: order for %s rejected: %v", s.ID, order.Symbol, err)
					continue
				}
				placed = append(placed, order.ID)
			}
			runLog.GeneratedOrders = placed
			runLog.Status = models.RunStatusSuccess
			if len(placed) == 0 {
				runLog.Status = models.RunStatusSkipped
			}
		}
		runLog.Context = r.runContext(s, orders)

		if err := r.repo.CreateRunLog(ctx, runLog); err != nil {
			log.Printf("Error writing run log for strategy %d: %v", s.ID, err)
		}
	}
	return nil
}

// evaluate applies the strategy's entry and exit rule trees to each
// configured symbol and returns the orders it would generate. portfolio may
// be nil for a dry run, in which case percent sizing is left unresolved and
// the orders carry no portfolio id.
func (r *Runner) evaluate(ctx context.Context, s *models.Strategy, now time.Time, portfolio *models.Portfolio) ([]*models.Order, error) {
	var orders []*models.Order
	for _, symbol := range s.Config.Symbols {
		quote, err := r.provider.GetQuote(ctx, symbol)
		if err != nil {
			log.Printf("Strategy %d: skipping %s: %v", s.ID, symbol, err)
			continue
		}

		if block := s.Config.Entry; block != nil && r.matches(ctx, block.Rules, symbol, quote, now) {
			order, err := r.buildOrder(s, block, symbol, models.SideBuy, portfolio)
			if err != nil {
				return nil, err
			}
			if order != nil {
				orders = append(orders, order)
			}
		}

		if block := s.Config.Exit; block != nil && r.matches(ctx, block.Rules, symbol, quote, now) {
			if portfolio != nil && !r.holdsPosition(ctx, portfolio.ID, symbol) {
				continue
			}
			order, err := r.buildOrder(s, block, symbol, models.SideSell, portfolio)
			if err != nil {
				return nil, err
			}
			if order != nil {
				orders = append(orders, order)
			}
		}
	}
	return orders, nil
}

// matches evaluates a rule tree. An empty tree never matches; a group node
// combines its children with and/or semantics.
func (r *Runner) matches(ctx context.Context, node *models.RuleNode, symbol string, quote *marketdata.Quote, now time.Time) bool {
	if node == nil {
		return false
	}
	switch node.Type {
	case "and":
		if len(node.Conditions) == 0 {
			return false
		}
		for _, child := range node.Conditions {
			if !r.matches(ctx, child, symbol, quote, now) {
				return false
			}
		}
		return true
	case "or":
		for _, child := range node.Conditions {
			if r.matches(ctx, child, symbol, quote, now) {
				return true
			}
		}
		return false
	default:
		if node.Condition == nil {
			return false
		}
		return r.rules.Satisfied(ctx, node.Condition, symbol, quote, now)
	}
}

// buildOrder merges the block's named template with its inline overrides and
// resolves sizing into a submittable order.
func (r *Runner) buildOrder(s *models.Strategy, block *models.RuleBlock, symbol, defaultSide string, portfolio *models.Portfolio) (*models.Order, error) {
	template := mergeTemplate(s.Config.OrderTemplates, block)

	side := template.Side
	if side == "" {
		side = defaultSide
	}
	orderType := template.OrderType
	if orderType == "" {
		orderType = models.OrderTypeMarket
	}

	order := &models.Order{
		Symbol:          symbol,
		Side:            side,
		OrderType:       orderType,
		TIF:             template.TIF,
		Quantity:        template.Quantity,
		Notional:        template.Notional,
		LimitPrice:      template.LimitPrice,
		StopPrice:       template.StopPrice,
		TrailAmount:     template.TrailAmount,
		TrailPercent:    template.TrailPercent,
		ReserveQuantity: template.ReserveQuantity,
		ExtendedHours:   template.ExtendedHours,
		Condition:       template.Condition,
		StrategyID:      &s.ID,
	}
	if portfolio != nil {
		order.PortfolioID = portfolio.ID
	}

	if template.QuantityPct != nil && order.Quantity == nil && order.Notional == nil {
		if portfolio == nil {
			return order, nil
		}
		qty := template.QuantityPct.Div(decimal.NewFromInt(100)).Mul(portfolio.Equity).Round(6)
		if !qty.IsPositive() {
			return nil, nil
		}
		order.Quantity = &qty
	}
	return order, nil
}

// mergeTemplate resolves a rule block's order template: the named shared
// template first, then inline overrides, field by field.
func mergeTemplate(shared map[string]models.OrderTemplate, block *models.RuleBlock) models.OrderTemplate {
	merged := models.OrderTemplate{}
	if block.Template != "" {
		if base, ok := shared[block.Template]; ok {
			merged = base
		}
	}
	override := block.Order
	if override == nil {
		return merged
	}
	if override.Side != "" {
		merged.Side = override.Side
	}
	if override.OrderType != "" {
		merged.OrderType = override.OrderType
	}
	if override.TIF != "" {
		merged.TIF = override.TIF
	}
	if override.Quantity != nil {
		merged.Quantity = override.Quantity
	}
	if override.QuantityPct != nil {
		merged.QuantityPct = override.QuantityPct
	}
	if override.Notional != nil {
		merged.Notional = override.Notional
	}
	if override.LimitPrice != nil {
		merged.LimitPrice = override.LimitPrice
	}
	if override.StopPrice != nil {
		merged.StopPrice = override.StopPrice
	}
	if override.TrailAmount != nil {
		merged.TrailAmount = override.TrailAmount
	}
	if override.TrailPercent != nil {
		merged.TrailPercent = override.TrailPercent
	}
	if override.ReserveQuantity != nil {
		merged.ReserveQuantity = override.ReserveQuantity
	}
	if override.ExtendedHours {
		merged.ExtendedHours = true
	}
	if override.Condition != nil {
		merged.Condition = override.Condition
	}
	return merged
}

func (r *Runner) holdsPosition(ctx context.Context, portfolioID int, symbol string) bool {
	position, err := r.repo.GetPositionBySymbol(ctx, portfolioID, symbol)
	if err != nil {
		return false
	}
	return position != nil && position.Quantity.IsPositive()
}

func (r *Runner) runContext(s *models.Strategy, orders []*models.Order) []byte {
	symbols := make([]string, 0, len(orders))
	for _, order := range orders {
		symbols = append(symbols, order.Symbol)
	}
	payload, err := json.Marshal(map[string]interface{}{
		"frequency": s.Config.Frequency,
		"symbols":   s.Config.Symbols,
		"matched":   symbols,
	})
	if err != nil {
		return nil
	}
	return payload
}
