// Package engine contains the paper execution engine: it evaluates open
// orders against live quotes, applies fills to the portfolio ledger, and
// propagates linked-order chains.
package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trogers1052/paper-trading-service/internal/indicator"
	"github.com/trogers1052/paper-trading-service/internal/marketdata"
	"github.com/trogers1052/paper-trading-service/internal/models"
)

// Regular session bounds in the exchange timezone.
const (
	marketOpenHour    = 9
	marketOpenMinute  = 30
	marketCloseHour   = 16
	marketCloseMinute = 0
	sessionWindowMin  = 5
)

type sessionPoint int

const (
	sessionOpen sessionPoint = iota
	sessionClose
)

// Config holds the engine's execution tuning.
type Config struct {
	// SlippageBps is applied to every fill in the unfavorable direction
	// (buys pay more, sells receive less).
	SlippageBps decimal.Decimal
	// FeesPerShare and FlatCommission are both charged on every fill.
	FeesPerShare   decimal.Decimal
	FlatCommission decimal.Decimal
	// BacktestFillMode "next_open" substitutes the latest daily open for a
	// live quote when the provider fails. Empty means live mode: quote
	// failures skip the order.
	BacktestFillMode string
	// Location is the exchange timezone used for session windows and DAY
	// order expiry.
	Location *time.Location
}

// Engine runs order execution passes over active portfolios.
type Engine struct {
	store      Store
	provider   marketdata.Provider
	indicators *indicator.Service
	conditions *ConditionEvaluator
	publisher  EventPublisher
	cfg        Config

	nowFn func() time.Time
}

// NewEngine wires an execution engine. publisher may be nil to disable event
// publishing.
func NewEngine(store Store, provider marketdata.Provider, indicators *indicator.Service, publisher EventPublisher, cfg Config) *Engine {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Engine{
		store:      store,
		provider:   provider,
		indicators: indicators,
		conditions: NewConditionEvaluator(provider, indicators),
		publisher:  publisher,
		cfg:        cfg,
		nowFn:      time.Now,
	}
}

// SetClock overrides the engine's time source. Simulation and tests use it
// to drive session windows and algo schedules deterministically.
func (e *Engine) SetClock(nowFn func() time.Time) {
	e.nowFn = nowFn
}

// Run executes one pass over every active portfolio. A failure in one
// portfolio is logged and does not stop the others.
func (e *Engine) Run(ctx context.Context) error {
	e.indicators.ResetCache()

	portfolios, err := e.store.ListActivePortfolios(ctx)
	if err != nil {
		return fmt.Errorf("failed to list active portfolios: %w", err)
	}

	for _, p := range portfolios {
		if err := e.ProcessPortfolio(ctx, p.ID); err != nil {
			log.Printf("Error processing portfolio %d: %v", p.ID, err)
		}
	}
	return nil
}

// ProcessPortfolio evaluates every open order in one portfolio. Order-level
// failures are logged and do not stop the rest of the pass.
func (e *Engine) ProcessPortfolio(ctx context.Context, portfolioID int) error {
	orders, err := e.store.ListOpenOrders(ctx, portfolioID)
	if err != nil {
		return fmt.Errorf("failed to list open orders for portfolio %d: %w", portfolioID, err)
	}

	for _, order := range orders {
		if err := e.processOrder(ctx, order.ID); err != nil {
			log.Printf("Error processing order %d: %v", order.ID, err)
		}
	}
	return nil
}

// RunAlgoSlices evaluates only the algo orders whose next slice is due, so
// slicing can run on a tighter schedule than the full execution pass.
func (e *Engine) RunAlgoSlices(ctx context.Context) error {
	now := e.nowFn()
	portfolios, err := e.store.ListActivePortfolios(ctx)
	if err != nil {
		return fmt.Errorf("failed to list active portfolios: %w", err)
	}

	for _, p := range portfolios {
		orders, err := e.store.ListDueAlgoOrders(ctx, p.ID, now)
		if err != nil {
			log.Printf("Error listing due algo orders for portfolio %d: %v", p.ID, err)
			continue
		}
		for _, order := range orders {
			if err := e.processOrder(ctx, order.ID); err != nil {
				log.Printf("Error processing algo order %d: %v", order.ID, err)
			}
		}
	}
	return nil
}

// processOrder runs one evaluation of a single order: expiry, session gate,
// quote, condition, fill logic, then either ledger application or persisted
// scheduling state.
func (e *Engine) processOrder(ctx context.Context, orderID int) error {
	order, err := e.store.GetOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("failed to load order %d: %w", orderID, err)
	}
	if !order.IsOpen() {
		return nil
	}
	now := e.nowFn()

	if e.expireIfDue(order, now) {
		if err := e.store.UpdateOrder(ctx, order); err != nil {
			return fmt.Errorf("failed to expire order %d: %w", order.ID, err)
		}
		e.publishOrderEvent(ctx, models.EventTypeOrderExpired, order, "expired")
		return nil
	}

	if !order.ExtendedHours && !e.inRegularHours(now) {
		return nil
	}

	quote, err := e.provider.GetQuote(ctx, order.Symbol)
	if err != nil {
		quote = e.backtestQuote(ctx, order.Symbol)
		if quote == nil {
			log.Printf("Skipping order %d: quote unavailable for %s: %v", order.ID, order.Symbol, err)
			return nil
		}
	}

	if !e.conditions.Satisfied(ctx, order.Condition, order.Symbol, quote, now) {
		if order.Status == models.OrderStatusNew {
			order.Status = models.OrderStatusWorking
			if err := e.store.UpdateOrder(ctx, order); err != nil {
				return fmt.Errorf("failed to update order %d: %w", order.ID, err)
			}
		}
		return nil
	}

	handler, ok := handlers[order.OrderType]
	if !ok {
		return fmt.Errorf("no handler for order type %q", order.OrderType)
	}

	result := handler(e, order, quote, now)
	if result != nil && result.Filled {
		if err := e.applyFill(ctx, order, result, now); err != nil {
			return fmt.Errorf("failed to apply fill for order %d: %w", order.ID, err)
		}
		// A fill-or-kill order that could not fill completely cancels its
		// unfilled remainder after the partial fill is booked.
		if order.TIF == models.TIFFOK && result.Remaining.IsPositive() {
			return e.cancelRemainder(ctx, order, now, "fok remainder canceled")
		}
		return nil
	}

	if order.TIF == models.TIFIOC || order.TIF == models.TIFFOK {
		return e.cancelRemainder(ctx, order, now, "no immediate fill")
	}

	// Persist scheduling state the handler may have changed (trail
	// reference, pegged limit, algo cursor, new -> working).
	if err := e.store.UpdateOrder(ctx, order); err != nil {
		return fmt.Errorf("failed to update order %d: %w", order.ID, err)
	}
	return nil
}

// expireIfDue marks DAY orders expired on any calendar day after their
// creation day (exchange timezone) and GTD orders expired past their tif
// date. It returns true when the order was expired. A DAY order stays live
// through its creation day's after-hours session.
func (e *Engine) expireIfDue(order *models.Order, now time.Time) bool {
	switch order.TIF {
	case models.TIFDay:
		created := order.CreatedAt.In(e.cfg.Location)
		local := now.In(e.cfg.Location)
		createdDay := time.Date(created.Year(), created.Month(), created.Day(), 0, 0, 0, 0, e.cfg.Location)
		nowDay := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, e.cfg.Location)
		if nowDay.After(createdDay) {
			e.markExpired(order, now)
			return true
		}
	case models.TIFGTD:
		if order.TIFDate != nil && now.After(*order.TIFDate) {
			e.markExpired(order, now)
			return true
		}
	}
	if order.ExpiresAt != nil && now.After(*order.ExpiresAt) {
		e.markExpired(order, now)
		return true
	}
	return false
}

func (e *Engine) markExpired(order *models.Order, now time.Time) {
	order.Status = models.OrderStatusExpired
	order.AppendEvent(models.OrderEvent{Type: models.EventOrderExpired, At: now})
}

func (e *Engine) cancelRemainder(ctx context.Context, order *models.Order, now time.Time, reason string) error {
	order.Status = models.OrderStatusCanceled
	order.AppendEvent(models.OrderEvent{Type: models.EventOrderCanceled, Message: reason, At: now})
	if err := e.store.UpdateOrder(ctx, order); err != nil {
		return fmt.Errorf("failed to cancel order %d: %w", order.ID, err)
	}
	e.publishOrderEvent(ctx, models.EventTypeOrderCanceled, order, reason)
	return nil
}

// backtestQuote substitutes the most recent daily open for a failed live
// quote when the engine runs in next_open backtest mode.
func (e *Engine) backtestQuote(ctx context.Context, symbol string) *marketdata.Quote {
	if e.cfg.BacktestFillMode != "next_open" {
		return nil
	}
	bars, err := e.provider.GetHistory(ctx, symbol, "5d", "1d")
	if err != nil || len(bars) == 0 {
		return nil
	}
	last := bars[len(bars)-1]
	return &marketdata.Quote{
		Symbol:    symbol,
		Price:     last.Open,
		Timestamp: last.Timestamp,
	}
}

// inRegularHours reports whether now falls inside the regular session in the
// exchange timezone. Weekends are closed.
func (e *Engine) inRegularHours(now time.Time) bool {
	local := now.In(e.cfg.Location)
	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return false
	}
	open := time.Date(local.Year(), local.Month(), local.Day(),
		marketOpenHour, marketOpenMinute, 0, 0, e.cfg.Location)
	closeAt := time.Date(local.Year(), local.Month(), local.Day(),
		marketCloseHour, marketCloseMinute, 0, 0, e.cfg.Location)
	return !local.Before(open) && !local.After(closeAt)
}

// withinSessionWindow reports whether now is within a few minutes of the
// session open or close, the execution window for open/close order types.
func (e *Engine) withinSessionWindow(now time.Time, point sessionPoint) bool {
	local := now.In(e.cfg.Location)
	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return false
	}
	hour, minute := marketOpenHour, marketOpenMinute
	if point == sessionClose {
		hour, minute = marketCloseHour, marketCloseMinute
	}
	target := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, e.cfg.Location)
	diff := local.Sub(target)
	if diff < 0 {
		diff = -diff
	}
	return diff <= sessionWindowMin*time.Minute
}

func (e *Engine) publishOrderEvent(ctx context.Context, eventType string, order *models.Order, reason string) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.PublishOrderEvent(ctx, eventType, order, reason); err != nil {
		log.Printf("Error publishing %s event for order %d: %v", eventType, order.ID, err)
	}
}

func (e *Engine) publishTradeEvent(ctx context.Context, trade *models.Trade) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.PublishTradeEvent(ctx, trade); err != nil {
		log.Printf("Error publishing trade event for order %d: %v", trade.OrderID, err)
	}
}
