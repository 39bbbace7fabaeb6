package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trogers1052/paper-trading-service/internal/models"
)

// RejectionError reports why an order was refused at submission.
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("order rejected: %s", e.Reason)
}

func reject(format string, args ...interface{}) error {
	return &RejectionError{Reason: fmt.Sprintf(format, args...)}
}

var validSides = map[string]bool{
	models.SideBuy:  true,
	models.SideSell: true,
}

var validTIFs = map[string]bool{
	models.TIFDay: true, models.TIFGTC: true, models.TIFGTD: true,
	models.TIFIOC: true, models.TIFFOK: true, models.TIFAON: true,
	models.TIFOPG: true, models.TIFCLS: true, models.TIFEXT: true,
}

// SubmitOrder validates an order, runs risk checks against the portfolio,
// and persists it in status new. Parent/container orders skip execution
// validation that only applies to fillable legs.
func (e *Engine) SubmitOrder(ctx context.Context, order *models.Order) error {
	if order.TIF == "" {
		order.TIF = models.TIFDay
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = e.nowFn()
	}
	order.Status = models.OrderStatusNew

	if err := ValidateOrder(order); err != nil {
		return err
	}

	portfolio, err := e.store.GetPortfolio(ctx, order.PortfolioID)
	if err != nil {
		return fmt.Errorf("failed to load portfolio %d: %w", order.PortfolioID, err)
	}
	if portfolio.Status != models.PortfolioStatusActive {
		return reject("portfolio %d is not active", portfolio.ID)
	}

	if err := e.checkRiskLimits(ctx, portfolio, order); err != nil {
		return err
	}

	if err := e.store.CreateOrder(ctx, order); err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	order.AppendEvent(models.OrderEvent{Type: models.EventOrderAccepted, At: order.CreatedAt})
	if err := e.store.UpdateOrder(ctx, order); err != nil {
		return fmt.Errorf("failed to record acceptance of order %d: %w", order.ID, err)
	}

	log.Printf("Accepted %s %s order %d for %s in portfolio %d",
		order.Side, order.OrderType, order.ID, order.Symbol, order.PortfolioID)
	e.publishOrderEvent(ctx, models.EventTypeOrderAccepted, order, "")
	return nil
}

// CancelOrder cancels an open order. Canceling a terminal order is an error.
func (e *Engine) CancelOrder(ctx context.Context, orderID int, reason string) (*models.Order, error) {
	order, err := e.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order %d: %w", orderID, err)
	}
	if order.IsTerminal() {
		return nil, reject("order %d is already %s", orderID, order.Status)
	}
	order.Status = models.OrderStatusCanceled
	order.AppendEvent(models.OrderEvent{
		Type:    models.EventOrderCanceled,
		Message: reason,
		At:      e.nowFn(),
	})
	if err := e.store.UpdateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to cancel order %d: %w", orderID, err)
	}
	e.publishOrderEvent(ctx, models.EventTypeOrderCanceled, order, reason)
	return order, nil
}

// ValidateOrder checks structural validity: known enums, a sizing input, and
// the price fields each order type requires.
func ValidateOrder(order *models.Order) error {
	if order.Symbol == "" {
		return reject("symbol is required")
	}
	if !validSides[order.Side] {
		return reject("invalid side %q", order.Side)
	}
	if _, ok := handlers[order.OrderType]; !ok {
		return reject("invalid order type %q", order.OrderType)
	}
	if !validTIFs[order.TIF] {
		return reject("invalid time in force %q", order.TIF)
	}
	if order.TIF == models.TIFGTD && order.TIFDate == nil {
		return reject("gtd orders require a tif date")
	}

	hasQty := order.Quantity != nil && order.Quantity.IsPositive()
	hasNotional := order.Notional != nil && order.Notional.IsPositive()
	if hasQty == hasNotional {
		return reject("exactly one of quantity and notional is required")
	}

	switch order.OrderType {
	case models.OrderTypeLimit, models.OrderTypeLimitOpen, models.OrderTypeLimitClose,
		models.OrderTypeHiddenLimit, models.OrderTypeIceberg:
		if order.LimitPrice == nil || !order.LimitPrice.IsPositive() {
			return reject("%s orders require a limit price", order.OrderType)
		}
	case models.OrderTypeStop:
		if order.StopPrice == nil || !order.StopPrice.IsPositive() {
			return reject("stop orders require a stop price")
		}
	case models.OrderTypeStopLimit:
		if order.StopPrice == nil || !order.StopPrice.IsPositive() {
			return reject("stop limit orders require a stop price")
		}
		if order.LimitPrice == nil || !order.LimitPrice.IsPositive() {
			return reject("stop limit orders require a limit price")
		}
	case models.OrderTypeTrailingAmount:
		if order.TrailAmount == nil || !order.TrailAmount.IsPositive() {
			return reject("trailing amount orders require a positive trail amount")
		}
	case models.OrderTypeTrailingPercent:
		if order.TrailPercent == nil || !order.TrailPercent.IsPositive() {
			return reject("trailing percent orders require a positive trail percent")
		}
	case models.OrderTypeTrailingLimit:
		if (order.TrailAmount == nil || !order.TrailAmount.IsPositive()) &&
			(order.TrailPercent == nil || !order.TrailPercent.IsPositive()) {
			return reject("trailing limit orders require a trail amount or percent")
		}
	}
	if order.OrderType == models.OrderTypeIceberg &&
		(order.ReserveQuantity == nil || !order.ReserveQuantity.IsPositive()) {
		return reject("iceberg orders require a reserve quantity")
	}
	return nil
}

// checkRiskLimits enforces portfolio limits at submission: position count,
// single-position and gross exposure caps, buy cash sufficiency, and sell
// share coverage. Checks that need a reference price are skipped when none
// is available; the engine re-prices at fill time anyway.
func (e *Engine) checkRiskLimits(ctx context.Context, portfolio *models.Portfolio, order *models.Order) error {
	positions, err := e.store.ListPositions(ctx, portfolio.ID)
	if err != nil {
		return fmt.Errorf("failed to list positions for portfolio %d: %w", portfolio.ID, err)
	}

	var held *models.Position
	for _, p := range positions {
		if p.Symbol == order.Symbol {
			held = p
			break
		}
	}

	if order.Side == models.SideSell {
		if held == nil {
			return reject("no position in %s to sell", order.Symbol)
		}
		if order.Quantity != nil && order.Quantity.GreaterThan(held.Quantity) {
			return reject("sell quantity %s exceeds held %s shares of %s",
				order.Quantity.String(), held.Quantity.String(), order.Symbol)
		}
		return nil
	}

	if portfolio.MaxPositions > 0 && held == nil && len(positions) >= portfolio.MaxPositions {
		return reject("portfolio %d is at its position limit of %d", portfolio.ID, portfolio.MaxPositions)
	}

	refPrice := e.referencePrice(ctx, order)
	if refPrice == nil {
		return nil
	}

	cost := decimal.Zero
	if order.Notional != nil {
		cost = *order.Notional
	} else if order.Quantity != nil {
		cost = order.Quantity.Mul(*refPrice)
	}
	if cost.GreaterThan(portfolio.CashBalance) {
		return reject("estimated cost %s exceeds cash balance %s",
			cost.StringFixed(2), portfolio.CashBalance.StringFixed(2))
	}

	if portfolio.MaxPositionPct.IsPositive() && portfolio.Equity.IsPositive() {
		existing := decimal.Zero
		if held != nil {
			existing = held.MarketValue
		}
		pct := existing.Add(cost).Div(portfolio.Equity).Mul(hundred)
		if pct.GreaterThan(portfolio.MaxPositionPct) {
			return reject("position in %s would be %s%% of equity, above the %s%% limit",
				order.Symbol, pct.StringFixed(1), portfolio.MaxPositionPct.String())
		}
	}

	if portfolio.MaxExposurePct.IsPositive() && portfolio.Equity.IsPositive() {
		gross := decimal.Zero
		for _, p := range positions {
			gross = gross.Add(p.MarketValue)
		}
		pct := gross.Add(cost).Div(portfolio.Equity).Mul(hundred)
		if pct.GreaterThan(portfolio.MaxExposurePct) {
			return reject("gross exposure would be %s%% of equity, above the %s%% limit",
				pct.StringFixed(1), portfolio.MaxExposurePct.String())
		}
	}
	return nil
}

// referencePrice picks the best available estimate for a cost check: the
// limit price, then the stop price, then a live quote. Nil means no
// reference is available.
func (e *Engine) referencePrice(ctx context.Context, order *models.Order) *decimal.Decimal {
	if order.LimitPrice != nil {
		return order.LimitPrice
	}
	if order.StopPrice != nil {
		return order.StopPrice
	}
	quoteCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	quote, err := e.provider.GetQuote(quoteCtx, order.Symbol)
	if err != nil {
		return nil
	}
	return &quote.Price
}
