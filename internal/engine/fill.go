package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trogers1052/paper-trading-service/internal/models"
)

var (
	hundred     = decimal.NewFromInt(100)
	bpsDivisor  = decimal.NewFromInt(10000)
	oneDecimal  = decimal.NewFromInt(1)
	zeroDecimal = decimal.Zero
)

// applyFill books one fill atomically: slippage and fees, cash and position
// updates, realized P&L, the trade record, order progress, chain propagation,
// and a full equity recompute all happen in one store transaction. Events
// are published after the transaction commits.
func (e *Engine) applyFill(ctx context.Context, order *models.Order, result *FillResult, now time.Time) error {
	var trade *models.Trade

	err := e.store.InTx(ctx, func(tx Store) error {
		portfolio, err := tx.GetPortfolio(ctx, order.PortfolioID)
		if err != nil {
			return fmt.Errorf("failed to load portfolio %d: %w", order.PortfolioID, err)
		}

		fillPrice, slippageAmount := e.applySlippage(order.Side, result.Price, result.Quantity)
		fees := result.Quantity.Mul(e.cfg.FeesPerShare).Add(e.cfg.FlatCommission)
		gross := fillPrice.Mul(result.Quantity)

		position, err := tx.GetPositionBySymbol(ctx, order.PortfolioID, order.Symbol)
		if err != nil && err != models.ErrNotFound {
			return fmt.Errorf("failed to load position for %s: %w", order.Symbol, err)
		}

		realized := zeroDecimal
		if order.Side == models.SideBuy {
			portfolio.CashBalance = portfolio.CashBalance.Sub(gross).Sub(fees)
			if position == nil {
				position = &models.Position{
					PortfolioID: order.PortfolioID,
					Symbol:      order.Symbol,
					Quantity:    result.Quantity,
					AvgPrice:    fillPrice,
				}
			} else {
				// Weighted-average cost basis across the old lot and the fill.
				oldCost := position.AvgPrice.Mul(position.Quantity)
				newQty := position.Quantity.Add(result.Quantity)
				position.AvgPrice = oldCost.Add(gross).Div(newQty)
				position.Quantity = newQty
			}
			position.MarketValue = position.Quantity.Mul(fillPrice)
			position.UnrealizedPnl = fillPrice.Sub(position.AvgPrice).Mul(position.Quantity)
			position.LastUpdated = now
			if err := tx.UpsertPosition(ctx, position); err != nil {
				return fmt.Errorf("failed to upsert position for %s: %w", order.Symbol, err)
			}
		} else {
			portfolio.CashBalance = portfolio.CashBalance.Add(gross).Sub(fees)
			if position != nil {
				realized = fillPrice.Sub(position.AvgPrice).Mul(result.Quantity)
				portfolio.RealizedPnl = portfolio.RealizedPnl.Add(realized)
				position.Quantity = position.Quantity.Sub(result.Quantity)
				if position.Quantity.IsZero() {
					if err := tx.DeletePosition(ctx, position.ID); err != nil {
						return fmt.Errorf("failed to delete position for %s: %w", order.Symbol, err)
					}
				} else {
					position.MarketValue = position.Quantity.Mul(fillPrice)
					position.UnrealizedPnl = fillPrice.Sub(position.AvgPrice).Mul(position.Quantity)
					position.LastUpdated = now
					if err := tx.UpsertPosition(ctx, position); err != nil {
						return fmt.Errorf("failed to upsert position for %s: %w", order.Symbol, err)
					}
				}
			}
		}

		trade = &models.Trade{
			OrderID:     order.ID,
			PortfolioID: order.PortfolioID,
			Symbol:      order.Symbol,
			Side:        order.Side,
			Quantity:    result.Quantity,
			Price:       fillPrice,
			Fees:        fees,
			Slippage:    slippageAmount,
			RealizedPnl: realized,
			StrategyID:  order.StrategyID,
			CreatedAt:   now,
		}
		if err := tx.CreateTrade(ctx, trade); err != nil {
			return fmt.Errorf("failed to create trade: %w", err)
		}

		recordFill(order, result.Quantity, fillPrice, now)
		// Chain propagation runs on every fill, partial or complete. The
		// first partial on an oco leg must already kill its sibling.
		if err := e.propagateChain(ctx, tx, order, now); err != nil {
			return fmt.Errorf("failed to propagate order chain: %w", err)
		}
		if err := tx.UpdateOrder(ctx, order); err != nil {
			return fmt.Errorf("failed to update order %d: %w", order.ID, err)
		}

		if err := e.recomputeEquity(ctx, tx, portfolio); err != nil {
			return err
		}
		return tx.UpdatePortfolio(ctx, portfolio)
	})
	if err != nil {
		return err
	}

	e.publishTradeEvent(ctx, trade)
	e.publishOrderEvent(ctx, models.EventTypeOrderFilled, order, "")
	return nil
}

// applySlippage shifts the fill price in the unfavorable direction and
// returns the adjusted price and the total slippage amount.
func (e *Engine) applySlippage(side string, price, quantity decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	if e.cfg.SlippageBps.IsZero() {
		return price, zeroDecimal
	}
	fraction := e.cfg.SlippageBps.Div(bpsDivisor)
	multiplier := oneDecimal.Add(fraction)
	if side == models.SideSell {
		multiplier = oneDecimal.Sub(fraction)
	}
	adjusted := price.Mul(multiplier)
	slippage := adjusted.Sub(price).Abs().Mul(quantity)
	return adjusted, slippage
}

// recordFill advances the order's fill progress: filled quantity, the
// quantity-weighted average fill price, status, and the audit event.
func recordFill(order *models.Order, quantity, price decimal.Decimal, now time.Time) {
	prevFilled := order.FilledQuantity
	order.FilledQuantity = prevFilled.Add(quantity)

	if order.AverageFillPrice == nil {
		avg := price
		order.AverageFillPrice = &avg
	} else {
		prevNotional := order.AverageFillPrice.Mul(prevFilled)
		avg := prevNotional.Add(price.Mul(quantity)).Div(order.FilledQuantity)
		order.AverageFillPrice = &avg
	}

	order.Status = models.OrderStatusPartFilled
	if order.Quantity != nil && order.FilledQuantity.GreaterThanOrEqual(*order.Quantity) {
		order.Status = models.OrderStatusFilled
	}
	order.AppendEvent(models.OrderEvent{
		Type:    models.EventFill,
		Message: fmt.Sprintf("filled %s @ %s", quantity.String(), price.String()),
		At:      now,
	})
}

// recomputeEquity refreshes the portfolio's unrealized P&L and equity from
// all open positions, so equity always equals cash plus market value.
func (e *Engine) recomputeEquity(ctx context.Context, tx Store, portfolio *models.Portfolio) error {
	positions, err := tx.ListPositions(ctx, portfolio.ID)
	if err != nil {
		return fmt.Errorf("failed to list positions for portfolio %d: %w", portfolio.ID, err)
	}
	marketValue := zeroDecimal
	unrealized := zeroDecimal
	for _, p := range positions {
		marketValue = marketValue.Add(p.MarketValue)
		unrealized = unrealized.Add(p.UnrealizedPnl)
	}
	portfolio.Equity = portfolio.CashBalance.Add(marketValue)
	portfolio.UnrealizedPnl = unrealized
	return nil
}
