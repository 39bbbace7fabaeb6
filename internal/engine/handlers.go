package engine

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/trogers1052/paper-trading-service/internal/marketdata"
	"github.com/trogers1052/paper-trading-service/internal/models"
)

// quantityPlaces is the scale quantities are rounded to when resolved from
// notional or percent-of-equity inputs.
const quantityPlaces = 6

// FillResult describes the outcome of one handler invocation that decided
// to fill. Remaining is the quantity still unfilled after this fill, which
// drives iceberg re-slicing and FOK cancellation.
type FillResult struct {
	Filled    bool
	Quantity  decimal.Decimal
	Price     decimal.Decimal
	Remaining decimal.Decimal
	Fees      decimal.Decimal
	Slippage  decimal.Decimal
}

// handlerFunc decides whether and how much of an order fills against a
// quote. A nil result means no fill this pass. Handlers may mutate order
// scheduling fields (status, trail reference, pegged limit, algo cursor);
// the engine persists those mutations.
type handlerFunc func(e *Engine, order *models.Order, quote *marketdata.Quote, now time.Time) *FillResult

// handlers maps each order type to its fill logic. Parent/container types
// (bracket, oco, oto, otoco) never fill directly; their children carry the
// real logic.
var handlers = map[string]handlerFunc{
	models.OrderTypeMarket:          (*Engine).fillMarket,
	models.OrderTypeLimit:           (*Engine).fillLimit,
	models.OrderTypeStop:            (*Engine).fillStop,
	models.OrderTypeStopLimit:       (*Engine).fillStopLimit,
	models.OrderTypeTrailingAmount:  (*Engine).fillTrailing,
	models.OrderTypeTrailingPercent: (*Engine).fillTrailing,
	models.OrderTypeTrailingLimit:   (*Engine).fillTrailingLimit,
	models.OrderTypeMarketOpen:      (*Engine).fillMarketOpen,
	models.OrderTypeMarketClose:     (*Engine).fillMarketClose,
	models.OrderTypeLimitOpen:       (*Engine).fillLimitOpen,
	models.OrderTypeLimitClose:      (*Engine).fillLimitClose,
	models.OrderTypePeggedMid:       (*Engine).fillPegged,
	models.OrderTypePeggedPrimary:   (*Engine).fillPegged,
	models.OrderTypeHiddenLimit:     (*Engine).fillLimit,
	models.OrderTypeIceberg:         (*Engine).fillLimit,
	models.OrderTypeBracket:         (*Engine).fillNoop,
	models.OrderTypeOCO:             (*Engine).fillNoop,
	models.OrderTypeOTO:             (*Engine).fillNoop,
	models.OrderTypeOTOCO:           (*Engine).fillNoop,
	models.OrderTypeAlgoVWAP:        (*Engine).fillAlgo,
	models.OrderTypeAlgoTWAP:        (*Engine).fillAlgo,
	models.OrderTypeAlgoPOV:         (*Engine).fillAlgo,
}

// resolveQuantity returns the visible fill quantity and the quantity that
// would remain after it. A notional-only order resolves its total quantity
// from the fill price on first call and persists it on the order, so later
// calls reuse the stored value (idempotent). An order with reserve_quantity
// only ever exposes that much per fill.
func resolveQuantity(order *models.Order, price decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	total := order.Quantity
	if total == nil && order.Notional != nil && price.IsPositive() {
		resolved := order.Notional.Div(price).Round(quantityPlaces)
		order.Quantity = &resolved
		total = &resolved
	}
	if total == nil {
		return decimal.Zero, decimal.Zero
	}

	remaining := total.Sub(order.FilledQuantity)
	if !remaining.IsPositive() {
		return decimal.Zero, decimal.Zero
	}
	if order.ReserveQuantity != nil && order.ReserveQuantity.IsPositive() {
		visible := decimal.Min(*order.ReserveQuantity, remaining)
		return visible, remaining.Sub(visible)
	}
	return remaining, decimal.Zero
}

func (e *Engine) fillMarket(order *models.Order, quote *marketdata.Quote, _ time.Time) *FillResult {
	qty, remaining := resolveQuantity(order, quote.Price)
	if !qty.IsPositive() {
		return nil
	}
	return &FillResult{Filled: true, Quantity: qty, Price: quote.Price, Remaining: remaining}
}

func (e *Engine) fillLimit(order *models.Order, quote *marketdata.Quote, _ time.Time) *FillResult {
	if order.LimitPrice == nil {
		return nil
	}
	limit := *order.LimitPrice
	shouldFill := quote.Price.LessThanOrEqual(limit)
	if order.Side == models.SideSell {
		shouldFill = quote.Price.GreaterThanOrEqual(limit)
	}
	if !shouldFill {
		order.Status = models.OrderStatusWorking
		return nil
	}
	qty, remaining := resolveQuantity(order, quote.Price)
	if !qty.IsPositive() {
		return nil
	}
	return &FillResult{Filled: true, Quantity: qty, Price: limit, Remaining: remaining}
}

func (e *Engine) fillStop(order *models.Order, quote *marketdata.Quote, _ time.Time) *FillResult {
	if order.StopPrice == nil {
		return nil
	}
	if !stopTriggered(order.Side, quote.Price, *order.StopPrice) {
		order.Status = models.OrderStatusWorking
		return nil
	}
	qty, remaining := resolveQuantity(order, quote.Price)
	if !qty.IsPositive() {
		return nil
	}
	return &FillResult{Filled: true, Quantity: qty, Price: quote.Price, Remaining: remaining}
}

func (e *Engine) fillStopLimit(order *models.Order, quote *marketdata.Quote, _ time.Time) *FillResult {
	if order.StopPrice == nil || order.LimitPrice == nil {
		return nil
	}
	if !stopTriggered(order.Side, quote.Price, *order.StopPrice) {
		order.Status = models.OrderStatusWorking
		return nil
	}
	limit := *order.LimitPrice
	shouldFill := quote.Price.LessThanOrEqual(limit)
	if order.Side == models.SideSell {
		shouldFill = quote.Price.GreaterThanOrEqual(limit)
	}
	if !shouldFill {
		return nil
	}
	qty, remaining := resolveQuantity(order, quote.Price)
	if !qty.IsPositive() {
		return nil
	}
	return &FillResult{Filled: true, Quantity: qty, Price: limit, Remaining: remaining}
}

// stopTriggered reports whether price has crossed the stop: at-or-above for
// buys, at-or-below for sells.
func stopTriggered(side string, price, stop decimal.Decimal) bool {
	if side == models.SideBuy {
		return price.GreaterThanOrEqual(stop)
	}
	return price.LessThanOrEqual(stop)
}

func (e *Engine) fillTrailing(order *models.Order, quote *marketdata.Quote, now time.Time) *FillResult {
	price := quote.Price

	var trail decimal.Decimal
	switch {
	case order.OrderType == models.OrderTypeTrailingAmount && order.TrailAmount != nil:
		trail = *order.TrailAmount
	case order.OrderType == models.OrderTypeTrailingPercent && order.TrailPercent != nil:
		trail = price.Mul(*order.TrailPercent).Div(decimal.NewFromInt(100))
	case order.OrderType == models.OrderTypeTrailingLimit && order.TrailAmount != nil:
		trail = *order.TrailAmount
	case order.OrderType == models.OrderTypeTrailingLimit && order.TrailPercent != nil:
		trail = price.Mul(*order.TrailPercent).Div(decimal.NewFromInt(100))
	default:
		return nil
	}

	ref := price
	if order.TrailRef != nil {
		ref = *order.TrailRef
	} else if order.StopPrice != nil {
		ref = *order.StopPrice
	}

	if order.Side == models.SideSell {
		if price.LessThanOrEqual(ref.Sub(trail)) {
			qty, remaining := resolveQuantity(order, price)
			if !qty.IsPositive() {
				return nil
			}
			return &FillResult{Filled: true, Quantity: qty, Price: price, Remaining: remaining}
		}
		// Reference only tightens in the favorable direction.
		if price.GreaterThan(ref) {
			ref = price
		}
	} else {
		if price.GreaterThanOrEqual(ref.Add(trail)) {
			qty, remaining := resolveQuantity(order, price)
			if !qty.IsPositive() {
				return nil
			}
			return &FillResult{Filled: true, Quantity: qty, Price: price, Remaining: remaining}
		}
		if price.LessThan(ref) {
			ref = price
		}
	}

	order.TrailRef = &ref
	order.Status = models.OrderStatusWorking
	return nil
}

func (e *Engine) fillTrailingLimit(order *models.Order, quote *marketdata.Quote, now time.Time) *FillResult {
	result := e.fillTrailing(order, quote, now)
	if result != nil && result.Filled && order.LimitPrice != nil {
		result.Price = *order.LimitPrice
	}
	return result
}

func (e *Engine) fillMarketOpen(order *models.Order, quote *marketdata.Quote, now time.Time) *FillResult {
	if !e.withinSessionWindow(now, sessionOpen) {
		order.Status = models.OrderStatusWorking
		return nil
	}
	return e.fillMarket(order, quote, now)
}

func (e *Engine) fillMarketClose(order *models.Order, quote *marketdata.Quote, now time.Time) *FillResult {
	if !e.withinSessionWindow(now, sessionClose) {
		order.Status = models.OrderStatusWorking
		return nil
	}
	return e.fillMarket(order, quote, now)
}

func (e *Engine) fillLimitOpen(order *models.Order, quote *marketdata.Quote, now time.Time) *FillResult {
	if !e.withinSessionWindow(now, sessionOpen) {
		order.Status = models.OrderStatusWorking
		return nil
	}
	return e.fillLimit(order, quote, now)
}

func (e *Engine) fillLimitClose(order *models.Order, quote *marketdata.Quote, now time.Time) *FillResult {
	if !e.withinSessionWindow(now, sessionClose) {
		order.Status = models.OrderStatusWorking
		return nil
	}
	return e.fillLimit(order, quote, now)
}

// fillPegged recomputes the limit price from the current book on every pass
// (midpoint for pegged_mid, bid for pegged_primary, ± offset), then behaves
// as a limit order.
func (e *Engine) fillPegged(order *models.Order, quote *marketdata.Quote, now time.Time) *FillResult {
	price := quote.Price
	if order.OrderType == models.OrderTypePeggedMid && quote.Bid != nil && quote.Ask != nil {
		price = quote.Bid.Add(*quote.Ask).Div(decimal.NewFromInt(2))
	} else if order.OrderType == models.OrderTypePeggedPrimary && quote.Bid != nil {
		price = *quote.Bid
	}

	offset := decimal.Zero
	if order.PeggedOffset != nil {
		offset = *order.PeggedOffset
	}
	pegged := price.Add(offset)
	if order.Side == models.SideSell {
		pegged = price.Sub(offset)
	}
	order.LimitPrice = &pegged

	return e.fillLimit(order, quote, now)
}

func (e *Engine) fillNoop(_ *models.Order, _ *marketdata.Quote, _ time.Time) *FillResult {
	return nil
}

// fillAlgo executes one slice of a TWAP/VWAP/POV order. The slice cursor
// advances and the next run is rescheduled on every due invocation, filled
// or not.
func (e *Engine) fillAlgo(order *models.Order, quote *marketdata.Quote, now time.Time) *FillResult {
	if order.AlgoNextRunAt != nil && now.Before(*order.AlgoNextRunAt) {
		return nil
	}

	params := models.AlgoParams{}
	if order.AlgoParams != nil {
		params = *order.AlgoParams
	}
	slices := params.Slices
	if slices <= 0 {
		slices = 10
	}
	intervalMinutes := params.IntervalMinutes
	if intervalMinutes <= 0 {
		intervalMinutes = 5
	}
	participation := params.Participation
	if !participation.IsPositive() {
		participation = decimal.NewFromFloat(0.1)
	}

	sliceIndex := order.AlgoSliceIndex
	next := now.Add(time.Duration(intervalMinutes) * time.Minute)
	order.AlgoSliceIndex = sliceIndex + 1
	order.AlgoNextRunAt = &next

	total := decimal.Zero
	if order.Quantity != nil {
		total = *order.Quantity
	}
	remaining := total.Sub(order.FilledQuantity)
	if !remaining.IsPositive() {
		return nil
	}

	var sliceQty decimal.Decimal
	switch order.OrderType {
	case models.OrderTypeAlgoTWAP:
		remainingSlices := slices - sliceIndex
		if remainingSlices <= 0 {
			remainingSlices = 1
		}
		sliceQty = remaining.Div(decimal.NewFromInt(int64(remainingSlices)))
	case models.OrderTypeAlgoVWAP:
		sliceQty = remaining.Mul(participation)
	case models.OrderTypeAlgoPOV:
		if quote.Volume == nil || !quote.Volume.IsPositive() {
			return nil
		}
		sliceQty = quote.Volume.Mul(participation)
	default:
		return nil
	}

	sliceQty = decimal.Min(sliceQty, remaining)
	if order.ReserveQuantity != nil && order.ReserveQuantity.IsPositive() {
		sliceQty = decimal.Min(sliceQty, *order.ReserveQuantity)
	}
	sliceQty = sliceQty.Round(quantityPlaces)
	if !sliceQty.IsPositive() {
		return nil
	}

	return &FillResult{
		Filled:    true,
		Quantity:  sliceQty,
		Price:     quote.Price,
		Remaining: remaining.Sub(sliceQty),
	}
}
