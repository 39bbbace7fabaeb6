package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trogers1052/paper-trading-service/internal/indicator"
	"github.com/trogers1052/paper-trading-service/internal/marketdata"
	"github.com/trogers1052/paper-trading-service/internal/models"
)

// operators maps comparison names to decimal comparators.
var operators = map[string]func(a, b decimal.Decimal) bool{
	"gt":  func(a, b decimal.Decimal) bool { return a.GreaterThan(b) },
	"gte": func(a, b decimal.Decimal) bool { return a.GreaterThanOrEqual(b) },
	"lt":  func(a, b decimal.Decimal) bool { return a.LessThan(b) },
	"lte": func(a, b decimal.Decimal) bool { return a.LessThanOrEqual(b) },
	"eq":  func(a, b decimal.Decimal) bool { return a.Equal(b) },
}

func comparator(name string) func(a, b decimal.Decimal) bool {
	if cmp, ok := operators[name]; ok {
		return cmp
	}
	return operators["gte"]
}

// ConditionEvaluator decides whether a trigger condition is currently
// satisfied. Every condition fails open: if the data needed to evaluate it
// is missing or unavailable, the condition passes rather than blocking the
// order.
type ConditionEvaluator struct {
	provider   marketdata.Provider
	indicators *indicator.Service
}

// NewConditionEvaluator creates an evaluator over the given provider and
// indicator service.
func NewConditionEvaluator(provider marketdata.Provider, indicators *indicator.Service) *ConditionEvaluator {
	return &ConditionEvaluator{
		provider:   provider,
		indicators: indicators,
	}
}

// Satisfied evaluates cond for a symbol against the current quote. Group
// conditions recurse over their children with the child condition passed by
// value; nothing is mutated during evaluation. All children of a group are
// evaluated (no short-circuit).
func (e *ConditionEvaluator) Satisfied(ctx context.Context, cond *models.Condition, symbol string, quote *marketdata.Quote, now time.Time) bool {
	if cond == nil || cond.Type == "" || cond.Type == models.ConditionNone {
		return true
	}

	switch cond.Type {
	case models.ConditionPrice:
		if cond.Value == nil {
			return true
		}
		return comparator(cond.Operator)(quote.Price, *cond.Value)

	case models.ConditionTime:
		if cond.Timestamp == "" {
			return true
		}
		target, err := time.Parse(time.RFC3339, cond.Timestamp)
		if err != nil {
			return true
		}
		return !now.Before(target)

	case models.ConditionIndicator:
		value := e.indicators.GetValue(ctx, symbol, cond)
		if value == nil || cond.Value == nil {
			return true
		}
		return comparator(cond.Operator)(*value, *cond.Value)

	case models.ConditionCrossSymbol:
		return e.crossSymbolSatisfied(ctx, cond, symbol, quote)

	case models.ConditionVolume:
		return e.volumeSatisfied(ctx, cond, symbol, quote)

	case models.ConditionAndGroup, models.ConditionOrGroup:
		anyTrue, allTrue := false, true
		for i := range cond.Conditions {
			child := cond.Conditions[i]
			if e.Satisfied(ctx, &child, symbol, quote, now) {
				anyTrue = true
			} else {
				allTrue = false
			}
		}
		if cond.Type == models.ConditionAndGroup {
			return allTrue
		}
		return anyTrue
	}
	return true
}

func (e *ConditionEvaluator) crossSymbolSatisfied(ctx context.Context, cond *models.Condition, symbol string, quote *marketdata.Quote) bool {
	targetSymbol := cond.Symbol
	if targetSymbol == "" {
		targetSymbol = symbol
	}

	basePrice := quote.Price
	if targetSymbol != symbol {
		targetQuote, err := e.provider.GetQuote(ctx, targetSymbol)
		if err != nil {
			return true
		}
		basePrice = targetQuote.Price
	}

	var compareValue *decimal.Decimal
	if cond.CompareSymbol != "" {
		compareQuote, err := e.provider.GetQuote(ctx, cond.CompareSymbol)
		if err != nil {
			return true
		}
		compareValue = &compareQuote.Price
	} else if cond.Value != nil {
		compareValue = cond.Value
	}
	if compareValue == nil {
		compareValue = &quote.Price
	}
	return comparator(cond.Operator)(basePrice, *compareValue)
}

func (e *ConditionEvaluator) volumeSatisfied(ctx context.Context, cond *models.Condition, symbol string, quote *marketdata.Quote) bool {
	cmp := comparator(cond.Operator)

	if cond.Basis == "average" {
		window := cond.Window
		if window <= 0 {
			window = 20
		}
		avg := e.indicators.GetValue(ctx, symbol, &models.Condition{
			Indicator: "volume",
			Window:    window,
			Period:    cond.Period,
			Interval:  cond.Interval,
		})
		if avg == nil || cond.Value == nil {
			return true
		}
		return cmp(*avg, *cond.Value)
	}

	if quote.Volume == nil || cond.Value == nil {
		return true
	}
	return cmp(*quote.Volume, *cond.Value)
}
