package engine

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trogers1052/paper-trading-service/internal/indicator"
	"github.com/trogers1052/paper-trading-service/internal/marketdata"
	"github.com/trogers1052/paper-trading-service/internal/models"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func decP(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func newTestEvaluator(provider marketdata.Provider) *ConditionEvaluator {
	return NewConditionEvaluator(provider, indicator.NewService(provider, nil))
}

func TestConditionEvaluatorPrice(t *testing.T) {
	provider := marketdata.NewStaticProvider()
	evaluator := newTestEvaluator(provider)
	quote := &marketdata.Quote{Symbol: "AAPL", Price: dec("150")}
	now := time.Now()

	tests := []struct {
		name     string
		operator string
		value    string
		want     bool
	}{
		{"gt satisfied", "gt", "140", true},
		{"gt not satisfied", "gt", "150", false},
		{"gte at boundary", "gte", "150", true},
		{"lt satisfied", "lt", "160", true},
		{"lte not satisfied", "lte", "140", false},
		{"eq satisfied", "eq", "150", true},
		{"unknown operator defaults to gte", "above", "150", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cond := &models.Condition{
				Type:     models.ConditionPrice,
				Operator: tt.operator,
				Value:    decP(tt.value),
			}
			assert.Equal(t, tt.want, evaluator.Satisfied(context.Background(), cond, "AAPL", quote, now))
		})
	}

	t.Run("nil condition passes", func(t *testing.T) {
		assert.True(t, evaluator.Satisfied(context.Background(), nil, "AAPL", quote, now))
	})

	t.Run("missing value fails open", func(t *testing.T) {
		cond := &models.Condition{Type: models.ConditionPrice, Operator: "gt"}
		assert.True(t, evaluator.Satisfied(context.Background(), cond, "AAPL", quote, now))
	})
}

func TestConditionEvaluatorTime(t *testing.T) {
	provider := marketdata.NewStaticProvider()
	evaluator := newTestEvaluator(provider)
	quote := &marketdata.Quote{Symbol: "AAPL", Price: dec("150")}
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	t.Run("future timestamp blocks", func(t *testing.T) {
		cond := &models.Condition{Type: models.ConditionTime, Timestamp: "2026-08-28T13:00:00Z"}
		assert.False(t, evaluator.Satisfied(context.Background(), cond, "AAPL", quote, now))
	})

	t.Run("past timestamp passes", func(t *testing.T) {
		cond := &models.Condition{Type: models.ConditionTime, Timestamp: "2026-08-28T11:00:00Z"}
		assert.True(t, evaluator.Satisfied(context.Background(), cond, "AAPL", quote, now))
	})

	t.Run("malformed timestamp fails open", func(t *testing.T) {
		cond := &models.Condition{Type: models.ConditionTime, Timestamp: "next tuesday"}
		assert.True(t, evaluator.Satisfied(context.Background(), cond, "AAPL", quote, now))
	})
}

func TestConditionEvaluatorIndicator(t *testing.T) {
	provider := marketdata.NewStaticProvider()
	evaluator := newTestEvaluator(provider)
	quote := &marketdata.Quote{Symbol: "AAPL", Price: dec("150")}
	now := time.Now()

	t.Run("insufficient history fails open", func(t *testing.T) {
		cond := &models.Condition{
			Type:      models.ConditionIndicator,
			Indicator: "sma",
			Window:    5,
			Operator:  "gt",
			Value:     decP("100"),
		}
		assert.True(t, evaluator.Satisfied(context.Background(), cond, "AAPL", quote, now))
	})

	t.Run("sma compared against threshold", func(t *testing.T) {
		bars := make([]marketdata.Bar, 5)
		for i := range bars {
			bars[i] = marketdata.Bar{Close: dec("100"), Volume: dec("1000")}
		}
		provider.SetHistory("AAPL", bars)

		cond := &models.Condition{
			Type:      models.ConditionIndicator,
			Indicator: "sma",
			Window:    5,
			Operator:  "lt",
			Value:     decP("110"),
		}
		assert.True(t, evaluator.Satisfied(context.Background(), cond, "AAPL", quote, now))

		cond.Operator = "gt"
		assert.False(t, evaluator.Satisfied(context.Background(), cond, "AAPL", quote, now))
	})
}

func TestConditionEvaluatorCrossSymbol(t *testing.T) {
	provider := marketdata.NewStaticProvider()
	provider.SetQuote("MSFT", marketdata.Quote{Price: dec("400")})
	evaluator := newTestEvaluator(provider)
	quote := &marketdata.Quote{Symbol: "AAPL", Price: dec("150")}
	now := time.Now()

	t.Run("compares another symbol to a value", func(t *testing.T) {
		cond := &models.Condition{
			Type:     models.ConditionCrossSymbol,
			Symbol:   "MSFT",
			Operator: "gt",
			Value:    decP("390"),
		}
		assert.True(t, evaluator.Satisfied(context.Background(), cond, "AAPL", quote, now))
	})

	t.Run("compares two symbols", func(t *testing.T) {
		cond := &models.Condition{
			Type:          models.ConditionCrossSymbol,
			Symbol:        "MSFT",
			CompareSymbol: "AAPL",
			Operator:      "gt",
		}
		assert.True(t, evaluator.Satisfied(context.Background(), cond, "AAPL", quote, now))
	})

	t.Run("unavailable quote fails open", func(t *testing.T) {
		cond := &models.Condition{
			Type:     models.ConditionCrossSymbol,
			Symbol:   "NVDA",
			Operator: "lt",
			Value:    decP("1"),
		}
		assert.True(t, evaluator.Satisfied(context.Background(), cond, "AAPL", quote, now))
	})
}

func TestConditionEvaluatorVolume(t *testing.T) {
	provider := marketdata.NewStaticProvider()
	evaluator := newTestEvaluator(provider)
	now := time.Now()

	t.Run("spot volume", func(t *testing.T) {
		quote := &marketdata.Quote{Symbol: "AAPL", Price: dec("150"), Volume: decP("50000")}
		cond := &models.Condition{Type: models.ConditionVolume, Operator: "gt", Value: decP("40000")}
		assert.True(t, evaluator.Satisfied(context.Background(), cond, "AAPL", quote, now))

		cond.Value = decP("60000")
		assert.False(t, evaluator.Satisfied(context.Background(), cond, "AAPL", quote, now))
	})

	t.Run("missing spot volume fails open", func(t *testing.T) {
		quote := &marketdata.Quote{Symbol: "AAPL", Price: dec("150")}
		cond := &models.Condition{Type: models.ConditionVolume, Operator: "gt", Value: decP("40000")}
		assert.True(t, evaluator.Satisfied(context.Background(), cond, "AAPL", quote, now))
	})

	t.Run("average volume over window", func(t *testing.T) {
		bars := make([]marketdata.Bar, 20)
		for i := range bars {
			bars[i] = marketdata.Bar{Close: dec("100"), Volume: dec("1000")}
		}
		provider.SetHistory("AAPL", bars)

		quote := &marketdata.Quote{Symbol: "AAPL", Price: dec("150")}
		cond := &models.Condition{
			Type:     models.ConditionVolume,
			Basis:    "average",
			Operator: "gte",
			Value:    decP("1000"),
		}
		assert.True(t, evaluator.Satisfied(context.Background(), cond, "AAPL", quote, now))
	})
}

func TestConditionEvaluatorGroups(t *testing.T) {
	provider := marketdata.NewStaticProvider()
	provider.SetQuote("MSFT", marketdata.Quote{Price: dec("400")})
	evaluator := newTestEvaluator(provider)
	quote := &marketdata.Quote{Symbol: "AAPL", Price: dec("150")}
	now := time.Now()

	priceAbove := func(value string) models.Condition {
		return models.Condition{Type: models.ConditionPrice, Operator: "gt", Value: decP(value)}
	}

	t.Run("and group requires all children", func(t *testing.T) {
		cond := &models.Condition{
			Type:       models.ConditionAndGroup,
			Conditions: []models.Condition{priceAbove("100"), priceAbove("200")},
		}
		assert.False(t, evaluator.Satisfied(context.Background(), cond, "AAPL", quote, now))

		cond.Conditions = []models.Condition{priceAbove("100"), priceAbove("140")}
		assert.True(t, evaluator.Satisfied(context.Background(), cond, "AAPL", quote, now))
	})

	t.Run("or group requires any child", func(t *testing.T) {
		cond := &models.Condition{
			Type:       models.ConditionOrGroup,
			Conditions: []models.Condition{priceAbove("200"), priceAbove("100")},
		}
		assert.True(t, evaluator.Satisfied(context.Background(), cond, "AAPL", quote, now))

		cond.Conditions = []models.Condition{priceAbove("200"), priceAbove("300")}
		assert.False(t, evaluator.Satisfied(context.Background(), cond, "AAPL", quote, now))
	})

	t.Run("group evaluation does not short circuit", func(t *testing.T) {
		before := provider.QuoteCalls["MSFT"]
		cond := &models.Condition{
			Type: models.ConditionOrGroup,
			Conditions: []models.Condition{
				priceAbove("100"),
				{Type: models.ConditionCrossSymbol, Symbol: "MSFT", Operator: "gt", Value: decP("1")},
			},
		}
		require.True(t, evaluator.Satisfied(context.Background(), cond, "AAPL", quote, now))
		assert.Equal(t, before+1, provider.QuoteCalls["MSFT"], "second child should still be evaluated")
	})

	t.Run("group evaluation leaves children untouched", func(t *testing.T) {
		child := priceAbove("100")
		cond := &models.Condition{
			Type:       models.ConditionAndGroup,
			Conditions: []models.Condition{child},
		}
		require.True(t, evaluator.Satisfied(context.Background(), cond, "AAPL", quote, now))
		assert.Equal(t, child, cond.Conditions[0])
	})
}
