package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trogers1052/paper-trading-service/internal/engine"
	"github.com/trogers1052/paper-trading-service/internal/models"
)

func decPtr(s string) *decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return &d
}

func TestOrderRoundTrip(t *testing.T) {
	tdb := SetupTestDB(t)
	defer tdb.Cleanup(t)
	ctx := context.Background()
	tdb.TruncateAll(t)

	p := &models.Portfolio{UserID: 1, Name: "orders"}
	require.NoError(t, tdb.CreatePortfolio(ctx, p))

	nextRun := time.Now().Add(time.Minute).UTC().Truncate(time.Second)
	order := &models.Order{
		PortfolioID:     p.ID,
		ClientOrderID:   "client-123",
		Symbol:          "AAPL",
		Side:            models.SideBuy,
		OrderType:       models.OrderTypeAlgoTWAP,
		TIF:             models.TIFGTC,
		Quantity:        decPtr("50"),
		ReserveQuantity: decPtr("7"),
		Condition: &models.Condition{
			Type: models.ConditionPrice, Operator: "lt", Value: decPtr("200"),
		},
		AlgoParams:     &models.AlgoParams{Slices: 5, IntervalMinutes: 1},
		AlgoNextRunAt:  &nextRun,
		AlgoSliceIndex: 1,
		Status:         models.OrderStatusWorking,
		FilledQuantity: decimal.NewFromInt(7),
		Events: []models.OrderEvent{
			{Type: models.EventOrderAccepted, At: time.Now().UTC().Truncate(time.Second)},
		},
	}
	require.NoError(t, tdb.CreateOrder(ctx, order))
	require.NotZero(t, order.ID)

	got, err := tdb.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, "AAPL", got.Symbol)
	assert.Equal(t, models.OrderTypeAlgoTWAP, got.OrderType)
	require.NotNil(t, got.Quantity)
	assert.Equal(t, "50", got.Quantity.String())
	require.NotNil(t, got.ReserveQuantity)
	assert.Equal(t, "7", got.ReserveQuantity.String())
	require.NotNil(t, got.Condition)
	assert.Equal(t, models.ConditionPrice, got.Condition.Type)
	assert.Equal(t, "200", got.Condition.Value.String())
	require.NotNil(t, got.AlgoParams)
	assert.Equal(t, 5, got.AlgoParams.Slices)
	assert.Equal(t, 1, got.AlgoSliceIndex)
	require.NotNil(t, got.AlgoNextRunAt)
	assert.True(t, got.AlgoNextRunAt.Equal(nextRun))
	require.Len(t, got.Events, 1)
	assert.Equal(t, models.EventOrderAccepted, got.Events[0].Type)
	assert.Nil(t, got.LimitPrice)

	byClient, err := tdb.GetOrderByClientOrderID(ctx, "client-123")
	require.NoError(t, err)
	assert.Equal(t, order.ID, byClient.ID)

	got.Status = models.OrderStatusFilled
	got.FilledQuantity = decimal.NewFromInt(50)
	got.AverageFillPrice = decPtr("150.25")
	require.NoError(t, tdb.UpdateOrder(ctx, got))

	updated, err := tdb.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusFilled, updated.Status)
	require.NotNil(t, updated.AverageFillPrice)
	assert.Equal(t, "150.25", updated.AverageFillPrice.String())
}

func TestListOpenAndDueAlgoOrders(t *testing.T) {
	tdb := SetupTestDB(t)
	defer tdb.Cleanup(t)
	ctx := context.Background()
	tdb.TruncateAll(t)

	p := &models.Portfolio{UserID: 1, Name: "open orders"}
	require.NoError(t, tdb.CreatePortfolio(ctx, p))

	mkOrder := func(orderType, status string, nextRun *time.Time) *models.Order {
		o := &models.Order{
			PortfolioID: p.ID, Symbol: "AAPL", Side: models.SideBuy,
			OrderType: orderType, TIF: models.TIFGTC,
			Quantity: decPtr("10"), Status: status, AlgoNextRunAt: nextRun,
		}
		require.NoError(t, tdb.CreateOrder(ctx, o))
		return o
	}

	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	open := mkOrder(models.OrderTypeLimit, models.OrderStatusWorking, nil)
	mkOrder(models.OrderTypeLimit, models.OrderStatusFilled, nil)
	dueAlgo := mkOrder(models.OrderTypeAlgoTWAP, models.OrderStatusWorking, &past)
	neverRan := mkOrder(models.OrderTypeAlgoVWAP, models.OrderStatusNew, nil)
	mkOrder(models.OrderTypeAlgoTWAP, models.OrderStatusWorking, &future)

	openOrders, err := tdb.ListOpenOrders(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, openOrders, 4, "terminal orders are excluded")

	due, err := tdb.ListDueAlgoOrders(ctx, p.ID, now)
	require.NoError(t, err)
	require.Len(t, due, 2)
	ids := []int{due[0].ID, due[1].ID}
	assert.Contains(t, ids, dueAlgo.ID)
	assert.Contains(t, ids, neverRan.ID)
	assert.NotContains(t, ids, open.ID)
}

func TestListChildOrders(t *testing.T) {
	tdb := SetupTestDB(t)
	defer tdb.Cleanup(t)
	ctx := context.Background()
	tdb.TruncateAll(t)

	p := &models.Portfolio{UserID: 1, Name: "chains"}
	require.NoError(t, tdb.CreatePortfolio(ctx, p))

	parent := &models.Order{
		PortfolioID: p.ID, Symbol: "AAPL", Side: models.SideBuy,
		OrderType: models.OrderTypeBracket, TIF: models.TIFGTC,
		Quantity: decPtr("10"), Status: models.OrderStatusWorking,
	}
	require.NoError(t, tdb.CreateOrder(ctx, parent))

	for _, role := range []string{models.ChildRoleTP, models.ChildRoleSL} {
		child := &models.Order{
			PortfolioID: p.ID, Symbol: "AAPL", Side: models.SideSell,
			OrderType: models.OrderTypeLimit, TIF: models.TIFGTC,
			Quantity: decPtr("10"), LimitPrice: decPtr("110"),
			Status: models.OrderStatusNew, ParentID: &parent.ID, ChildRole: role,
		}
		require.NoError(t, tdb.CreateOrder(ctx, child))
	}

	children, err := tdb.ListChildOrders(ctx, parent.ID)
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, models.ChildRoleTP, children[0].ChildRole)
	assert.Equal(t, models.ChildRoleSL, children[1].ChildRole)
}

func TestInTxRollsBackOnError(t *testing.T) {
	tdb := SetupTestDB(t)
	defer tdb.Cleanup(t)
	ctx := context.Background()
	tdb.TruncateAll(t)

	p := &models.Portfolio{UserID: 1, Name: "tx"}
	require.NoError(t, tdb.CreatePortfolio(ctx, p))

	boom := errors.New("boom")
	err := tdb.InTx(ctx, func(tx engine.Store) error {
		if err := tx.UpsertPosition(ctx, &models.Position{
			PortfolioID: p.ID, Symbol: "AAPL",
			Quantity: decimal.NewFromInt(10), AvgPrice: decimal.NewFromInt(100),
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	positions, err := tdb.ListPositions(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, positions, "rolled back writes must not be visible")
}
