package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trogers1052/paper-trading-service/internal/engine"
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

// fakeRepo is an in-memory Repository for runner tests.
type fakeRepo struct {
	strategies []*models.Strategy
	portfolios []*models.Portfolio
	positions  []*models.Position
	runLogs    []*models.StrategyRunLog
	lastRuns   map[int]time.Time
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{lastRuns: make(map[int]time.Time)}
}

func (f *fakeRepo) ListActiveStrategies(context.Context) ([]*models.Strategy, error) {
	return f.strategies, nil
}

func (f *fakeRepo) UpdateStrategyLastRun(_ context.Context, strategyID int, runAt time.Time) error {
	f.lastRuns[strategyID] = runAt
	return nil
}

func (f *fakeRepo) CreateRunLog(_ context.Context, runLog *models.StrategyRunLog) error {
	f.runLogs = append(f.runLogs, runLog)
	return nil
}

func (f *fakeRepo) ListActivePortfoliosByUser(_ context.Context, userID int) ([]*models.Portfolio, error) {
	var out []*models.Portfolio
	for _, p := range f.portfolios {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeRepo) GetPositionBySymbol(_ context.Context, portfolioID int, symbol string) (*models.Position, error) {
	for _, p := range f.positions {
		if p.PortfolioID == portfolioID && p.Symbol == symbol {
			return p, nil
		}
	}
	return nil, models.ErrNotFound
}

// fakePlacer records submitted orders and assigns ids.
type fakePlacer struct {
	nextID int
	orders []*models.Order
	reject bool
}

func (f *fakePlacer) SubmitOrder(_ context.Context, order *models.Order) error {
	if f.reject {
		return &engine.RejectionError{Reason: "rejected"}
	}
	f.nextID++
	order.ID = f.nextID
	f.orders = append(f.orders, order)
	return nil
}

func newTestRunner(repo *fakeRepo, provider marketdata.Provider, placer *fakePlacer) *Runner {
	rules := engine.NewConditionEvaluator(provider, indicator.NewService(provider, nil))
	return NewRunner(repo, provider, rules, placer)
}

func alwaysTrueRule() *models.RuleNode {
	return &models.RuleNode{
		Type: "rule",
		Condition: &models.Condition{
			Type:     models.ConditionPrice,
			Operator: "gte",
			Value:    decP("0"),
		},
	}
}

func testStrategy(config models.StrategyConfig) *models.Strategy {
	return &models.Strategy{ID: 1, UserID: 1, Name: "test", Config: config, IsActive: true}
}

func TestRunnerGeneratesEntryOrderWithPercentSizing(t *testing.T) {
	repo := newFakeRepo()
	provider := marketdata.NewStaticProvider()
	provider.SetQuote("AAPL", marketdata.Quote{Price: dec("105")})
	placer := &fakePlacer{}

	repo.portfolios = []*models.Portfolio{{
		ID: 1, UserID: 1, Status: models.PortfolioStatusActive,
		Equity: dec("100000"), CashBalance: dec("100000"),
	}}
	repo.strategies = []*models.Strategy{testStrategy(models.StrategyConfig{
		Symbols:   []string{"AAPL"},
		Frequency: models.Frequency5m,
		Entry: &models.RuleBlock{
			Rules: alwaysTrueRule(),
			Order: &models.OrderTemplate{
				Side:        models.SideBuy,
				OrderType:   models.OrderTypeLimit,
				LimitPrice:  decP("105"),
				QuantityPct: decP("10"),
			},
		},
	})}

	runner := newTestRunner(repo, provider, placer)
	require.NoError(t, runner.Run(context.Background()))

	require.Len(t, placer.orders, 1)
	order := placer.orders[0]
	assert.Equal(t, "AAPL", order.Symbol)
	assert.Equal(t, models.SideBuy, order.Side)
	assert.Equal(t, models.OrderTypeLimit, order.OrderType)
	assert.Equal(t, "105", order.LimitPrice.String())
	// 10% of 100000 equity.
	require.NotNil(t, order.Quantity)
	assert.Equal(t, "10000", order.Quantity.String())
	require.NotNil(t, order.StrategyID)
	assert.Equal(t, 1, *order.StrategyID)

	require.Len(t, repo.runLogs, 1)
	assert.Equal(t, models.RunStatusSuccess, repo.runLogs[0].Status)
	assert.Equal(t, []int{order.ID}, repo.runLogs[0].GeneratedOrders)
}

func TestRunnerFrequencyGate(t *testing.T) {
	repo := newFakeRepo()
	provider := marketdata.NewStaticProvider()
	provider.SetQuote("AAPL", marketdata.Quote{Price: dec("100")})
	placer := &fakePlacer{}

	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	lastRun := now.Add(-2 * time.Minute)
	s := testStrategy(models.StrategyConfig{
		Symbols:   []string{"AAPL"},
		Frequency: models.Frequency5m,
		Entry: &models.RuleBlock{
			Rules: alwaysTrueRule(),
			Order: &models.OrderTemplate{Quantity: decP("1")},
		},
	})
	s.LastRunAt = &lastRun

	repo.portfolios = []*models.Portfolio{{ID: 1, UserID: 1, Status: models.PortfolioStatusActive}}
	repo.strategies = []*models.Strategy{s}

	runner := newTestRunner(repo, provider, placer)
	runner.SetClock(func() time.Time { return now })

	// Only two minutes since the last run of a 5m strategy.
	require.NoError(t, runner.Run(context.Background()))
	assert.Empty(t, placer.orders)

	runner.SetClock(func() time.Time { return now.Add(4 * time.Minute) })
	require.NoError(t, runner.Run(context.Background()))
	assert.Len(t, placer.orders, 1)
}

func TestRunnerExitRequiresPosition(t *testing.T) {
	repo := newFakeRepo()
	provider := marketdata.NewStaticProvider()
	provider.SetQuote("AAPL", marketdata.Quote{Price: dec("100")})
	placer := &fakePlacer{}

	repo.portfolios = []*models.Portfolio{{
		ID: 1, UserID: 1, Status: models.PortfolioStatusActive, Equity: dec("100000"),
	}}
	repo.strategies = []*models.Strategy{testStrategy(models.StrategyConfig{
		Symbols:   []string{"AAPL"},
		Frequency: models.Frequency5m,
		Exit: &models.RuleBlock{
			Rules: alwaysTrueRule(),
			Order: &models.OrderTemplate{Quantity: decP("5")},
		},
	})}

	runner := newTestRunner(repo, provider, placer)

	// No position: the exit rule matches but no order is generated.
	require.NoError(t, runner.Run(context.Background()))
	assert.Empty(t, placer.orders)
	require.Len(t, repo.runLogs, 1)
	assert.Equal(t, models.RunStatusSkipped, repo.runLogs[0].Status)

	repo.positions = []*models.Position{{
		PortfolioID: 1, Symbol: "AAPL", Quantity: dec("5"),
	}}
	repo.strategies[0].LastRunAt = nil
	repo.runLogs = nil

	require.NoError(t, runner.Run(context.Background()))
	require.Len(t, placer.orders, 1)
	assert.Equal(t, models.SideSell, placer.orders[0].Side)
}

func TestRunnerRuleTrees(t *testing.T) {
	repo := newFakeRepo()
	provider := marketdata.NewStaticProvider()
	provider.SetQuote("AAPL", marketdata.Quote{Price: dec("150")})
	placer := &fakePlacer{}

	priceRule := func(operator, value string) *models.RuleNode {
		return &models.RuleNode{
			Type: "rule",
			Condition: &models.Condition{
				Type: models.ConditionPrice, Operator: operator, Value: decP(value),
			},
		}
	}

	repo.portfolios = []*models.Portfolio{{ID: 1, UserID: 1, Status: models.PortfolioStatusActive}}
	repo.strategies = []*models.Strategy{testStrategy(models.StrategyConfig{
		Symbols:   []string{"AAPL"},
		Frequency: models.Frequency5m,
		Entry: &models.RuleBlock{
			Rules: &models.RuleNode{
				Type: "and",
				Conditions: []*models.RuleNode{
					priceRule("gt", "100"),
					{
						Type: "or",
						Conditions: []*models.RuleNode{
							priceRule("lt", "120"),
							priceRule("gt", "140"),
						},
					},
				},
			},
			Order: &models.OrderTemplate{Quantity: decP("1")},
		},
	})}

	runner := newTestRunner(repo, provider, placer)
	require.NoError(t, runner.Run(context.Background()))
	assert.Len(t, placer.orders, 1, "price 150 satisfies gt 100 and (lt 120 or gt 140)")
}

func TestRunnerTemplateMerge(t *testing.T) {
	repo := newFakeRepo()
	provider := marketdata.NewStaticProvider()
	provider.SetQuote("AAPL", marketdata.Quote{Price: dec("100")})
	placer := &fakePlacer{}

	repo.portfolios = []*models.Portfolio{{ID: 1, UserID: 1, Status: models.PortfolioStatusActive}}
	repo.strategies = []*models.Strategy{testStrategy(models.StrategyConfig{
		Symbols:   []string{"AAPL"},
		Frequency: models.Frequency5m,
		OrderTemplates: map[string]models.OrderTemplate{
			"base": {
				OrderType:  models.OrderTypeLimit,
				TIF:        models.TIFGTC,
				Quantity:   decP("10"),
				LimitPrice: decP("95"),
			},
		},
		Entry: &models.RuleBlock{
			Rules:    alwaysTrueRule(),
			Template: "base",
			Order:    &models.OrderTemplate{Quantity: decP("20")},
		},
	})}

	runner := newTestRunner(repo, provider, placer)
	require.NoError(t, runner.Run(context.Background()))

	require.Len(t, placer.orders, 1)
	order := placer.orders[0]
	// Inline override wins; untouched template fields survive.
	assert.Equal(t, "20", order.Quantity.String())
	assert.Equal(t, models.OrderTypeLimit, order.OrderType)
	assert.Equal(t, models.TIFGTC, order.TIF)
	assert.Equal(t, "95", order.LimitPrice.String())
}

func TestRunnerRejectedOrdersYieldSkippedLog(t *testing.T) {
	repo := newFakeRepo()
	provider := marketdata.NewStaticProvider()
	provider.SetQuote("AAPL", marketdata.Quote{Price: dec("100")})
	placer := &fakePlacer{reject: true}

	repo.portfolios = []*models.Portfolio{{ID: 1, UserID: 1, Status: models.PortfolioStatusActive}}
	repo.strategies = []*models.Strategy{testStrategy(models.StrategyConfig{
		Symbols:   []string{"AAPL"},
		Frequency: models.Frequency5m,
		Entry: &models.RuleBlock{
			Rules: alwaysTrueRule(),
			Order: &models.OrderTemplate{Quantity: decP("1")},
		},
	})}

	runner := newTestRunner(repo, provider, placer)
	require.NoError(t, runner.Run(context.Background()))

	require.Len(t, repo.runLogs, 1)
	assert.Equal(t, models.RunStatusSkipped, repo.runLogs[0].Status)
	assert.Empty(t, repo.runLogs[0].GeneratedOrders)
}

func TestRunnerDryRun(t *testing.T) {
	repo := newFakeRepo()
	provider := marketdata.NewStaticProvider()
	provider.SetQuote("AAPL", marketdata.Quote{Price: dec("100")})
	placer := &fakePlacer{}

	s := testStrategy(models.StrategyConfig{
		Symbols:   []string{"AAPL"},
		Frequency: models.Frequency5m,
		Entry: &models.RuleBlock{
			Rules: alwaysTrueRule(),
			Order: &models.OrderTemplate{Quantity: decP("3")},
		},
	})

	runner := newTestRunner(repo, provider, placer)
	orders, err := runner.DryRun(context.Background(), s)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "3", orders[0].Quantity.String())

	// Nothing was placed or logged.
	assert.Empty(t, placer.orders)
	assert.Empty(t, repo.runLogs)
}
