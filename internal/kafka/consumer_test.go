package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trogers1052/paper-trading-service/internal/models"
)

// MockOrderRepository implements OrderRepository for testing
type MockOrderRepository struct {
	orders map[string]*models.Order
}

func NewMockOrderRepository() *MockOrderRepository {
	return &MockOrderRepository{orders: make(map[string]*models.Order)}
}

func (m *MockOrderRepository) GetOrderByClientOrderID(_ context.Context, clientOrderID string) (*models.Order, error) {
	order, ok := m.orders[clientOrderID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return order, nil
}

// MockSubmitter implements OrderSubmitter for testing
type MockSubmitter struct {
	repo      *MockOrderRepository
	submitted []*models.Order
	nextID    int
}

func (m *MockSubmitter) SubmitOrder(_ context.Context, order *models.Order) error {
	m.nextID++
	order.ID = m.nextID
	m.submitted = append(m.submitted, order)
	if m.repo != nil && order.ClientOrderID != "" {
		m.repo.orders[order.ClientOrderID] = order
	}
	return nil
}

func orderRequestMessage(t *testing.T, request models.OrderRequest) kafka.Message {
	t.Helper()
	event := models.OrderRequestEvent{
		EventType: models.EventTypeOrderRequested,
		Source:    "bot-service",
		Data:      request,
		Timestamp: time.Now(),
	}
	data, err := json.Marshal(event)
	require.NoError(t, err)
	return kafka.Message{Key: []byte(request.Symbol), Value: data}
}

func TestProcessMessageSubmitsOrder(t *testing.T) {
	repo := NewMockOrderRepository()
	submitter := &MockSubmitter{repo: repo}
	consumer := &Consumer{repo: repo, submitter: submitter}

	qty := decimal.NewFromInt(10)
	limit := decimal.NewFromFloat(150.50)
	msg := orderRequestMessage(t, models.OrderRequest{
		ClientOrderID: "bot-42-1",
		PortfolioID:   1,
		Symbol:        "AAPL",
		Side:          models.SideBuy,
		OrderType:     models.OrderTypeLimit,
		TIF:           models.TIFGTC,
		Quantity:      &qty,
		LimitPrice:    &limit,
	})

	require.NoError(t, consumer.processMessage(context.Background(), msg))

	require.Len(t, submitter.submitted, 1)
	order := submitter.submitted[0]
	assert.Equal(t, "AAPL", order.Symbol)
	assert.Equal(t, models.OrderTypeLimit, order.OrderType)
	assert.Equal(t, "bot-42-1", order.ClientOrderID)
	require.NotNil(t, order.LimitPrice)
	assert.Equal(t, "150.5", order.LimitPrice.String())
}

func TestProcessMessageIsIdempotent(t *testing.T) {
	repo := NewMockOrderRepository()
	submitter := &MockSubmitter{repo: repo}
	consumer := &Consumer{repo: repo, submitter: submitter}

	qty := decimal.NewFromInt(5)
	msg := orderRequestMessage(t, models.OrderRequest{
		ClientOrderID: "bot-42-2",
		PortfolioID:   1,
		Symbol:        "MSFT",
		Side:          models.SideBuy,
		OrderType:     models.OrderTypeMarket,
		Quantity:      &qty,
	})

	require.NoError(t, consumer.processMessage(context.Background(), msg))
	// Redelivery of the same request must not create a second order.
	require.NoError(t, consumer.processMessage(context.Background(), msg))

	assert.Len(t, submitter.submitted, 1)
}

func TestProcessMessageIgnoresOtherEventTypes(t *testing.T) {
	repo := NewMockOrderRepository()
	submitter := &MockSubmitter{repo: repo}
	consumer := &Consumer{repo: repo, submitter: submitter}

	event := models.OrderRequestEvent{
		EventType: models.EventTypeOrderFilled,
		Timestamp: time.Now(),
	}
	data, err := json.Marshal(event)
	require.NoError(t, err)

	require.NoError(t, consumer.processMessage(context.Background(), kafka.Message{Value: data}))
	assert.Empty(t, submitter.submitted)
}

func TestProcessMessageRejectsMalformedPayload(t *testing.T) {
	consumer := &Consumer{repo: NewMockOrderRepository(), submitter: &MockSubmitter{}}

	err := consumer.processMessage(context.Background(), kafka.Message{Value: []byte("not json")})
	assert.Error(t, err)
}
