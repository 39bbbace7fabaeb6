package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/trogers1052/paper-trading-service/internal/models"
)

// OrderRepository defines the order lookups the consumer needs for
// idempotent ingestion.
type OrderRepository interface {
	GetOrderByClientOrderID(ctx context.Context, clientOrderID string) (*models.Order, error)
}

// OrderSubmitter places orders received from the event bus. The engine
// implements it.
type OrderSubmitter interface {
	SubmitOrder(ctx context.Context, order *models.Order) error
}

// Consumer ingests ORDER_REQUESTED events from upstream services (bots,
// alerting) and submits them as paper orders. Requests carry a
// client_order_id so redelivered messages are ignored.
type Consumer struct {
	reader    *kafka.Reader
	repo      OrderRepository
	submitter OrderSubmitter
}

// NewConsumer creates a new Kafka consumer for order request events
func NewConsumer(brokers []string, topic, groupID string, repo OrderRepository, submitter OrderSubmitter) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		MaxWait:        1 * time.Second,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: time.Second,
	})

	return &Consumer{
		reader:    reader,
		repo:      repo,
		submitter: submitter,
	}
}

// Start begins consuming messages from Kafka
func (c *Consumer) Start(ctx context.Context) error {
	log.Printf("Starting Kafka consumer for topic: %s", c.reader.Config().Topic)

	for {
		select {
		case <-ctx.Done():
			log.Println("Kafka consumer shutting down...")
			return c.reader.Close()
		default:
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil // Context cancelled, normal shutdown
				}
				log.Printf("Error reading message: %v", err)
				continue
			}

			if err := c.processMessage(ctx, msg); err != nil {
				log.Printf("Error processing message: %v", err)
				// Continue processing other messages
			}
		}
	}
}

// processMessage handles a single Kafka message
func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message) error {
	log.Printf("Received message from partition %d offset %d: key=%s",
		msg.Partition, msg.Offset, string(msg.Key))

	var event models.OrderRequestEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal order request event: %w", err)
	}

	if event.EventType != models.EventTypeOrderRequested {
		log.Printf("Ignoring event type: %s", event.EventType)
		return nil
	}

	return c.handleOrderRequest(ctx, event.Data)
}

// handleOrderRequest submits one order request, skipping requests already
// seen by client order id.
func (c *Consumer) handleOrderRequest(ctx context.Context, request models.OrderRequest) error {
	if request.ClientOrderID != "" {
		existing, err := c.repo.GetOrderByClientOrderID(ctx, request.ClientOrderID)
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("failed to check for duplicate order: %w", err)
		}
		if existing != nil {
			log.Printf("Order %s already exists as %d, skipping", request.ClientOrderID, existing.ID)
			return nil
		}
	}

	order := &models.Order{
		PortfolioID:     request.PortfolioID,
		ClientOrderID:   request.ClientOrderID,
		Symbol:          request.Symbol,
		Side:            request.Side,
		OrderType:       request.OrderType,
		TIF:             request.TIF,
		Quantity:        request.Quantity,
		Notional:        request.Notional,
		LimitPrice:      request.LimitPrice,
		StopPrice:       request.StopPrice,
		TrailAmount:     request.TrailAmount,
		TrailPercent:    request.TrailPercent,
		ReserveQuantity: request.ReserveQuantity,
		ExtendedHours:   request.ExtendedHours,
		Condition:       request.Condition,
	}
	if err := c.submitter.SubmitOrder(ctx, order); err != nil {
		return fmt.Errorf("failed to submit requested order: %w", err)
	}

	log.Printf("Submitted order %d for %s from order request %s",
		order.ID, order.Symbol, request.ClientOrderID)
	return nil
}

// Close closes the Kafka consumer
func (c *Consumer) Close() error {
	return c.reader.Close()
}
