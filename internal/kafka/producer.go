package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/trogers1052/paper-trading-service/internal/models"
)

// Producer publishes order and trade lifecycle events to Kafka. It
// implements the engine's EventPublisher.
type Producer struct {
	writer *kafka.Writer
	topic  string
}

// NewProducer creates a new Kafka producer
func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
	}

	return &Producer{
		writer: writer,
		topic:  topic,
	}
}

// PublishOrderEvent publishes an order lifecycle event, keyed by symbol.
func (p *Producer) PublishOrderEvent(ctx context.Context, eventType string, order *models.Order, reason string) error {
	event := models.OrderEventMessage{
		EventType: eventType,
		Symbol:    order.Symbol,
		Order:     order,
		Reason:    reason,
		Timestamp: time.Now(),
	}
	return p.publish(ctx, order.Symbol, event)
}

// PublishTradeEvent publishes an executed fill, keyed by symbol.
func (p *Producer) PublishTradeEvent(ctx context.Context, trade *models.Trade) error {
	event := models.TradeEventMessage{
		EventType: models.EventTypeTradeExecuted,
		Symbol:    trade.Symbol,
		Trade:     trade,
		Timestamp: time.Now(),
	}
	return p.publish(ctx, trade.Symbol, event)
}

func (p *Producer) publish(ctx context.Context, key string, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: data,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}

	return nil
}

// Close closes the Kafka producer
func (p *Producer) Close() error {
	return p.writer.Close()
}
