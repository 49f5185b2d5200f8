package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Publisher handles message publishing to RabbitMQ
type Publisher struct {
	conn       *Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string
	logger     *zap.Logger
}

// NewPublisher creates a publisher for analysis events on exchange
func NewPublisher(conn *Connection, exchange, routingKey string, logger *zap.Logger) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &Publisher{
		conn:       conn,
		channel:    ch,
		exchange:   exchange,
		routingKey: routingKey,
		logger:     logger,
	}, nil
}

// AnalysisCompletedEvent is published once an analysis run is stored
type AnalysisCompletedEvent struct {
	RunID        uuid.UUID `json:"run_id"`
	RequestID    string    `json:"request_id"`
	Kind         string    `json:"kind"`
	Status       string    `json:"status"`
	SensorIDs    []string  `json:"sensor_ids,omitempty"`
	AnomalyCount *int      `json:"anomaly_count,omitempty"`
	Error        *string   `json:"error,omitempty"`
	CompletedAt  time.Time `json:"completed_at"`
}

// PublishAnalysisCompleted publishes a run completion event
func (p *Publisher) PublishAnalysisCompleted(ctx context.Context, event AnalysisCompletedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = p.channel.PublishWithContext(
		ctx,
		p.exchange,
		p.routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:   "application/json",
			CorrelationId: event.RequestID,
			MessageId:     event.RunID.String(),
			Timestamp:     event.CompletedAt,
			Body:          body,
			DeliveryMode:  amqp.Persistent,
		},
	)

	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug("published analysis event",
		zap.String("routing_key", p.routingKey),
		zap.String("run_id", event.RunID.String()),
		zap.String("kind", event.Kind),
		zap.String("status", event.Status),
	)

	return nil
}

// Close closes the publisher channel
func (p *Publisher) Close() error {
	if p.channel != nil {
		return p.channel.Close()
	}
	return nil
}
