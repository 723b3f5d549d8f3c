// Package messaging publishes client update events (narration, sounds, turn
// announcements) to RabbitMQ for delivery by a separate websocket service.
// Publishing failures are logged and never fatal to the moderation pipeline.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Client update event types.
const (
	EventNarration    = "narration"
	EventSound        = "sound"
	EventTurnAdvanced = "turn_advanced"
	EventGameReset    = "game_reset"
)

// ClientUpdatePayload is one event delivered to connected clients.
type ClientUpdatePayload struct {
	Type      string    `json:"type"`
	Text      string    `json:"text,omitempty"`
	SoundID   string    `json:"sound_id,omitempty"`
	PlayerID  string    `json:"player_id,omitempty"`
	Name      string    `json:"player_name,omitempty"`
	Position  int       `json:"position,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// EventPublisher publishes client updates. Implementations must be safe to
// call from the orchestration flow; errors are for logging only.
type EventPublisher interface {
	PublishClientUpdate(ctx context.Context, payload ClientUpdatePayload) error
}

// RabbitMQEventPublisher публикует обновления клиентов в очередь client_updates.
type RabbitMQEventPublisher struct {
	conn      *amqp.Connection
	ch        *amqp.Channel
	queueName string
	logger    *zap.Logger
}

// NewRabbitMQEventPublisher opens a channel and declares the durable queue.
func NewRabbitMQEventPublisher(conn *amqp.Connection, queueName string, logger *zap.Logger) (*RabbitMQEventPublisher, error) {
	if conn == nil {
		return nil, fmt.Errorf("rabbitmq connection is nil")
	}

	ch, err := conn.Channel()
	if err != nil {
		logger.Error("Failed to open a channel for client updates", zap.Error(err))
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	_, err = ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		_ = ch.Close()
		logger.Error("Failed to declare client updates queue", zap.String("queue", queueName), zap.Error(err))
		return nil, fmt.Errorf("failed to declare queue %q: %w", queueName, err)
	}

	return &RabbitMQEventPublisher{
		conn:      conn,
		ch:        ch,
		queueName: queueName,
		logger:    logger.Named("EventPublisher"),
	}, nil
}

// PublishClientUpdate publishes one persistent JSON message.
func (p *RabbitMQEventPublisher) PublishClientUpdate(ctx context.Context, payload ClientUpdatePayload) error {
	if payload.Timestamp.IsZero() {
		payload.Timestamp = time.Now().UTC()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error("Failed to marshal client update payload", zap.Error(err))
		return fmt.Errorf("failed to marshal client update payload: %w", err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = p.ch.PublishWithContext(pubCtx,
		"",          // default exchange
		p.queueName, // routing key
		false,       // mandatory
		false,       // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    payload.Timestamp,
			Body:         body,
		},
	)
	if err != nil {
		p.logger.Error("Failed to publish client update", zap.String("type", payload.Type), zap.Error(err))
		return fmt.Errorf("failed to publish client update: %w", err)
	}

	p.logger.Debug("Client update published", zap.String("type", payload.Type))
	return nil
}

// Close closes the publisher channel.
func (p *RabbitMQEventPublisher) Close() error {
	return p.ch.Close()
}

// NoopEventPublisher drops all events. Used when RabbitMQ is not configured
// and in tests.
type NoopEventPublisher struct{}

func (NoopEventPublisher) PublishClientUpdate(context.Context, ClientUpdatePayload) error {
	return nil
}
