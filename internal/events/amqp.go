package events

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Exchange is the fanout exchange lifecycle events are published to.
const Exchange = "openethics_events"

// wireEvent is the outbound document. Only created, accepted and rejected
// cross the wire; submitted stays internal to the portal.
type wireEvent struct {
	Application int64  `json:"application"`
	EventType   string `json:"event_type"`
}

// AMQPPublisher publishes lifecycle events to a RabbitMQ fanout exchange.
type AMQPPublisher struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	logger *zap.Logger
}

func NewAMQPPublisher(url string, logger *zap.Logger) (*AMQPPublisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(Exchange, "fanout", false, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", Exchange, err)
	}
	return &AMQPPublisher{conn: conn, ch: ch, logger: logger}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, e Event) error {
	switch e.Type {
	case TypeCreated, TypeAccepted, TypeRejected:
	default:
		return nil
	}
	body, err := json.Marshal(wireEvent{Application: e.Application, EventType: string(e.Type)})
	if err != nil {
		return err
	}
	err = p.ch.PublishWithContext(ctx, Exchange, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
	if err != nil {
		return fmt.Errorf("publish %s event: %w", e.Type, err)
	}
	p.logger.Debug("lifecycle event published",
		zap.Int64("application_id", e.Application),
		zap.String("event_type", string(e.Type)))
	return nil
}

func (p *AMQPPublisher) Close() error {
	if err := p.ch.Close(); err != nil {
		p.conn.Close()
		return err
	}
	return p.conn.Close()
}
