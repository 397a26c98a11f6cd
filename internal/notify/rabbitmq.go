package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Publisher is the part of *amqp.Channel the notifier uses
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// RabbitNotifier publishes notifications to a durable queue for the mailer
type RabbitNotifier struct {
	conn      io.Closer
	channel   Publisher
	queueName string
	logger    *zap.Logger
}

// DialRabbit connects to the broker and declares the notification queue
func DialRabbit(url, queueName string, logger *zap.Logger) (*RabbitNotifier, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	_, err = ch.QueueDeclare(queueName, true, false, false, false, nil)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queueName, err)
	}

	logger.Info("Connected to RabbitMQ", zap.String("queue", queueName))

	n := NewRabbitNotifier(ch, queueName, logger)
	n.conn = conn
	return n, nil
}

func NewRabbitNotifier(ch Publisher, queueName string, logger *zap.Logger) *RabbitNotifier {
	return &RabbitNotifier{channel: ch, queueName: queueName, logger: logger}
}

func (n *RabbitNotifier) Name() string { return "rabbitmq" }

func (n *RabbitNotifier) SendBookingConfirmation(ctx context.Context, e Event) error {
	return n.Send(ctx, e)
}

func (n *RabbitNotifier) SendBookingCancellation(ctx context.Context, e Event) error {
	return n.Send(ctx, e)
}

func (n *RabbitNotifier) Send(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	err = n.channel.PublishWithContext(ctx, "", n.queueName, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Type:         string(e.Type),
		Timestamp:    e.OccurredAt,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", e.Type, err)
	}
	return nil
}

// Close closes the channel and the connection if the notifier owns them
func (n *RabbitNotifier) Close() error {
	if n.conn == nil {
		return nil
	}

	var chErr error
	if ch, ok := n.channel.(io.Closer); ok {
		if err := ch.Close(); err != nil {
			chErr = fmt.Errorf("close channel: %w", err)
		}
	}
	if err := n.conn.Close(); err != nil {
		return errors.Join(chErr, fmt.Errorf("close connection: %w", err))
	}
	return chErr
}
