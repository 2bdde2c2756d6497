package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Sender delivers one message. The dispatcher calls Send from a single
// goroutine.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

// LogSender writes messages to a logger instead of delivering them.
type LogSender struct {
	Logger *slog.Logger
}

// Send logs m at Info.
func (s LogSender) Send(_ context.Context, m Message) error {
	l := s.Logger
	if l == nil {
		l = slog.Default()
	}
	l.Info("notification", "to", m.To, "template", m.Template, "subject", m.Subject, "dedupe_key", m.DedupeKey)
	l.Debug("notification body", "dedupe_key", m.DedupeKey, "body", m.Body)
	return nil
}

// publisher is the part of *amqp.Channel the sender uses.
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPSender publishes messages as JSON to a topic exchange, routed by
// "notification.<template>". A mail worker bound to the exchange does the
// actual delivery.
type AMQPSender struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	pub      publisher
	exchange string
}

// DialAMQP connects to url and declares a durable topic exchange.
func DialAMQP(url, exchange string) (*AMQPSender, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &AMQPSender{conn: conn, ch: ch, pub: ch, exchange: exchange}, nil
}

// RoutingKey is the topic a message is published under.
func RoutingKey(m Message) string {
	return "notification." + string(m.Template)
}

// Send publishes m as a persistent JSON message. The dedupe key is the
// AMQP message id so consumers can drop redeliveries.
func (s *AMQPSender) Send(ctx context.Context, m Message) error {
	body, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	err = s.pub.PublishWithContext(ctx, s.exchange, RoutingKey(m), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    m.DedupeKey,
		Type:         string(m.Template),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", m.DedupeKey, err)
	}
	return nil
}

// Close closes the channel and connection.
func (s *AMQPSender) Close() error {
	if s.ch != nil {
		_ = s.ch.Close()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
