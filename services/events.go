package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	EventLogin          = "session.login"
	EventLogout         = "session.logout"
	EventExpired        = "session.expired"
	EventTokenRefreshed = "token.refreshed"
)

// ClientEvent is a session lifecycle event. Kind doubles as the routing key.
type ClientEvent struct {
	Kind   string    `json:"kind"`
	UserID int64     `json:"user_id,omitempty"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

type EventSink interface {
	Publish(ctx context.Context, event ClientEvent) error
}

type NopEventSink struct{}

func (NopEventSink) Publish(context.Context, ClientEvent) error { return nil }

// RabbitEventSink publishes events to a topic exchange.
type RabbitEventSink struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

func NewRabbitEventSink(url, exchange string) (*RabbitEventSink, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,   // args
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}
	return &RabbitEventSink{conn: conn, channel: ch, exchange: exchange}, nil
}

func (s *RabbitEventSink) Publish(ctx context.Context, event ClientEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channel.PublishWithContext(ctx,
		s.exchange,
		event.Kind,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Timestamp:   event.At,
			Body:        body,
		},
	)
}

func (s *RabbitEventSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.channel.Close(); err != nil {
		s.conn.Close()
		return err
	}
	return s.conn.Close()
}
