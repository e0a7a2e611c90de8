package mailer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Message is the payload consumed by the mail delivery worker.
type Message struct {
	To       string    `json:"to"`
	Subject  string    `json:"subject"`
	Body     string    `json:"body"`
	QueuedAt time.Time `json:"queued_at"`
}

// AMQPMailer hands mails to the delivery worker through a durable RabbitMQ queue.
type AMQPMailer struct {
	mu    sync.Mutex
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

func NewAMQPMailer(url, queue string) (*AMQPMailer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq: dial failed: %w", err)
	}
	m := &AMQPMailer{conn: conn, queue: queue}
	if err := m.openChannel(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return m, nil
}

func (m *AMQPMailer) openChannel() error {
	ch, err := m.conn.Channel()
	if err != nil {
		return fmt.Errorf("rabbitmq: channel open failed: %w", err)
	}
	// Durable so queued mails survive broker restarts.
	if _, err := ch.QueueDeclare(
		m.queue, // name
		true,    // durable
		false,   // autoDelete
		false,   // exclusive
		false,   // noWait
		nil,     // args
	); err != nil {
		_ = ch.Close()
		return fmt.Errorf("rabbitmq: queue declare failed: %w", err)
	}
	m.ch = ch
	return nil
}

// Send publishes one mail. It fails when the broker is unreachable; callers decide whether that matters.
func (m *AMQPMailer) Send(ctx context.Context, to, subject, body string) error {
	payload, err := encodeMessage(to, subject, body, time.Now().UTC())
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn.IsClosed() {
		return errors.New("rabbitmq: connection closed")
	}
	if m.ch == nil || m.ch.IsClosed() {
		if err := m.openChannel(); err != nil {
			return err
		}
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         payload,
	}
	if err := m.ch.PublishWithContext(ctx,
		"",      // default exchange
		m.queue, // routing key = queue name
		false,   // mandatory
		false,   // immediate
		pub,
	); err != nil {
		return fmt.Errorf("rabbitmq: publish failed: %w", err)
	}
	return nil
}

func (m *AMQPMailer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ch != nil {
		_ = m.ch.Close()
	}
	return m.conn.Close()
}

func encodeMessage(to, subject, body string, at time.Time) ([]byte, error) {
	if to == "" {
		return nil, errors.New("mail recipient is empty")
	}
	return json.Marshal(Message{To: to, Subject: subject, Body: body, QueuedAt: at})
}
