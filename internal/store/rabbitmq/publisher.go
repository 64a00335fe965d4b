package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// MessageCreated is the event body announcing a new message record.
type MessageCreated struct {
	MessageID string `json:"message_id"`
}

func encodeMessageCreated(id string) ([]byte, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("empty message id")
	}
	return json.Marshal(MessageCreated{MessageID: id})
}

// DecodeMessageCreated extracts the record id from an event body.
func DecodeMessageCreated(body []byte) (string, error) {
	var m MessageCreated
	if err := json.Unmarshal(body, &m); err != nil {
		return "", fmt.Errorf("decode message_created: %w", err)
	}
	id := strings.TrimSpace(m.MessageID)
	if id == "" {
		return "", errors.New("decode message_created: missing message_id")
	}
	return id, nil
}

type Publisher struct {
	conn  *amqp.Connection
	queue string

	// amqp channels are not safe for concurrent publishing
	mu sync.Mutex
	ch *amqp.Channel
}

func NewPublisher(url, queue string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := declareTopology(ch, queue); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return &Publisher{conn: conn, ch: ch, queue: queue}, nil
}

func (p *Publisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// PublishMessageCreated announces a freshly created record to the worker.
func (p *Publisher) PublishMessageCreated(ctx context.Context, messageID string) error {
	body, err := encodeMessageCreated(messageID)
	if err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.PublishWithContext(cctx,
		"",      // default exchange
		p.queue, // routing key = queue
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    messageID,
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
}
